package codec

// Opcode identifies a binary memcache-family protocol command (spec.md §4.1).
type Opcode uint8

const (
	OpGet                    Opcode = 0x00
	OpSet                    Opcode = 0x01 // upsert
	OpAdd                    Opcode = 0x02 // insert
	OpReplace               Opcode = 0x03
	OpDelete                 Opcode = 0x04
	OpIncrement              Opcode = 0x05
	OpDecrement              Opcode = 0x06
	OpAppend                 Opcode = 0x0e
	OpPrepend                Opcode = 0x0f
	OpTouch                  Opcode = 0x1c
	OpGetAndTouch            Opcode = 0x1d
	OpGetl                   Opcode = 0x94
	OpObserve                Opcode = 0x92
	OpGetConfig              Opcode = 0xb5
	OpSelectBucket           Opcode = 0x89
	OpHello                  Opcode = 0x1f
	OpSaslListMechs          Opcode = 0x20
	OpSaslAuth               Opcode = 0x21
	OpSaslStep               Opcode = 0x22
	OpErrorMap               Opcode = 0xfe
	OpSubdocGet              Opcode = 0xc5
	OpSubdocExists           Opcode = 0xc6
	OpSubdocDictAdd          Opcode = 0xc7
	OpSubdocDictUpsert       Opcode = 0xc8
	OpSubdocDelete           Opcode = 0xc9
	OpSubdocReplace          Opcode = 0xca
	OpSubdocArrayPushLast    Opcode = 0xcb
	OpSubdocArrayPushFirst   Opcode = 0xcc
	OpSubdocArrayInsert      Opcode = 0xcd
	OpSubdocArrayAddUnique   Opcode = 0xce
	OpSubdocCounter          Opcode = 0xcf
	OpSubdocMultiLookup      Opcode = 0xd0
	OpSubdocMultiMutate      Opcode = 0xd1
	OpGetCollectionsManifest Opcode = 0xba
	OpGetCollectionID        Opcode = 0xbb
)

// Magic distinguishes request frames from response frames in the header.
type Magic uint8

const (
	MagicReq Magic = 0x80
	MagicRes Magic = 0x81
)
