// Package codec implements the binary memcache-family KV protocol: a fixed
// 24-byte header followed by extras, key, and body (spec.md §4.1). All
// integers are network byte order (big-endian).
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderLen is the fixed size of every frame header.
const HeaderLen = 24

// Header is the 24-byte frame header shared by requests and responses.
//
// Layout (network byte order):
//
//	magic(1) opcode(1) keyLen(2) extrasLen(1) datatype(1) vbucketOrStatus(2)
//	totalBodyLen(4) opaque(4) cas(8)
type Header struct {
	Magic           Magic
	Opcode          Opcode
	KeyLen          uint16
	ExtrasLen       uint8
	Datatype        Datatype
	VbucketOrStatus uint16 // request: vbucket id. response: raw status.
	TotalBodyLen    uint32
	Opaque          uint32
	Cas             uint64
}

// Frame is a fully decoded request or response: header plus its three
// body sections. Once returned from Decode it owns its own byte slices —
// it never borrows into the reader's buffer (spec.md §3 "Ownership rules").
type Frame struct {
	Header Header
	Extras []byte
	Key    []byte
	Value  []byte
}

// EncodeRequest writes a request frame: header + extras + key + value.
// vbucket is placed in the header's vbucket-or-status field per the wire
// format for request frames.
func EncodeRequest(w io.Writer, opcode Opcode, vbucket uint16, opaque uint32, cas uint64, datatype Datatype, extras, key, value []byte) error {
	return encodeFrame(w, MagicReq, opcode, vbucket, opaque, cas, datatype, extras, key, value)
}

// EncodeResponse writes a response frame; status occupies the same header
// slot request frames use for vbucket.
func EncodeResponse(w io.Writer, opcode Opcode, status uint16, opaque uint32, cas uint64, datatype Datatype, extras, key, value []byte) error {
	return encodeFrame(w, MagicRes, opcode, status, opaque, cas, datatype, extras, key, value)
}

func encodeFrame(w io.Writer, magic Magic, opcode Opcode, vbucketOrStatus uint16, opaque uint32, cas uint64, datatype Datatype, extras, key, value []byte) error {
	if len(extras) > 0xff {
		return fmt.Errorf("codec: extras length %d exceeds 255", len(extras))
	}
	if len(key) > 0xffff {
		return fmt.Errorf("codec: key length %d exceeds 65535", len(key))
	}
	bodyLen := len(extras) + len(key) + len(value)

	var hdr [HeaderLen]byte
	hdr[0] = byte(magic)
	hdr[1] = byte(opcode)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(key)))
	hdr[4] = byte(len(extras))
	hdr[5] = byte(datatype)
	binary.BigEndian.PutUint16(hdr[6:8], vbucketOrStatus)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(bodyLen))
	binary.BigEndian.PutUint32(hdr[12:16], opaque)
	binary.BigEndian.PutUint64(hdr[16:24], cas)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("codec: write header: %w", err)
	}
	if len(extras) > 0 {
		if _, err := w.Write(extras); err != nil {
			return fmt.Errorf("codec: write extras: %w", err)
		}
	}
	if len(key) > 0 {
		if _, err := w.Write(key); err != nil {
			return fmt.Errorf("codec: write key: %w", err)
		}
	}
	if len(value) > 0 {
		if _, err := w.Write(value); err != nil {
			return fmt.Errorf("codec: write value: %w", err)
		}
	}
	return nil
}

// Decode reads exactly one frame from r. Decoded slices are freshly
// allocated and owned by the returned Frame; they never alias r's internal
// buffers.
func Decode(r io.Reader) (*Frame, error) {
	var raw [HeaderLen]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("codec: read header: %w", err)
	}

	h := Header{
		Magic:           Magic(raw[0]),
		Opcode:          Opcode(raw[1]),
		KeyLen:          binary.BigEndian.Uint16(raw[2:4]),
		ExtrasLen:       raw[4],
		Datatype:        Datatype(raw[5]),
		VbucketOrStatus: binary.BigEndian.Uint16(raw[6:8]),
		TotalBodyLen:    binary.BigEndian.Uint32(raw[8:12]),
		Opaque:          binary.BigEndian.Uint32(raw[12:16]),
		Cas:             binary.BigEndian.Uint64(raw[16:24]),
	}

	if uint32(h.ExtrasLen)+uint32(h.KeyLen) > h.TotalBodyLen {
		return nil, fmt.Errorf("codec: malformed frame: extras+key (%d) exceeds body length (%d)", uint32(h.ExtrasLen)+uint32(h.KeyLen), h.TotalBodyLen)
	}

	body := make([]byte, h.TotalBodyLen)
	if h.TotalBodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("codec: read body: %w", err)
		}
	}

	f := &Frame{Header: h}
	off := 0
	f.Extras = body[off : off+int(h.ExtrasLen)]
	off += int(h.ExtrasLen)
	f.Key = body[off : off+int(h.KeyLen)]
	off += int(h.KeyLen)
	f.Value = body[off:]
	return f, nil
}

// Status returns the normalized response status for this frame, assuming
// Magic == MagicRes.
func (f *Frame) Status() (Status, uint16) {
	return DecodeStatus(f.Header.VbucketOrStatus)
}

// MutationToken extracts {partition-uuid, seqno} from a response's extras
// when the channel has negotiated mutation tokens and extras are present
// (spec.md §4.1 "Mutation token extraction").
type MutationToken struct {
	VbucketUUID uint64
	SeqNo       uint64
}

func (f *Frame) MutationToken(negotiated bool) (MutationToken, bool) {
	if !negotiated || len(f.Extras) < 16 {
		return MutationToken{}, false
	}
	return MutationToken{
		VbucketUUID: binary.BigEndian.Uint64(f.Extras[0:8]),
		SeqNo:       binary.BigEndian.Uint64(f.Extras[8:16]),
	}, true
}

// EncodeKey produces the wire key: unsigned_leb128(collectionID) || key
// when collections have been negotiated on the channel, else the bare key
// (spec.md §4.1 "Collection-aware keys").
func EncodeKey(key []byte, collectionID uint32, collectionsEnabled bool) []byte {
	if !collectionsEnabled {
		return key
	}
	var buf bytes.Buffer
	writeUnsignedLEB128(&buf, collectionID)
	buf.Write(key)
	return buf.Bytes()
}

// DecodeKey strips a leading unsigned LEB128 collection id from a wire key
// when collections are negotiated, returning the collection id and the
// remaining user key bytes.
func DecodeKey(wireKey []byte, collectionsEnabled bool) (collectionID uint32, userKey []byte, err error) {
	if !collectionsEnabled {
		return 0, wireKey, nil
	}
	id, n, err := readUnsignedLEB128(wireKey)
	if err != nil {
		return 0, nil, err
	}
	return id, wireKey[n:], nil
}

func writeUnsignedLEB128(buf *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

func readUnsignedLEB128(data []byte) (value uint32, consumed int, err error) {
	var shift uint
	for i, b := range data {
		value |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
		if shift > 28 {
			return 0, 0, fmt.Errorf("codec: leb128 collection id too long")
		}
	}
	return 0, 0, fmt.Errorf("codec: truncated leb128 collection id")
}
