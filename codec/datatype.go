package codec

// Datatype is the bitset carried in the frame header's datatype byte
// (spec.md §4.1).
type Datatype uint8

const (
	DatatypeJSON   Datatype = 0x01
	DatatypeSnappy Datatype = 0x02
	DatatypeXattr  Datatype = 0x04
)

func (d Datatype) Has(bit Datatype) bool { return d&bit == bit }
func (d Datatype) Set(bit Datatype) Datatype { return d | bit }
