package codec

import (
	"github.com/golang/snappy"
)

// CompressionConfig is the compression policy applied to compressible
// mutation request payloads (spec.md §4.1 "Compression policy").
type CompressionConfig struct {
	Enabled bool
	// MinSize is the minimum payload length, in bytes, compression is
	// attempted for.
	MinSize int
	// MinRatio is the maximum acceptable compressed/original size ratio;
	// compression is only used when it beats this ratio.
	MinRatio float64
}

// Apply compresses value per cfg and returns the bytes to put on the wire
// together with the datatype bit to set. It never mutates value.
func (cfg CompressionConfig) Apply(value []byte) (wire []byte, compressed bool) {
	if !cfg.Enabled || len(value) < cfg.MinSize {
		return value, false
	}
	candidate := snappy.Encode(nil, value)
	if float64(len(candidate))/float64(len(value)) > cfg.MinRatio {
		return value, false
	}
	return candidate, true
}

// Decompress reverses Apply for a response/request whose datatype carries
// the SNAPPY bit.
func Decompress(value []byte, datatype Datatype) ([]byte, error) {
	if !datatype.Has(DatatypeSnappy) {
		return value, nil
	}
	return snappy.Decode(nil, value)
}
