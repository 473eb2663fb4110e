package codec

import "encoding/binary"

// Feature is a HELLO feature code (spec.md §4.2 "HELLO / feature
// negotiation"). Feature codes are two bytes each in the HELLO request and
// response bodies.
type Feature uint16

const (
	FeatureTLS                 Feature = 0x02
	FeatureTCPNoDelay          Feature = 0x03
	FeatureMutationSeqNo       Feature = 0x04
	FeatureTCPDelay            Feature = 0x05
	FeatureXattr               Feature = 0x06
	FeatureXError              Feature = 0x07
	FeatureSelectBucket        Feature = 0x08
	FeatureSnappy              Feature = 0x0a
	FeatureJSON                Feature = 0x0b
	FeatureDuplex              Feature = 0x0c
	FeatureClusterMapChangeNot Feature = 0x0d
	FeatureUnorderedExecution  Feature = 0x0e
	FeatureAltRequests         Feature = 0x0f
	FeatureSyncReplication     Feature = 0x10
	FeatureCollections         Feature = 0x12
	FeatureVattr               Feature = 0x15
)

// EncodeFeatures serializes a proposed feature set into a HELLO request
// body: a flat array of big-endian uint16 codes.
func EncodeFeatures(features []Feature) []byte {
	body := make([]byte, len(features)*2)
	for i, f := range features {
		binary.BigEndian.PutUint16(body[i*2:], uint16(f))
	}
	return body
}

// DecodeFeatures parses a HELLO response body into the set of features the
// server agreed to support.
func DecodeFeatures(body []byte) []Feature {
	n := len(body) / 2
	out := make([]Feature, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Feature(binary.BigEndian.Uint16(body[i*2:i*2+2])))
	}
	return out
}

// FeatureSet is a lookup-friendly view over a negotiated feature list.
type FeatureSet map[Feature]struct{}

func NewFeatureSet(features []Feature) FeatureSet {
	s := make(FeatureSet, len(features))
	for _, f := range features {
		s[f] = struct{}{}
	}
	return s
}

func (s FeatureSet) Has(f Feature) bool {
	_, ok := s[f]
	return ok
}
