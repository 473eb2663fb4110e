package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionThreshold(t *testing.T) {
	cfg := CompressionConfig{Enabled: true, MinSize: 32, MinRatio: 0.83}

	t.Run("compressible payload below ratio gets compressed", func(t *testing.T) {
		payload := make([]byte, 64) // all zero bytes compress extremely well
		wire, compressed := cfg.Apply(payload)
		assert.True(t, compressed)
		assert.Less(t, len(wire), 64)
	})

	t.Run("payload under min size is not compressed", func(t *testing.T) {
		payload := make([]byte, 20)
		wire, compressed := cfg.Apply(payload)
		assert.False(t, compressed)
		assert.Equal(t, payload, wire)
	})

	t.Run("incompressible payload above ratio is not compressed", func(t *testing.T) {
		// Pseudo-random bytes rarely compress below 0.83 of their size.
		payload := make([]byte, 64)
		for i := range payload {
			payload[i] = byte(i*167 + 91)
		}
		_, compressed := cfg.Apply(payload)
		assert.False(t, compressed)
	})
}

func TestDecompressRoundTrip(t *testing.T) {
	cfg := CompressionConfig{Enabled: true, MinSize: 1, MinRatio: 1.0}
	payload := bytesRepeat('a', 128)
	wire, compressed := cfg.Apply(payload)
	require.True(t, compressed)

	back, err := Decompress(wire, DatatypeSnappy)
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
