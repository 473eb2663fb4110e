package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubdocMultiMutateEncodeDecodeOrder(t *testing.T) {
	cmds := []SubdocCommand{
		{Opcode: SubdocOpDictUpsert, Path: "/a", Fragment: []byte("1")},
		{Opcode: SubdocOpDictUpsert, Path: "/x/y", Fragment: []byte("2"), CreateParent: true},
		{Opcode: SubdocOpDictUpsert, Path: "/b", Fragment: []byte("3"), Xattr: true},
	}
	body, err := EncodeMultiMutateBody(cmds)
	require.NoError(t, err)
	require.NotEmpty(t, body)

	// Manually walk the encoded records to confirm order and flags survive.
	offset := 0
	for i, c := range cmds {
		require.Equal(t, byte(c.Opcode), body[offset])
		offset++
		flags := body[offset]
		offset++
		if c.CreateParent {
			assert.NotZero(t, flags&SubdocFlagCreatePath, "cmd %d create-parent flag", i)
		}
		if c.Xattr {
			assert.NotZero(t, flags&SubdocFlagXattr, "cmd %d xattr flag", i)
		}
		pathLen := int(body[offset])<<8 | int(body[offset+1])
		offset += 2
		valLen := int(body[offset])<<24 | int(body[offset+1])<<16 | int(body[offset+2])<<8 | int(body[offset+3])
		offset += 4
		assert.Equal(t, c.Path, string(body[offset:offset+pathLen]))
		offset += pathLen
		assert.Equal(t, c.Fragment, body[offset:offset+valLen])
		offset += valLen
	}
	assert.Equal(t, len(body), offset)
}

func TestSubdocPartialSuccessThreeCommands(t *testing.T) {
	perOp := []SubdocResult{
		{Status: StatusSuccess},
		{Status: StatusSubdocPathNotFound},
		{Status: StatusSuccess},
	}
	outcome := ResolveMultiMutate(StatusSubdocMultiPathFailure, 3, perOp)
	assert.Equal(t, StatusSuccess, outcome.FrameStatus)
	require.Len(t, outcome.PerOp, 3)
	assert.Equal(t, []Status{StatusSuccess, StatusSubdocPathNotFound, StatusSuccess}, statusesOf(outcome.PerOp))
}

func TestSubdocSingleCommandFailureSurfacesAtFrameLevel(t *testing.T) {
	perOp := []SubdocResult{{Status: StatusSubdocPathNotFound}}
	outcome := ResolveMultiMutate(StatusSubdocMultiPathFailure, 1, perOp)
	assert.Equal(t, StatusSubdocPathNotFound, outcome.FrameStatus)
}

func TestSubdocWholeDocumentFailureEmptiesPerOpVector(t *testing.T) {
	outcome := ResolveMultiMutate(StatusSubdocDocNotJSON, 3, []SubdocResult{{Status: StatusSuccess}})
	assert.Equal(t, StatusSubdocDocNotJSON, outcome.FrameStatus)
	assert.Empty(t, outcome.PerOp)
}

func TestDecodeMultiResultBodyOrder(t *testing.T) {
	cmds := []SubdocCommand{
		{Opcode: SubdocOpDictUpsert, Path: "/a", Fragment: []byte("1")},
		{Opcode: SubdocOpDictUpsert, Path: "/b", Fragment: []byte("2")},
	}
	// Build a synthetic response body: SUCCESS with no value, then
	// SUCCESS with a value, in the same order commands were sent.
	body := []byte{}
	body = append(body, encodeResultRecord(t, StatusSuccess, nil)...)
	body = append(body, encodeResultRecord(t, StatusSuccess, []byte("v"))...)

	results, err := DecodeMultiResultBody(body)
	require.NoError(t, err)
	require.Len(t, results, len(cmds))
	assert.Empty(t, results[0].Value)
	assert.Equal(t, []byte("v"), results[1].Value)
}

func encodeResultRecord(t *testing.T, status Status, value []byte) []byte {
	t.Helper()
	var raw uint16
	for k, v := range rawStatus {
		if v == status {
			raw = k
			break
		}
	}
	out := make([]byte, 6+len(value))
	out[0] = byte(raw >> 8)
	out[1] = byte(raw)
	l := uint32(len(value))
	out[2] = byte(l >> 24)
	out[3] = byte(l >> 16)
	out[4] = byte(l >> 8)
	out[5] = byte(l)
	copy(out[6:], value)
	return out
}

func statusesOf(results []SubdocResult) []Status {
	out := make([]Status, len(results))
	for i, r := range results {
		out[i] = r.Status
	}
	return out
}
