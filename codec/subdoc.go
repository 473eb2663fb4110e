package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/avsej/gocbcore-lite/corecore"
)

// Sub-document command flags (spec.md §4.1).
const (
	SubdocFlagXattr      uint8 = 0x04
	SubdocFlagCreatePath uint8 = 0x01
)

// SubdocOpcode identifies a single operation inside a multi-lookup or
// multi-mutate sub-document request.
type SubdocOpcode uint8

const (
	SubdocOpGet            SubdocOpcode = SubdocOpcode(OpSubdocGet)
	SubdocOpExists         SubdocOpcode = SubdocOpcode(OpSubdocExists)
	SubdocOpDictAdd        SubdocOpcode = SubdocOpcode(OpSubdocDictAdd)
	SubdocOpDictUpsert     SubdocOpcode = SubdocOpcode(OpSubdocDictUpsert)
	SubdocOpDelete         SubdocOpcode = SubdocOpcode(OpSubdocDelete)
	SubdocOpReplace        SubdocOpcode = SubdocOpcode(OpSubdocReplace)
	SubdocOpArrayPushLast  SubdocOpcode = SubdocOpcode(OpSubdocArrayPushLast)
	SubdocOpArrayPushFirst SubdocOpcode = SubdocOpcode(OpSubdocArrayPushFirst)
	SubdocOpArrayInsert    SubdocOpcode = SubdocOpcode(OpSubdocArrayInsert)
	SubdocOpArrayAddUnique SubdocOpcode = SubdocOpcode(OpSubdocArrayAddUnique)
	SubdocOpCounter        SubdocOpcode = SubdocOpcode(OpSubdocCounter)
)

// SubdocCommand is one operation inside an ordered multi-mutate or
// multi-lookup request (spec.md §3 "SubdocCommand").
type SubdocCommand struct {
	Opcode      SubdocOpcode
	Path        string
	Fragment    []byte
	CreateParent bool
	Xattr        bool
}

func (c SubdocCommand) flags() uint8 {
	var f uint8
	if c.Xattr {
		f |= SubdocFlagXattr
	}
	if c.CreateParent {
		f |= SubdocFlagCreatePath
	}
	return f
}

// EncodeMultiMutateBody concatenates the wire encoding of each command:
//
//	opcode(1) flags(1) pathLen(2) valueLen(4) path value
//
// in order (spec.md §4.1 "Sub-document multi-mutate encoding").
func EncodeMultiMutateBody(cmds []SubdocCommand) ([]byte, error) {
	paths := make([]string, len(cmds))
	for i, c := range cmds {
		paths[i] = c.Path
	}
	corecore.AssertNoInvalidCombo(paths)

	var buf bytes.Buffer
	for i, c := range cmds {
		if len(c.Path) > 0xffff {
			return nil, fmt.Errorf("codec: subdoc command %d path too long", i)
		}
		buf.WriteByte(byte(c.Opcode))
		buf.WriteByte(c.flags())
		var lenBuf [6]byte
		binary.BigEndian.PutUint16(lenBuf[0:2], uint16(len(c.Path)))
		binary.BigEndian.PutUint32(lenBuf[2:6], uint32(len(c.Fragment)))
		buf.Write(lenBuf[:])
		buf.WriteString(c.Path)
		buf.Write(c.Fragment)
	}
	return buf.Bytes(), nil
}

// EncodeMultiMutateExtras builds the optional extras section: a 1-byte
// doc-flags value (present only if non-zero) followed by a 4-byte
// expiration (present only if non-zero).
func EncodeMultiMutateExtras(docFlags uint8, expiration uint32) []byte {
	var buf bytes.Buffer
	if docFlags != 0 {
		buf.WriteByte(docFlags)
	}
	if expiration != 0 {
		var e [4]byte
		binary.BigEndian.PutUint32(e[:], expiration)
		buf.Write(e[:])
	}
	return buf.Bytes()
}

// SubdocResult is one record of a multi-mutate or multi-lookup response.
type SubdocResult struct {
	Status Status
	Value  []byte
}

// DecodeMultiResultBody decodes a sequence of `status(2) valueLen(4) value`
// records, one per command that was sent, in order (spec.md §4.1
// "Sub-document multi-mutate decoding").
func DecodeMultiResultBody(body []byte) ([]SubdocResult, error) {
	var results []SubdocResult
	for len(body) > 0 {
		if len(body) < 6 {
			return nil, fmt.Errorf("codec: truncated subdoc result record")
		}
		raw := binary.BigEndian.Uint16(body[0:2])
		valLen := binary.BigEndian.Uint32(body[2:6])
		body = body[6:]
		if uint32(len(body)) < valLen {
			return nil, fmt.Errorf("codec: truncated subdoc result value")
		}
		status, _ := DecodeStatus(raw)
		value := body[:valLen]
		body = body[valLen:]
		results = append(results, SubdocResult{Status: status, Value: value})
	}
	return results, nil
}

// MultiMutateOutcome is the fully resolved result of a multi-mutate
// response: the frame-level status to surface to the caller, and the
// per-operation status vector (spec.md §4.1 and §8 "Subdoc partial
// success").
type MultiMutateOutcome struct {
	FrameStatus Status
	PerOp       []SubdocResult
}

// ResolveMultiMutate implements the frame-status / per-op-status
// interaction rules for a decoded multi-mutate response.
func ResolveMultiMutate(frameStatus Status, numCommandsSent int, perOp []SubdocResult) MultiMutateOutcome {
	switch frameStatus {
	case StatusSubdocMultiPathFailure:
		if numCommandsSent == 1 && len(perOp) == 1 && perOp[0].Status != StatusSuccess {
			return MultiMutateOutcome{FrameStatus: perOp[0].Status, PerOp: perOp}
		}
		return MultiMutateOutcome{FrameStatus: StatusSuccess, PerOp: perOp}
	case StatusSubdocDocNotJSON, StatusSubdocDocTooDeep:
		return MultiMutateOutcome{FrameStatus: frameStatus, PerOp: nil}
	default:
		if numCommandsSent == 1 && len(perOp) == 1 && perOp[0].Status != StatusSuccess {
			return MultiMutateOutcome{FrameStatus: perOp[0].Status, PerOp: perOp}
		}
		return MultiMutateOutcome{FrameStatus: frameStatus, PerOp: perOp}
	}
}
