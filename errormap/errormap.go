// Package errormap models the server's error map (spec.md §3 "ErrorMap"):
// a version plus a mapping from 16-bit status codes to retry metadata. It
// is loaded once per channel during bootstrap; its absence is non-fatal.
package errormap

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Attribute is one of the server-declared retry/behavior hints for a
// status code, per the error map schema.
type Attribute string

const (
	AttrItemOnly         Attribute = "item-only"
	AttrInvalidInput     Attribute = "invalid-input"
	AttrFetchConfig      Attribute = "fetch-config"
	AttrConnStateInvalidated Attribute = "conn-state-invalidated"
	AttrAuth             Attribute = "auth"
	AttrSpecial          Attribute = "special-handling"
	AttrSupport          Attribute = "support"
	AttrTemp             Attribute = "temp"
	AttrInternal         Attribute = "internal"
	AttrRetryNow         Attribute = "retry-now"
	AttrRetryLater       Attribute = "retry-later"
	AttrRateLimit        Attribute = "rate-limit"
	AttrSubdoc           Attribute = "subdoc"
	AttrDCP              Attribute = "dcp"
)

// Entry describes one status code's metadata, matching the server's JSON
// schema field-for-field (spec.md §9 "replace [Jackson annotations] with an
// explicit schema"). Unknown JSON fields are tolerated because the
// struct's fields are a deliberate subset, not mirrored via reflection
// tags beyond what we read.
type Entry struct {
	Name        string      `json:"name"`
	Description string      `json:"desc"`
	Attributes  []Attribute `json:"attrs"`
}

func (e Entry) HasAttribute(a Attribute) bool {
	for _, x := range e.Attributes {
		if x == a {
			return true
		}
	}
	return false
}

// ErrorMap is the decoded, immutable map for one channel.
type ErrorMap struct {
	Version  int
	Revision int
	Entries  map[uint16]Entry
}

// wireErrorMap mirrors the server's actual JSON document shape, which
// nests the per-code entries under a string-keyed "errors" object (JSON
// object keys are always strings, even though the codes are numeric).
type wireErrorMap struct {
	Version  int                  `json:"version"`
	Revision int                  `json:"revision"`
	Errors   map[string]wireEntry `json:"errors"`
}

type wireEntry struct {
	Name        string      `json:"name"`
	Description string      `json:"desc"`
	Attributes  []Attribute `json:"attrs"`
}

// Decode parses a server ERROR_MAP response body. A malformed body is
// reported as an error; the caller treats that as non-fatal per spec.md
// §4.2 ("On non-success status or undecodable body, emit an event and
// continue without a map").
func Decode(body []byte) (*ErrorMap, error) {
	var wire wireErrorMap
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	em := &ErrorMap{
		Version:  wire.Version,
		Revision: wire.Revision,
		Entries:  make(map[uint16]Entry, len(wire.Errors)),
	}
	for k, v := range wire.Errors {
		code, err := parseHexCode(k)
		if err != nil {
			continue
		}
		em.Entries[code] = Entry{Name: v.Name, Description: v.Description, Attributes: v.Attributes}
	}
	return em, nil
}

// parseHexCode parses a status code key as the server sends it: a bare hex
// string, with or without a "0x" prefix (e.g. "86" or "0x86").
func parseHexCode(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// Lookup returns the entry for a raw status code and whether one was
// present in the map.
func (em *ErrorMap) Lookup(raw uint16) (Entry, bool) {
	if em == nil {
		return Entry{}, false
	}
	e, ok := em.Entries[raw]
	return e, ok
}

// Retriable reports whether raw should be retried per the error map's
// attributes, falling back to the spec's built-in defaults
// (TEMPORARY_FAILURE, LOCKED, NOT_INITIALIZED) when the map has no entry
// or is absent (spec.md §4.6 step 6).
func (em *ErrorMap) Retriable(raw uint16, builtinDefault bool) bool {
	if e, ok := em.Lookup(raw); ok {
		return e.HasAttribute(AttrRetryNow) || e.HasAttribute(AttrRetryLater) || e.HasAttribute(AttrTemp)
	}
	return builtinDefault
}
