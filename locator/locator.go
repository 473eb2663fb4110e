// Package locator resolves a request's routing hint against a bucket's
// current topology to a target node index (spec.md §4.3 "Locator
// selection").
package locator

import (
	"hash/crc32"
	"sync/atomic"

	"github.com/avsej/gocbcore-lite/topology"
)

// RoutingHint is the abstract request attribute the locator consumes
// (spec.md §3 "Request"): a collection-qualified key, an explicit
// partition hint, or "any" for services with no key affinity.
type RoutingHint struct {
	Key       []byte
	HasKey    bool
	Vbucket   int
	HasVbucket bool
}

// AnyHint requests round-robin selection with no key affinity.
func AnyHint() RoutingHint { return RoutingHint{} }

// KeyHint requests vbucket-hash routing for key.
func KeyHint(key []byte) RoutingHint { return RoutingHint{Key: key, HasKey: true} }

// VbucketHint pins a request to an explicit partition, bypassing hashing.
func VbucketHint(vb int) RoutingHint { return RoutingHint{Vbucket: vb, HasVbucket: true} }

// NumVbuckets is the fixed partition count used by CRC32 hashing, matching
// the server's default vbucket map size.
const NumVbuckets = 1024

// Vbucket computes the CRC32-based vbucket index for a key (spec.md §4.3
// "KV, OBSERVE: vbucket hash (CRC32 of key, mod num-vbuckets)"), following
// the server's own digest: the top 15 bits of the CRC32, modulo the
// authoritative vbucket count. A plain bitmask only agrees with this for a
// power-of-two count; % numVbuckets is what keeps a computed vbucket in
// step with the server's map for any size.
func Vbucket(key []byte, numVbuckets int) int {
	if numVbuckets <= 0 {
		numVbuckets = NumVbuckets
	}
	digest := (crc32.ChecksumIEEE(key) >> 16) & 0x7fff
	return int(digest) % numVbuckets
}

// Target is the resolved placement for a request: the owning node index
// plus, for KV/OBSERVE, the replica fan-out list (index 0 is active).
type Target struct {
	NodeIdx  int
	Replicas []int
}

// Resolve implements spec.md §4.3's per-service dispatch rule: KV/OBSERVE
// use the vbucket map with replica fan-out; every other service type
// round-robins over nodes with serviceEnabled(T).
func Resolve(bc *topology.BucketConfig, svc topology.ServiceType, hint RoutingHint, rr *RoundRobin) (Target, bool) {
	switch svc {
	case topology.ServiceKV, topology.ServiceObserve:
		return resolveVbucket(bc, hint)
	default:
		idx, ok := rr.Next(bc.NodesWithService(svc))
		if !ok {
			return Target{}, false
		}
		return Target{NodeIdx: idx}, true
	}
}

func resolveVbucket(bc *topology.BucketConfig, hint RoutingHint) (Target, bool) {
	vb := hint.Vbucket
	if hint.HasKey {
		vb = Vbucket(hint.Key, numVbucketsOf(bc))
	} else if !hint.HasVbucket {
		return Target{}, false
	}
	if vb < 0 || vb >= len(bc.VbucketMap) {
		return Target{}, false
	}
	owners := bc.VbucketMap[vb]
	if len(owners) == 0 || owners[0] < 0 {
		return Target{}, false
	}
	return Target{NodeIdx: owners[0], Replicas: owners[1:]}, true
}

func numVbucketsOf(bc *topology.BucketConfig) int {
	if n := len(bc.VbucketMap); n > 0 {
		return n
	}
	return NumVbuckets
}

// RoundRobin is the stateful cursor for non-KV service selection (spec.md
// §4.3). One instance is shared across requests for a given service type.
type RoundRobin struct {
	cursor uint64
}

// Next returns the next candidate index from candidates, cycling in a
// fixed order: successive calls return candidates[0], candidates[1], ...
// and wrap around. The cursor is advanced atomically, so concurrent
// callers each take a distinct position.
func (r *RoundRobin) Next(candidates []int) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	n := atomic.AddUint64(&r.cursor, 1) - 1
	return candidates[int(n%uint64(len(candidates)))], true
}
