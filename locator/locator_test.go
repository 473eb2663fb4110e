package locator

import (
	"testing"

	"github.com/avsej/gocbcore-lite/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVbucketDeterministic(t *testing.T) {
	a := Vbucket([]byte("k"), NumVbuckets)
	b := Vbucket([]byte("k"), NumVbuckets)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, NumVbuckets)
}

func TestResolveKVUsesVbucketMapWithReplicas(t *testing.T) {
	bc := &topology.BucketConfig{
		VbucketMap: topology.VbucketMap{
			{2, 0, 1},
		},
	}
	target, ok := Resolve(bc, topology.ServiceKV, VbucketHint(0), &RoundRobin{})
	require.True(t, ok)
	assert.Equal(t, 2, target.NodeIdx)
	assert.Equal(t, []int{0, 1}, target.Replicas)
}

func TestResolveNonKVRoundRobinsOverEnabledNodes(t *testing.T) {
	bc := &topology.BucketConfig{
		Nodes: make([]topology.NodeInfo, 3),
		EnabledServices: []map[topology.ServiceType]struct{}{
			{topology.ServiceQuery: {}},
			{},
			{topology.ServiceQuery: {}},
		},
	}
	rr := &RoundRobin{}
	seen := map[int]bool{}
	for i := 0; i < 50; i++ {
		target, ok := Resolve(bc, topology.ServiceQuery, AnyHint(), rr)
		require.True(t, ok)
		seen[target.NodeIdx] = true
		assert.NotEqual(t, 1, target.NodeIdx, "node 1 doesn't enable query")
	}
	assert.True(t, seen[0] || seen[2])
}

func TestResolveNoEnabledNodeFails(t *testing.T) {
	bc := &topology.BucketConfig{EnabledServices: []map[topology.ServiceType]struct{}{{}}}
	_, ok := Resolve(bc, topology.ServiceAnalytics, AnyHint(), &RoundRobin{})
	assert.False(t, ok)
}
