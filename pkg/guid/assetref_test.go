package guid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetRefBindUnbind(t *testing.T) {
	g := New()
	ref := NewAssetRef[int](g)
	assert.False(t, ref.IsBound())

	ref.Bind(Handle[int]{Offset: 1, Version: 1, TypeName: "Int"})
	assert.True(t, ref.IsBound())

	ref.Unbind()
	assert.False(t, ref.IsBound())
}

func TestAssetRefState(t *testing.T) {
	live := map[uint32]uint32{1: 1} // offset -> current version

	validate := func(h Handle[int]) bool {
		v, ok := live[h.Offset]
		return ok && v == h.Version
	}

	var empty AssetRef[int]
	assert.Equal(t, StateEmpty, empty.State(validate))

	g := New()
	ref := NewAssetRef[int](g)
	assert.Equal(t, StateUnbound, ref.State(validate))

	ref.Bind(Handle[int]{Offset: 1, Version: 1, TypeName: "Int"})
	assert.Equal(t, StateBound, ref.State(validate))

	// Simulate the slot being released and reused: version bumps past what
	// ref still holds.
	live[1] = 2
	assert.Equal(t, StateStale, ref.State(validate))
}
