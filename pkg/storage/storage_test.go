package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mesh struct {
	Name string
}

type texture struct {
	Path string
}

func TestAddHandleForGUIDValidate(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")

	g := guid.New()
	h, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)
	assert.True(t, Validate(s, "Mesh", h))

	got, ok := HandleForGUID[mesh](s, "Mesh", g)
	require.True(t, ok)
	assert.Equal(t, h, got)

	backG, ok := GUIDForHandle(s, "Mesh", h)
	require.True(t, ok)
	assert.Equal(t, g, backG)
}

func TestAddDuplicateGuidFails(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	g := guid.New()
	_, err := Add(s, "Mesh", mesh{Name: "a"}, g)
	require.NoError(t, err)

	_, err = Add(s, "Mesh", mesh{Name: "b"}, g)
	assert.ErrorIs(t, err, ErrAlreadyPresent)
}

func TestReadModify(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	g := guid.New()
	h, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)

	var seen string
	require.NoError(t, Read(s, "Mesh", h, func(m mesh) { seen = m.Name }))
	assert.Equal(t, "cube", seen)

	require.NoError(t, Modify(s, "Mesh", h, func(m *mesh) { m.Name = "sphere" }))
	require.NoError(t, Read(s, "Mesh", h, func(m mesh) { seen = m.Name }))
	assert.Equal(t, "sphere", seen)
}

func TestReleaseToZeroInvalidatesHandle(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	g := guid.New()
	h, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)

	count, err := Release(s, "Mesh", h)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), count)

	assert.False(t, Validate(s, "Mesh", h))
	err = Read(s, "Mesh", h, func(mesh) {})
	assert.ErrorIs(t, err, ErrStale)
}

func TestRetainKeepsAliveUntilAllReleased(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	g := guid.New()
	h, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)

	count, err := Retain(s, "Mesh", h)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), count)

	count, err = Release(s, "Mesh", h)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)
	assert.True(t, Validate(s, "Mesh", h))

	count, err = Release(s, "Mesh", h)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), count)
	assert.False(t, Validate(s, "Mesh", h))
}

func TestReusedSlotProducesStaleNotWrongType(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")

	g1 := guid.New()
	h1, err := Add(s, "Mesh", mesh{Name: "first"}, g1)
	require.NoError(t, err)
	_, err = Release(s, "Mesh", h1)
	require.NoError(t, err)

	g2 := guid.New()
	h2, err := Add(s, "Mesh", mesh{Name: "second"}, g2)
	require.NoError(t, err)
	assert.Equal(t, h1.Offset, h2.Offset, "slot should be reused from the free list")
	assert.NotEqual(t, h1.Version, h2.Version)

	// The old handle must never see the new value.
	err = Read(s, "Mesh", h1, func(mesh) {})
	assert.ErrorIs(t, err, ErrStale)

	var name string
	require.NoError(t, Read(s, "Mesh", h2, func(m mesh) { name = m.Name }))
	assert.Equal(t, "second", name)
}

func TestTypeMismatchAcrossPools(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	Assure[texture](s, "Texture")

	g := guid.New()
	_, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)

	_, ok := HandleForGUID[texture](s, "Texture", g)
	assert.False(t, ok, "guid belongs to the Mesh pool, not Texture")
}

func TestConcurrentAddReleaseUniqueGuidsNoCrossTypeLeak(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	Assure[texture](s, "Texture")

	const n = 200
	var wg sync.WaitGroup
	meshHandles := make([]guid.Handle[mesh], n)
	texHandles := make([]guid.Handle[texture], n)

	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			h, err := Add(s, "Mesh", mesh{Name: "m"}, guid.New())
			require.NoError(t, err)
			meshHandles[i] = h
		}()
		go func() {
			defer wg.Done()
			h, err := Add(s, "Texture", texture{Path: "t"}, guid.New())
			require.NoError(t, err)
			texHandles[i] = h
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.True(t, Validate(s, "Mesh", meshHandles[i]))
		assert.True(t, Validate(s, "Texture", texHandles[i]))
		// Cross-checking with the wrong pool name must never validate.
		assert.False(t, Validate(s, "Texture", meshHandles[i]))
	}
}

func TestValidateAllBulk(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")

	var metas []guid.MetaHandle
	for i := 0; i < 50; i++ {
		h, err := Add(s, "Mesh", mesh{Name: "m"}, guid.New())
		require.NoError(t, err)
		metas = append(metas, h.Meta())
	}
	results := s.ValidateAll(metas)
	require.Len(t, results, 50)
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestModifyRecursesIntoSamePoolWithoutDeadlock(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")

	parent, err := Add(s, "Mesh", mesh{Name: "parent"}, guid.New())
	require.NoError(t, err)
	child, err := Add(s, "Mesh", mesh{Name: "child"}, guid.New())
	require.NoError(t, err)

	// A Modify callback recursing into Modify on a DIFFERENT handle of the
	// SAME pool must not deadlock (spec.md §4.1, "modify permits
	// re-entrant calls into Storage on the same type").
	outerErrCh := make(chan error, 1)
	innerErrCh := make(chan error, 1)
	go func() {
		outerErrCh <- Modify(s, "Mesh", parent, func(p *mesh) {
			p.Name = "parent-visited"
			innerErrCh <- Modify(s, "Mesh", child, func(c *mesh) {
				c.Name = "child-visited"
			})
		})
	}()

	select {
	case err := <-outerErrCh:
		require.NoError(t, err)
		require.NoError(t, <-innerErrCh)
	case <-time.After(2 * time.Second):
		t.Fatal("recursive Modify on the same pool deadlocked")
	}

	var parentName, childName string
	require.NoError(t, Read(s, "Mesh", parent, func(m mesh) { parentName = m.Name }))
	require.NoError(t, Read(s, "Mesh", child, func(m mesh) { childName = m.Name }))
	assert.Equal(t, "parent-visited", parentName)
	assert.Equal(t, "child-visited", childName)
}

func TestRemoveNowForcesRelease(t *testing.T) {
	s := New()
	Assure[mesh](s, "Mesh")
	g := guid.New()
	h, err := Add(s, "Mesh", mesh{Name: "cube"}, g)
	require.NoError(t, err)
	_, err = Retain(s, "Mesh", h)
	require.NoError(t, err)

	require.NoError(t, RemoveNow(s, "Mesh", h))
	assert.False(t, Validate(s, "Mesh", h))
	_, ok := HandleForGUID[mesh](s, "Mesh", g)
	assert.False(t, ok)
}
