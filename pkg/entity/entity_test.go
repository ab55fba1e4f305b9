package entity

import (
	"testing"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDestroyRoundTrip(t *testing.T) {
	m := NewInMemoryManager()
	g := guid.New()

	id, err := m.Create(g, "hero", Invalid)
	require.NoError(t, err)
	assert.True(t, id.Valid())

	gotID, ok := m.GuidToEntity(g)
	require.True(t, ok)
	assert.Equal(t, id, gotID)

	gotGuid, ok := m.EntityToGuid(id)
	require.True(t, ok)
	assert.Equal(t, g, gotGuid)

	require.NoError(t, m.Destroy(id))
	_, ok = m.GuidToEntity(g)
	assert.False(t, ok)
}

func TestCreateDuplicateGuidFails(t *testing.T) {
	m := NewInMemoryManager()
	g := guid.New()
	_, err := m.Create(g, "a", Invalid)
	require.NoError(t, err)
	_, err = m.Create(g, "b", Invalid)
	assert.Error(t, err)
}

func TestAttachDetachVisitComponents(t *testing.T) {
	m := NewInMemoryManager()
	id, err := m.Create(guid.New(), "hero", Invalid)
	require.NoError(t, err)

	require.NoError(t, m.AttachComponent(id, "Transform", struct{ X, Y float32 }{1, 2}))
	require.NoError(t, m.AttachComponent(id, "Model", "model-ref"))

	var seen []string
	m.VisitComponents(id, func(typeName string, value any) { seen = append(seen, typeName) })
	assert.Equal(t, []string{"Transform", "Model"}, seen)

	require.NoError(t, m.DetachComponent(id, "Transform"))
	seen = nil
	m.VisitComponents(id, func(typeName string, value any) { seen = append(seen, typeName) })
	assert.Equal(t, []string{"Model"}, seen)
}

func TestEntityRefBindUnbind(t *testing.T) {
	g := guid.New()
	ref := NewEntityRef(g)
	assert.False(t, ref.IsBound())

	ref.Bind(ID(7))
	assert.True(t, ref.IsBound())
	assert.Equal(t, ID(7), ref.Entity)

	ref.Unbind()
	assert.False(t, ref.IsBound())
}

func TestEntityRefState(t *testing.T) {
	m := NewInMemoryManager()

	var empty EntityRef
	assert.Equal(t, guid.StateEmpty, empty.State(m.EntityToGuid))

	g := guid.New()
	ref := NewEntityRef(g)
	assert.Equal(t, guid.StateUnbound, ref.State(m.EntityToGuid))

	id, err := m.Create(g, "hero", Invalid)
	require.NoError(t, err)
	ref.Bind(id)
	assert.Equal(t, guid.StateBound, ref.State(m.EntityToGuid))

	require.NoError(t, m.Destroy(id))
	assert.Equal(t, guid.StateStale, ref.State(m.EntityToGuid))
}
