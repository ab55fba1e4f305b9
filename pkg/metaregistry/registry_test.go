package metaregistry

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mesh struct {
	Vertices []float32
}

type texture struct {
	Name string
}

type model struct {
	Meshes   []guid.AssetRef[mesh]
	Textures []guid.AssetRef[texture]
}

func jsonCodec[T any]() (func([]byte) (T, error), func(T) ([]byte, error)) {
	deser := func(raw []byte) (T, error) {
		var v T
		err := json.Unmarshal(raw, &v)
		return v, err
	}
	ser := func(v T) ([]byte, error) { return json.Marshal(v) }
	return deser, ser
}

func buildRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()

	meshDeser, meshSer := jsonCodec[mesh]()
	require.NoError(t, Register(r, "Mesh", AssetOptions[mesh]{
		DisplayName: "Mesh",
		Deserialize: meshDeser,
		Serialize:   meshSer,
	}))

	texDeser, texSer := jsonCodec[texture]()
	require.NoError(t, Register(r, "Texture", AssetOptions[texture]{
		DisplayName: "Texture",
		Deserialize: texDeser,
		Serialize:   texSer,
	}))

	modelDeser, modelSer := jsonCodec[model]()
	require.NoError(t, Register(r, "Model", AssetOptions[model]{
		DisplayName: "Model",
		Deserialize: modelDeser,
		Serialize:   modelSer,
		VisitAssetRefs: func(v *model, visit AssetRefVisitFunc) {
			for i := range v.Meshes {
				ref := &v.Meshes[i]
				visit(ref.Guid, func(h guid.MetaHandle) {
					th, ok := guid.HandleFromMeta[mesh](h, "Mesh")
					if ok {
						ref.Handle = th
					} else {
						ref.Unbind()
					}
				})
			}
			for i := range v.Textures {
				ref := &v.Textures[i]
				visit(ref.Guid, func(h guid.MetaHandle) {
					th, ok := guid.HandleFromMeta[texture](h, "Texture")
					if ok {
						ref.Handle = th
					} else {
						ref.Unbind()
					}
				})
			}
		},
	}))

	return r
}

func TestRegisterRejectsDuplicateTypeName(t *testing.T) {
	r := buildRegistry(t)
	deser, ser := jsonCodec[mesh]()
	err := Register(r, "Mesh", AssetOptions[mesh]{Deserialize: deser, Serialize: ser})
	assert.Error(t, err)
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	deser, ser := jsonCodec[mesh]()
	err := Register(r, "Mesh", AssetOptions[mesh]{Deserialize: deser, Serialize: ser})
	assert.ErrorIs(t, err, ErrAlreadyFrozen)
}

func TestLoadAssetRoundTrip(t *testing.T) {
	r := buildRegistry(t)
	st := storage.New()

	ops, ok := r.Lookup("Mesh")
	require.True(t, ok)
	require.True(t, ops.IsAsset())

	raw, err := json.Marshal(mesh{Vertices: []float32{1, 2, 3}})
	require.NoError(t, err)

	g := guid.New()
	h, err := ops.LoadAsset(st, raw, g)
	require.NoError(t, err)
	assert.True(t, storage.ValidateMeta(st, h))

	var seen mesh
	err = ops.WithValue(st, h, func(v any) { seen = *v.(*mesh) })
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, seen.Vertices)

	require.NoError(t, ops.UnloadAsset(st, h))
	assert.False(t, storage.ValidateMeta(st, h))
}

func TestBindAssetResolvesChildRefs(t *testing.T) {
	r := buildRegistry(t)
	st := storage.New()

	meshOps, _ := r.Lookup("Mesh")
	meshGuid := guid.New()
	meshRaw, _ := json.Marshal(mesh{Vertices: []float32{1}})
	meshMeta, err := meshOps.LoadAsset(st, meshRaw, meshGuid)
	require.NoError(t, err)

	texOps, _ := r.Lookup("Texture")
	texGuid := guid.New()
	texRaw, _ := json.Marshal(texture{Name: "diffuse"})
	texMeta, err := texOps.LoadAsset(st, texRaw, texGuid)
	require.NoError(t, err)

	modelOps, _ := r.Lookup("Model")
	m := model{
		Meshes:   []guid.AssetRef[mesh]{guid.NewAssetRef[mesh](meshGuid)},
		Textures: []guid.AssetRef[texture]{guid.NewAssetRef[texture](texGuid)},
	}
	modelRaw, _ := json.Marshal(m)
	modelGuid := guid.New()
	modelMeta, err := modelOps.LoadAsset(st, modelRaw, modelGuid)
	require.NoError(t, err)

	resolve := func(g guid.Guid) (guid.MetaHandle, bool) {
		switch g {
		case meshGuid:
			return meshMeta, true
		case texGuid:
			return texMeta, true
		default:
			return guid.MetaHandle{}, false
		}
	}
	require.NoError(t, BindAsset(st, modelOps, modelMeta, resolve))

	var bound model
	err = modelOps.WithValue(st, modelMeta, func(v any) { bound = *v.(*model) })
	require.NoError(t, err)
	assert.True(t, bound.Meshes[0].IsBound())
	assert.True(t, bound.Textures[0].IsBound())

	require.NoError(t, UnbindAsset(st, modelOps, modelMeta))
	err = modelOps.WithValue(st, modelMeta, func(v any) { bound = *v.(*model) })
	require.NoError(t, err)
	assert.False(t, bound.Meshes[0].IsBound())
}

func TestBindAssetFailsLoudlyOnMissingChild(t *testing.T) {
	r := buildRegistry(t)
	st := storage.New()

	modelOps, _ := r.Lookup("Model")
	missingGuid := guid.New()
	m := model{Meshes: []guid.AssetRef[mesh]{guid.NewAssetRef[mesh](missingGuid)}}
	modelRaw, _ := json.Marshal(m)
	modelMeta, err := modelOps.LoadAsset(st, modelRaw, guid.New())
	require.NoError(t, err)

	resolve := func(guid.Guid) (guid.MetaHandle, bool) { return guid.MetaHandle{}, false }
	err = BindAsset(st, modelOps, modelMeta, resolve)
	require.Error(t, err)
	var missing *MissingRefError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, missingGuid, missing.Ref)
}

func TestCollectAssetRefs(t *testing.T) {
	r := buildRegistry(t)
	modelOps, _ := r.Lookup("Model")

	g1, g2 := guid.New(), guid.New()
	m := &model{
		Meshes:   []guid.AssetRef[mesh]{guid.NewAssetRef[mesh](g1)},
		Textures: []guid.AssetRef[texture]{guid.NewAssetRef[texture](g2)},
	}
	refs := CollectAssetRefs(modelOps, m)
	assert.ElementsMatch(t, []guid.Guid{g1, g2}, refs)
}
