package batchregistry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/executor"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
	"github.com/cuemby/forgeassets/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mesh struct {
	Vertices []float32
}

// link is an entity component holding a reference to a mesh asset, used to
// exercise closure augmentation and the asset-ref pass.
type link struct {
	Mesh guid.AssetRef[mesh]
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

func buildRegistry(t *testing.T) *metaregistry.Registry {
	t.Helper()
	r := metaregistry.NewRegistry()

	meshDeser, meshSer := jsonCodec[mesh]()
	require.NoError(t, metaregistry.Register(r, "Mesh", metaregistry.AssetOptions[mesh]{
		DisplayName: "Mesh",
		Deserialize: meshDeser,
		Serialize:   meshSer,
	}))

	linkDeser, linkSer := jsonCodec[link]()
	require.NoError(t, metaregistry.RegisterComponent(r, "Link", metaregistry.ComponentOptions[link]{
		DisplayName: "Link",
		Deserialize: linkDeser,
		Serialize:   linkSer,
		VisitAssetRefs: func(v *link, visit metaregistry.AssetRefVisitFunc) {
			visit(v.Mesh.Guid, func(h guid.MetaHandle) {
				th, ok := guid.HandleFromMeta[mesh](h, "Mesh")
				if ok {
					v.Mesh.Handle = th
				} else {
					v.Mesh.Unbind()
				}
			})
		},
	}))

	r.Freeze()
	return r
}

func writeAsset(t *testing.T, root, relDir, name, typeName string, payload any) guid.Guid {
	t.Helper()
	dir := filepath.Join(root, relDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	g := guid.New()
	meta := assetindex.AssetMetaData{Guid: g, Name: name, TypeName: typeName}
	metaRaw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".meta.json"), metaRaw, 0o644))

	payloadRaw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), payloadRaw, 0o644))
	return g
}

func writeBatchFile(t *testing.T, batchesRoot string, id BatchID, file batchFile) {
	t.Helper()
	require.NoError(t, os.MkdirAll(batchesRoot, 0o755))
	raw, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(batchesRoot, id.String()+".json"), raw, 0o644))
}

type testRig struct {
	reg         *Registry
	pool        *executor.Pool
	st          *storage.Storage
	metaReg     *metaregistry.Registry
	idx         *assetindex.Index
	entities    *entity.InMemoryManager
	batchesRoot string
}

func newRig(t *testing.T, assetRoot string) *testRig {
	t.Helper()
	metaReg := buildRegistry(t)
	st := storage.New()
	storage.Assure[mesh](st, "Mesh")

	idx := assetindex.New(assetRoot)
	require.NoError(t, idx.Scan())

	pool := executor.NewPool(2)
	rm := resourcemanager.New(st, idx, metaReg, pool, nil)
	entities := entity.NewInMemoryManager()
	batchesRoot := filepath.Join(t.TempDir(), "batches")

	reg := New(batchesRoot, pool, rm, metaReg, idx, entities, nil)
	return &testRig{reg: reg, pool: pool, st: st, metaReg: metaReg, idx: idx, entities: entities, batchesRoot: batchesRoot}
}

func TestLoadAndUnloadRoundTrip(t *testing.T) {
	assetRoot := t.TempDir()
	meshGuid := writeAsset(t, assetRoot, "meshes", "cube", "Mesh", mesh{Vertices: []float32{1, 2, 3}})

	rig := newRig(t, assetRoot)
	defer rig.pool.Stop()

	id := rig.reg.CreateBatch("level-1")
	entityGuid := guid.New()
	writeBatchFile(t, rig.batchesRoot, id, batchFile{
		ID:     id.String(),
		Name:   "level-1",
		Assets: []guid.Guid{meshGuid},
		Entities: []entityDesc{
			{Guid: entityGuid, Name: "hero"},
		},
	})

	result := rig.reg.QueueLoad(id).Get()
	require.True(t, result.Success)

	info, ok := rig.reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateLoaded, info.State)
	assert.Len(t, info.Live, 1)
	assert.ElementsMatch(t, []guid.Guid{meshGuid}, info.AssetClosure)

	unloadResult := rig.reg.QueueUnload(id).Get()
	assert.True(t, unloadResult.Success)

	info, ok = rig.reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateUnloaded, info.State)
	assert.Empty(t, info.Live)
	assert.False(t, storage.ValidateMeta(rig.st, mustHandle(t, rig, meshGuid, false)))
}

func TestLoadAugmentsClosureFromEntityComponentAssetRef(t *testing.T) {
	assetRoot := t.TempDir()
	meshGuid := writeAsset(t, assetRoot, "meshes", "cube", "Mesh", mesh{Vertices: []float32{1}})

	rig := newRig(t, assetRoot)
	defer rig.pool.Stop()

	id := rig.reg.CreateBatch("level-1")
	entityGuid := guid.New()
	linkRaw, err := json.Marshal(link{Mesh: guid.NewAssetRef[mesh](meshGuid)})
	require.NoError(t, err)

	// The header closure deliberately omits meshGuid; only the entity's
	// Link component references it.
	writeBatchFile(t, rig.batchesRoot, id, batchFile{
		ID:   id.String(),
		Name: "level-1",
		Entities: []entityDesc{
			{Guid: entityGuid, Name: "hero", Components: []componentDesc{
				{TypeName: "Link", Data: linkRaw},
			}},
		},
	})

	result := rig.reg.QueueLoad(id).Get()
	require.True(t, result.Success)

	info, ok := rig.reg.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateLoaded, info.State)
	assert.Contains(t, info.AssetClosure, meshGuid)

	rig.entities.VisitComponents(info.Live[0].Entity, func(typeName string, value any) {
		l, ok := value.(*link)
		require.True(t, ok)
		assert.Equal(t, typeName, "Link")
		assert.True(t, l.Mesh.IsBound())
	})
}

func TestQueueCreateEntityRejectedWhileLoading(t *testing.T) {
	assetRoot := t.TempDir()
	rig := newRig(t, assetRoot)
	defer rig.pool.Stop()

	id := rig.reg.CreateBatch("level-1")
	rig.reg.transition(id, StateLoading)

	fut := rig.reg.QueueCreateEntity(id, "late-entity", entity.Invalid)
	ref := fut.Get()
	assert.False(t, ref.IsBound())
}

func TestListBatchesReturnsSnapshot(t *testing.T) {
	assetRoot := t.TempDir()
	rig := newRig(t, assetRoot)
	defer rig.pool.Stop()

	id1 := rig.reg.CreateBatch("a")
	id2 := rig.reg.CreateBatch("b")

	batches := rig.reg.ListBatches()
	assert.Len(t, batches, 2)
	ids := []guid.Guid{batches[0].ID, batches[1].ID}
	assert.ElementsMatch(t, []guid.Guid{id1, id2}, ids)
}

func mustHandle(t *testing.T, rig *testRig, g guid.Guid, wantOK bool) guid.MetaHandle {
	t.Helper()
	h, ok := storage.HandleForGUIDMeta(rig.st, g)
	if wantOK {
		require.True(t, ok)
	}
	return h
}
