package forgeassets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/config"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type texture struct {
	Path string
}

func buildTestRegistry(t *testing.T) *metaregistry.Registry {
	t.Helper()
	reg := metaregistry.NewRegistry()
	err := metaregistry.Register(reg, "Texture", metaregistry.AssetOptions[texture]{
		DisplayName: "Texture",
		Deserialize: func(raw []byte) (texture, error) {
			var v texture
			err := json.Unmarshal(raw, &v)
			return v, err
		},
		Serialize: func(v texture) ([]byte, error) { return json.Marshal(v) },
	})
	require.NoError(t, err)
	reg.Freeze()
	return reg
}

func writeTestAsset(t *testing.T, assetRoot string) guid.Guid {
	t.Helper()
	require.NoError(t, os.MkdirAll(assetRoot, 0o755))
	g := guid.New()
	meta := assetindex.AssetMetaData{Guid: g, Name: "brick", TypeName: "Texture"}
	metaRaw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(assetRoot, "brick.meta.json"), metaRaw, 0o644))
	payloadRaw, err := json.Marshal(texture{Path: "brick.png"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(assetRoot, "brick.json"), payloadRaw, 0o644))
	return g
}

func TestNewRejectsUnfrozenRegistry(t *testing.T) {
	reg := metaregistry.NewRegistry()
	dir := t.TempDir()
	_, err := New(config.EngineConfig{AssetRoot: dir, BatchesRoot: dir, WorkerPoolSize: 2}, reg, nil)
	assert.Error(t, err)
}

func TestEngineWiresAndRunsBatchLifecycle(t *testing.T) {
	assetRoot := t.TempDir()
	batchesRoot := t.TempDir()
	textureGuid := writeTestAsset(t, assetRoot)

	reg := buildTestRegistry(t)
	engine, err := New(config.EngineConfig{
		AssetRoot:      assetRoot,
		BatchesRoot:    batchesRoot,
		WorkerPoolSize: 2,
	}, reg, nil)
	require.NoError(t, err)
	defer engine.Close()

	id := engine.Batches.CreateBatch("demo")
	raw, err := json.Marshal(struct {
		ID       string      `json:"id"`
		Name     string      `json:"name"`
		Assets   []guid.Guid `json:"assets"`
		Entities []any       `json:"entities"`
	}{ID: id.String(), Name: "demo", Assets: []guid.Guid{textureGuid}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(batchesRoot, id.String()+".json"), raw, 0o644))

	result := engine.Batches.QueueLoad(id).Get()
	require.True(t, result.Success)

	info, ok := engine.Batches.Get(id)
	require.True(t, ok)
	assert.Contains(t, info.AssetClosure, textureGuid)

	engine.WaitIdle()

	sizes := engine.Resources.PoolSizes()
	assert.Equal(t, 1, sizes["Texture"])

	unloadResult := engine.Batches.QueueUnload(id).Get()
	assert.True(t, unloadResult.Success)
}
