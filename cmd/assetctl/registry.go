package main

import (
	"encoding/json"

	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
)

// The concrete asset types a real game ships are project-specific; assetctl
// bundles a minimal Mesh/Texture/Model trio so scan/batch/serve work out of
// the box against any asset tree laid out in the same shape as
// pkg/resourcemanager's tests, matching the "visit_assets<Visitor> over
// eeng::mock::Model" example in the original engine.
type mesh struct {
	Vertices []float32 `json:"vertices"`
}

type texture struct {
	Path string `json:"path"`
}

type model struct {
	Meshes   []guid.AssetRef[mesh]    `json:"meshes"`
	Textures []guid.AssetRef[texture] `json:"textures"`
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

func buildRegistry() (*metaregistry.Registry, error) {
	reg := metaregistry.NewRegistry()

	meshDeser, meshSer := jsonCodec[mesh]()
	if err := metaregistry.Register(reg, "Mesh", metaregistry.AssetOptions[mesh]{
		DisplayName: "Mesh",
		Deserialize: meshDeser,
		Serialize:   meshSer,
	}); err != nil {
		return nil, err
	}

	texDeser, texSer := jsonCodec[texture]()
	if err := metaregistry.Register(reg, "Texture", metaregistry.AssetOptions[texture]{
		DisplayName: "Texture",
		Deserialize: texDeser,
		Serialize:   texSer,
	}); err != nil {
		return nil, err
	}

	modelDeser, modelSer := jsonCodec[model]()
	if err := metaregistry.Register(reg, "Model", metaregistry.AssetOptions[model]{
		DisplayName: "Model",
		Deserialize: modelDeser,
		Serialize:   modelSer,
		VisitAssetRefs: func(v *model, visit metaregistry.AssetRefVisitFunc) {
			for i := range v.Meshes {
				ref := &v.Meshes[i]
				visit(ref.Guid, func(h guid.MetaHandle) {
					if th, ok := guid.HandleFromMeta[mesh](h, "Mesh"); ok {
						ref.Handle = th
					} else {
						ref.Unbind()
					}
				})
			}
			for i := range v.Textures {
				ref := &v.Textures[i]
				visit(ref.Guid, func(h guid.MetaHandle) {
					if th, ok := guid.HandleFromMeta[texture](h, "Texture"); ok {
						ref.Handle = th
					} else {
						ref.Unbind()
					}
				})
			}
		},
	}); err != nil {
		return nil, err
	}

	reg.Freeze()
	return reg, nil
}
