// Package batchregistry owns the collection of batches and the per-batch
// serial state machine that coordinates ResourceManager and EntityManager
// to load and unload a batch's assets and entities together (spec.md §4.5).
package batchregistry

import (
	"encoding/json"

	"github.com/cuemby/forgeassets/pkg/entity"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/resourcemanager"
)

// BatchID identifies one batch, durable across save/load the same way an
// asset's Guid is.
type BatchID = guid.Guid

// BatchState is one node of the per-batch state machine.
type BatchState string

const (
	StateUnloaded  BatchState = "unloaded"
	StateQueued    BatchState = "queued"
	StateLoading   BatchState = "loading"
	StateLoaded    BatchState = "loaded"
	StateUnloading BatchState = "unloading"
	StateError     BatchState = "error"
)

// BatchInfo is the registry's live view of one batch.
type BatchInfo struct {
	ID           BatchID
	Name         string
	Filename     string
	AssetClosure []guid.Guid
	Live         []entity.EntityRef
	State        BatchState
	LastResult   resourcemanager.TaskResult
}

// componentDesc is one entity component as it appears in a batch file: a
// type name MetaRegistry can look up, plus its raw serialized payload.
type componentDesc struct {
	TypeName string          `json:"type_name"`
	Data     json.RawMessage `json:"data"`
}

// entityDesc is one entity as it appears in a batch file.
type entityDesc struct {
	Guid       guid.Guid       `json:"guid"`
	Name       string          `json:"name"`
	Parent     guid.Guid       `json:"parent,omitempty"`
	Components []componentDesc `json:"components"`
}

// batchFile is the on-disk shape of "<batches_root>/<id>.json" (spec.md §6:
// "per-batch file {id,name,entities,assets}").
type batchFile struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Assets   []guid.Guid  `json:"assets"`
	Entities []entityDesc `json:"entities"`
}

// indexEntry is one row of "<batches_root>/index.json".
type indexEntry struct {
	ID       guid.Guid `json:"id"`
	Name     string    `json:"name"`
	Filename string    `json:"filename"`
}
