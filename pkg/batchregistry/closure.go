package batchregistry

import (
	"fmt"

	"github.com/cuemby/forgeassets/pkg/assetindex"
	"github.com/cuemby/forgeassets/pkg/guid"
	"github.com/cuemby/forgeassets/pkg/metaregistry"
)

// computeClosure expands header-declared asset roots into the full
// transitive asset closure (spec.md §4.5 step 1: union of contained_assets
// reachable from the roots), then augments it with any guid an entity
// component references via VisitAssetRefs that the header closure missed
// ("closure correctness", §4.5). augmented reports whether augmentation
// occurred, so the caller can persist the widened closure back to the
// batch file on save. Reference cycles terminate naturally via the seen
// set — a guid enqueued once is never re-walked or re-expanded, so a
// cycle just collapses to its first visit rather than needing a distinct
// error (see DESIGN.md's Open Questions for why no ErrCyclicReference
// exists).
func computeClosure(idx *assetindex.Index, reg *metaregistry.Registry, header []guid.Guid, entities []entityDesc) (closure []guid.Guid, augmented bool, err error) {
	data := idx.Current()
	seen := make(map[guid.Guid]bool)
	var queue []guid.Guid

	enqueue := func(g guid.Guid) {
		if !g.Valid() || seen[g] {
			return
		}
		seen[g] = true
		queue = append(queue, g)
	}
	expand := func(from int) {
		for i := from; i < len(queue); i++ {
			entry, ok := data.ByGuid[queue[i]]
			if !ok {
				continue // not indexed; surfaces as a load failure downstream
			}
			for _, child := range entry.Meta.ContainedAssets {
				enqueue(child)
			}
		}
	}

	for _, g := range header {
		enqueue(g)
	}
	expand(0)

	augmentFrom := len(queue)
	for _, desc := range entities {
		for _, comp := range desc.Components {
			ops, ok := reg.Lookup(comp.TypeName)
			if !ok {
				return nil, false, fmt.Errorf("batchregistry: unknown component type %q", comp.TypeName)
			}
			value, err := ops.Deserialize(comp.Data)
			if err != nil {
				return nil, false, fmt.Errorf("batchregistry: deserialize %q: %w", comp.TypeName, err)
			}
			for _, ref := range metaregistry.CollectAssetRefs(ops, value) {
				if !seen[ref] {
					augmented = true
				}
				enqueue(ref)
			}
		}
	}
	expand(augmentFrom)

	return queue, augmented, nil
}
