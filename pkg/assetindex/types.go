// Package assetindex scans an asset tree's *.meta.json sidecar files into
// an immutable, atomically-published snapshot (spec.md §4.2): an ordered
// list of entries plus derived by-guid/by-type/by-parent maps. Readers
// always see a complete snapshot, never a partially-built one, because
// publication is a single atomic pointer swap (spec.md I5).
package assetindex

import (
	"github.com/cuemby/forgeassets/pkg/guid"
)

// AssetMetaData is the parsed contents of one *.meta.json sidecar file.
type AssetMetaData struct {
	Guid            guid.Guid   `json:"guid"`
	GuidParent      guid.Guid   `json:"guid_parent"`
	Name            string      `json:"name"`
	TypeName        string      `json:"type_name"`
	ContainedAssets []guid.Guid `json:"contained_assets"`
}

// AssetEntry is one scanned asset: its metadata plus where it lives on disk.
type AssetEntry struct {
	Meta         AssetMetaData
	RelativePath string // relative to the scanned root, using "/" separators
	AbsolutePath string // the *.meta.json file's full disk path
}

// PayloadPath returns the path to the asset's payload file: the sibling of
// the meta file with the ".meta.json" suffix replaced by ".json" (spec.md
// §4.2, "derive base.json path").
func (e AssetEntry) PayloadPath() string {
	const suffix = ".meta.json"
	if len(e.AbsolutePath) >= len(suffix) && e.AbsolutePath[len(e.AbsolutePath)-len(suffix):] == suffix {
		return e.AbsolutePath[:len(e.AbsolutePath)-len(suffix)] + ".json"
	}
	return e.AbsolutePath
}

// Data is one immutable scan snapshot. Never mutated after Scan publishes
// it; a re-scan builds a brand new Data and swaps the pointer.
type Data struct {
	Entries  []AssetEntry
	ByGuid   map[guid.Guid]AssetEntry
	ByType   map[string][]guid.Guid
	ByParent map[guid.Guid][]guid.Guid
}

func newData(entries []AssetEntry) *Data {
	d := &Data{
		Entries:  entries,
		ByGuid:   make(map[guid.Guid]AssetEntry, len(entries)),
		ByType:   make(map[string][]guid.Guid),
		ByParent: make(map[guid.Guid][]guid.Guid),
	}
	for _, e := range entries {
		d.ByGuid[e.Meta.Guid] = e
		d.ByType[e.Meta.TypeName] = append(d.ByType[e.Meta.TypeName], e.Meta.Guid)
		if e.Meta.GuidParent.Valid() {
			d.ByParent[e.Meta.GuidParent] = append(d.ByParent[e.Meta.GuidParent], e.Meta.Guid)
		}
	}
	return d
}
