package assetindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cuemby/forgeassets/pkg/log"
	"github.com/cuemby/forgeassets/pkg/metrics"
)

// Index owns the current scan snapshot and the root it was built from.
// Scan is safe to call concurrently with reads of Current; Current always
// returns a complete, self-consistent Data (spec.md I5).
type Index struct {
	root     string
	current  atomic.Pointer[Data]
	cache    *Cache // optional, nil if no on-disk cache was configured
	scanning atomic.Bool
}

// New constructs an Index rooted at root with an empty snapshot. Call Scan
// to populate it.
func New(root string) *Index {
	idx := &Index{root: root}
	idx.current.Store(newData(nil))
	return idx
}

// WithCache attaches an on-disk scan cache; subsequent Scan calls consult
// it to skip re-parsing unchanged files.
func (idx *Index) WithCache(c *Cache) *Index {
	idx.cache = c
	return idx
}

// Current returns the most recently published snapshot. Never nil.
func (idx *Index) Current() *Data {
	return idx.current.Load()
}

// Scan walks the asset tree rooted at idx.root in deterministic
// (lexicographic path) order, parses every *.meta.json sidecar, and
// publishes a new snapshot atomically. A per-file parse error is logged
// and that file skipped rather than aborting the whole scan. Returns
// ErrScanBusy instead of scanning if another Scan on this Index is already
// in progress.
func (idx *Index) Scan() error {
	if !idx.scanning.CompareAndSwap(false, true) {
		return ErrScanBusy
	}
	defer idx.scanning.Store(false)

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScanDuration)

	logger := log.WithComponent("assetindex")

	var entries []AssetEntry
	err := filepath.WalkDir(idx.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("walk error, skipping")
			metrics.ScanErrorsTotal.Inc()
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".json" || !isMetaFile(path) {
			return nil
		}

		entry, ok, parseErr := idx.loadEntry(path)
		if parseErr != nil {
			logger.Warn().Err(parseErr).Str("path", path).Msg("failed to parse meta file, skipping")
			metrics.ScanErrorsTotal.Inc()
			return nil
		}
		if ok {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}

	idx.current.Store(newData(entries))
	metrics.IndexedAssetsTotal.Set(float64(len(entries)))
	return nil
}

func isMetaFile(path string) bool {
	const suffix = ".meta.json"
	return len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix
}

func (idx *Index) loadEntry(absPath string) (AssetEntry, bool, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return AssetEntry{}, false, err
	}

	if idx.cache != nil {
		if cached, ok := idx.cache.Lookup(absPath, info.ModTime(), info.Size()); ok {
			rel, relErr := filepath.Rel(idx.root, absPath)
			if relErr != nil {
				rel = absPath
			}
			return AssetEntry{Meta: cached, RelativePath: filepath.ToSlash(rel), AbsolutePath: absPath}, true, nil
		}
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return AssetEntry{}, false, err
	}
	var meta AssetMetaData
	if err := json.Unmarshal(raw, &meta); err != nil {
		return AssetEntry{}, false, err
	}
	if !meta.Guid.Valid() {
		return AssetEntry{}, false, errInvalidGuid(absPath)
	}

	rel, err := filepath.Rel(idx.root, absPath)
	if err != nil {
		rel = absPath
	}

	if idx.cache != nil {
		idx.cache.Store(absPath, info.ModTime(), info.Size(), meta)
	}

	return AssetEntry{Meta: meta, RelativePath: filepath.ToSlash(rel), AbsolutePath: absPath}, true, nil
}
