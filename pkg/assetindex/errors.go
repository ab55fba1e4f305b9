package assetindex

import (
	"errors"
	"fmt"
)

func errInvalidGuid(path string) error {
	return fmt.Errorf("assetindex: %s: meta file has no valid guid", path)
}

// ErrScanBusy is returned by Scan when another Scan is already in progress
// on the same Index (spec.md §4.2 step 1/5, error taxonomy "ScanBusy").
var ErrScanBusy = errors.New("assetindex: scan already in progress")
