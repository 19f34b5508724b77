package store

import (
	"encoding/json"
	"fmt"

	"ragpipe/internal/domain"
)

// CurrentSchemaVersion is the on-disk layout version. Indexes written by
// another version are rejected rather than migrated.
const CurrentSchemaVersion = 1

const manifestKey = "manifest"

// storedManifest is the persisted form of an index manifest.
type storedManifest struct {
	Version int `json:"version"`
	domain.IndexManifest
}

// reconcileManifest compares the persisted manifest (nil if none) with
// the requested one. It returns the bytes to persist when the index is
// new, or nil when the stored manifest already matches.
func reconcileManifest(stored []byte, requested domain.IndexManifest) ([]byte, error) {
	if err := requested.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreInit, err)
	}

	if len(stored) == 0 {
		data, err := json.Marshal(storedManifest{Version: CurrentSchemaVersion, IndexManifest: requested})
		if err != nil {
			return nil, fmt.Errorf("%w: encode manifest: %v", domain.ErrStoreInit, err)
		}
		return data, nil
	}

	var info storedManifest
	if err := json.Unmarshal(stored, &info); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest: %v", domain.ErrStoreInit, err)
	}
	if info.Version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: index schema v%d, this build reads v%d; rebuild the index",
			domain.ErrStoreInit, info.Version, CurrentSchemaVersion)
	}
	if err := info.IndexManifest.Compatible(requested); err != nil {
		return nil, err
	}
	return nil, nil
}
