package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epigenlab/trackstore/internal/metrics"
	"github.com/epigenlab/trackstore/internal/store"
)

// Mode is the outcome of provisioning one target array.
type Mode int

const (
	// Created means the array was allocated fresh; this is the first write.
	Created Mode = iota
	// Updating means an existing array will be overlaid in place.
	Updating
)

// ErrArrayExists is the provisioning conflict: the target array exists and
// overwriting was not permitted.
var ErrArrayExists = errors.New("array already exists; rerun with --overwrite to update it")

// provision decides, for one target array, whether to create it fresh or
// update it in place. Each array path is provisioned exactly once, before
// any write batch targets it.
//
// Absent            -> Created (always legal)
// Existing, no perm -> ErrArrayExists
// Existing, perm    -> Updating
func (ing *Ingestor) provision(ctx context.Context, path string, size uint64) (Mode, error) {
	t, err := ing.store.ObjectType(ctx, path)
	if err != nil {
		return Created, fmt.Errorf("probe %s: %w", path, err)
	}

	switch t {
	case store.ObjectArray:
		if !ing.cfg.OverwritePermitted {
			return Created, fmt.Errorf("%w: %s", ErrArrayExists, path)
		}
		ing.log.Warn("array exists, updating in place", "array", path)
		if m := metrics.Get(); m != nil {
			m.ArraysUpdated.Inc()
		}
		return Updating, nil

	case store.ObjectAbsent:
		// Cap the tile at the domain so short chromosomes don't get a
		// single oversized tile.
		tile := ing.cfg.TileSize
		if tile > size {
			tile = size
		}
		schema := store.Schema{
			Domain:      size,
			Tile:        tile,
			Attributes:  ing.catalog.Schemas(),
			Compression: ing.cfg.Compression,
			CreatedAt:   time.Now().UTC(),
		}
		if err := ing.store.CreateDenseArray(ctx, path, schema); err != nil {
			return Created, fmt.Errorf("create %s: %w", path, err)
		}
		ing.log.Info("created array", "array", path, "domain", size, "tile", tile)
		if m := metrics.Get(); m != nil {
			m.ArraysCreated.Inc()
		}
		return Created, nil

	default:
		return Created, fmt.Errorf("ingest: %s holds a %s, not an array", path, t)
	}
}
