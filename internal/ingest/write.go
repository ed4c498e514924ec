package ingest

import (
	"context"
	"fmt"
	"math"

	"github.com/epigenlab/trackstore/internal/metrics"
	"github.com/epigenlab/trackstore/internal/pool"
	"github.com/epigenlab/trackstore/internal/wave"
)

// batchRange is one contiguous slice of the coordinate domain.
type batchRange struct {
	Start uint64
	End   uint64
}

// makeBatches partitions [0, size) into contiguous ranges of batchSize.
// The ranges are disjoint, cover the domain exactly, and only the final
// range may be shorter.
func makeBatches(size, batchSize uint64) []batchRange {
	if batchSize == 0 {
		batchSize = size
	}
	var out []batchRange
	for start := uint64(0); start < size; start += batchSize {
		end := start + batchSize
		if end > size {
			end = size
		}
		out = append(out, batchRange{Start: start, End: end})
	}
	return out
}

// nanColumn returns a full-domain column of missing values.
func nanColumn(size uint64) []float64 {
	vals := make([]float64, size)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return vals
}

// writeAll writes one chromosome's attribute bundle to its array through
// the write-level wave.
//
// On a first-time write, configured attributes absent from the bundle are
// filled with NaN so every array column is always populated. When updating,
// the full existing content is read back first and the new columns overlaid
// on it: attributes not in the bundle keep their previous values, attributes
// in the bundle replace the whole previous column. (The full-array read is a
// known memory tradeoff, kept deliberately.)
func (ing *Ingestor) writeAll(ctx context.Context, arrayPath string, size uint64, bundle map[string][]float64, mode Mode) error {
	log := ing.log.With("array", arrayPath)

	if mode == Updating {
		r, err := ing.store.OpenForRead(ctx, arrayPath)
		if err != nil {
			return fmt.Errorf("open %s for update read: %w", arrayPath, err)
		}
		existing, err := r.ReadAll(ctx)
		r.Close()
		if err != nil {
			return fmt.Errorf("read %s before update: %w", arrayPath, err)
		}
		for name, vals := range bundle {
			existing[name] = vals
		}
		bundle = existing
		log.Debug("loaded existing content for update overlay")
	} else {
		for _, name := range ing.catalog.Names() {
			if _, ok := bundle[name]; !ok {
				bundle[name] = nanColumn(size)
			}
		}
	}

	ranges := makeBatches(size, ing.cfg.WriteBatchSize)
	tasks := make([]wave.Task, len(ranges))
	for i, r := range ranges {
		batch := &writeBatch{
			Start:   r.Start,
			End:     r.End,
			Columns: make(map[string][]float64, len(bundle)),
		}
		for name, vals := range bundle {
			batch.Columns[name] = vals[r.Start:r.End]
		}
		tasks[i] = wave.Task{
			Name: fmt.Sprintf("%s[%d:%d]", arrayPath, r.Start, r.End),
			Run:  ing.writeBatchTask(arrayPath, batch),
		}
	}

	writePool := pool.New("write", ing.cfg.WritePoolSize, ing.cfg.WaveSize)
	if err := wave.Run(ctx, "write", tasks, ing.cfg.WaveSize, writePool); err != nil {
		return ing.cascade(writePool, err)
	}
	writePool.Shutdown(true)

	log.Info("wrote array", "batches", len(ranges), "attributes", len(bundle))
	return nil
}

// writeBatchTask writes one batch's columns to its coordinate range. Batch
// memory is released on completion regardless of outcome.
func (ing *Ingestor) writeBatchTask(arrayPath string, batch *writeBatch) pool.Task {
	return func(ctx context.Context) error {
		defer func() { batch.Columns = nil }()

		w, err := ing.store.OpenForWrite(ctx, arrayPath)
		if err != nil {
			return fmt.Errorf("open %s for write: %w", arrayPath, err)
		}
		defer w.Close()

		if err := w.Assign(ctx, batch.Start, batch.End, batch.Columns); err != nil {
			return fmt.Errorf("write %s [%d:%d]: %w", arrayPath, batch.Start, batch.End, err)
		}

		if m := metrics.Get(); m != nil {
			m.BatchesWritten.Inc()
			m.CellsWritten.Add(float64((batch.End - batch.Start) * uint64(len(batch.Columns))))
		}
		return nil
	}
}
