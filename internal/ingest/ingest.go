// Package ingest implements the hierarchical bounded-concurrency ingestion
// pipeline: dataset, chromosome and write-batch levels, each driven by its
// own bounded worker pool through a wave scheduler, with cascade
// cancellation tearing everything down on failure or interrupt.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/epigenlab/trackstore/internal/attrib"
	"github.com/epigenlab/trackstore/internal/config"
	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/meta"
	"github.com/epigenlab/trackstore/internal/metrics"
	"github.com/epigenlab/trackstore/internal/pool"
	"github.com/epigenlab/trackstore/internal/procgroup"
	"github.com/epigenlab/trackstore/internal/store"
	"github.com/epigenlab/trackstore/internal/wave"
)

// Ingestor orchestrates one ingestion run.
type Ingestor struct {
	cfg     config.Config
	store   store.ArrayStore
	catalog *attrib.Catalog
	procs   *procgroup.Group
	runID   string
	log     *slog.Logger
}

// New creates an ingestor for the given store and attribute catalog.
func New(cfg config.Config, st store.ArrayStore, catalog *attrib.Catalog) *Ingestor {
	runID := uuid.New().String()[:8]
	return &Ingestor{
		cfg:     cfg,
		store:   st,
		catalog: catalog,
		procs:   procgroup.New(),
		runID:   runID,
		log:     logging.Component("ingest").With("run_id", runID),
	}
}

// Run ingests every dataset of the metadata table. Any failure aborts the
// whole run after best-effort cleanup; nothing already written is rolled
// back, and a rerun over partial results requires overwrite permission.
func (ing *Ingestor) Run(ctx context.Context) error {
	table, err := meta.LoadMetadata(ing.cfg.Metadata)
	if err != nil {
		return err
	}
	for _, col := range table.Columns {
		if _, ok := ing.catalog.Attribute(col); !ok {
			return fmt.Errorf("ingest: metadata column %q not in catalog %q", col, ing.catalog.Name)
		}
	}

	chroms, err := meta.LoadChromSizes(ing.cfg.ChromSizes)
	if err != nil {
		return err
	}

	// The group root is created once, up front; creating an existing group
	// is a no-op.
	if err := ing.store.CreateGroup(ctx, ""); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}

	ing.log.Info("starting ingestion",
		"datasets", len(table.Rows),
		"chromosomes", len(chroms),
		"catalog", ing.catalog.Name,
		"wave_size", ing.cfg.WaveSize,
		"dataset_pool", ing.cfg.DatasetPoolSize,
		"chromosome_pool", ing.cfg.ChromosomePoolSize,
		"write_pool", ing.cfg.WritePoolSize,
	)

	tasks := make([]wave.Task, len(table.Rows))
	for i, row := range table.Rows {
		task := IngestTask{Dataset: row.Dataset, Sources: row.Sources}
		tasks[i] = wave.Task{
			Name: "dataset " + row.Dataset,
			Run: func(taskCtx context.Context) error {
				return ing.ingestDataset(taskCtx, task, chroms)
			},
		}
	}

	datasetPool := pool.New("dataset", ing.cfg.DatasetPoolSize, ing.cfg.WaveSize)
	if err := wave.Run(ctx, "dataset", tasks, ing.cfg.WaveSize, datasetPool); err != nil {
		return ing.cascade(datasetPool, err)
	}
	datasetPool.Shutdown(true)

	ing.log.Info("ingestion complete", "datasets", len(table.Rows))
	return nil
}

// ingestDataset opens the dataset's attribute sources once, then fans its
// chromosomes out over the chromosome-level wave.
func (ing *Ingestor) ingestDataset(ctx context.Context, task IngestTask, chroms []meta.Chrom) error {
	log := logging.DatasetLogger(ing.runID, task.Dataset)
	log.Info("ingesting dataset", "attributes", len(task.Sources))

	handles := make(map[string]attrib.Handle, len(task.Sources))
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()
	for name, src := range task.Sources {
		h, err := ing.catalog.Open(ctx, name, src, ing.procs)
		if err != nil {
			return fmt.Errorf("dataset %s: open %s: %w", task.Dataset, name, err)
		}
		handles[name] = h
	}

	tasks := make([]wave.Task, len(chroms))
	for i, chrom := range chroms {
		ct := ChromTask{
			Dataset:   task.Dataset,
			Chrom:     chrom.Name,
			Size:      chrom.Size,
			ArrayPath: fmt.Sprintf("%s.%s", task.Dataset, chrom.Name),
			Handles:   handles,
		}
		tasks[i] = wave.Task{
			Name: ct.ArrayPath,
			Run: func(taskCtx context.Context) error {
				return ing.processChrom(taskCtx, ct)
			},
		}
	}

	chromPool := pool.New("chromosome", ing.cfg.ChromosomePoolSize, ing.cfg.WaveSize)
	if err := wave.Run(ctx, "chromosome", tasks, ing.cfg.WaveSize, chromPool); err != nil {
		return ing.cascade(chromPool, fmt.Errorf("dataset %s: %w", task.Dataset, err))
	}
	chromPool.Shutdown(true)

	log.Info("dataset complete", "chromosomes", len(chroms))
	return nil
}

// processChrom provisions the target array, parses the dataset's attribute
// values for this chromosome, and hands the bundle to the write stage. The
// bundle is owned by this task until writeAll takes it; nothing reads it
// here afterwards.
func (ing *Ingestor) processChrom(ctx context.Context, task ChromTask) error {
	log := logging.ChromLogger(ing.runID, task.Dataset, task.Chrom)

	mode, err := ing.provision(ctx, task.ArrayPath, task.Size)
	if err != nil {
		return err
	}

	bundle := make(map[string][]float64, len(task.Handles))
	for name, h := range task.Handles {
		vals, err := ing.catalog.Parse(name, h, task.Chrom, task.Size)
		if err != nil {
			return fmt.Errorf("%s: parse %s: %w", task.ArrayPath, name, err)
		}
		bundle[name] = vals
		log.Debug("parsed attribute", "attribute", name)
	}

	return ing.writeAll(ctx, task.ArrayPath, task.Size, bundle, mode)
}

// cascade is the cancellation protocol run at every nesting level on
// failure or interrupt: shut the active pool down without waiting, then
// terminate every descendant OS process, then hand the failure upward.
func (ing *Ingestor) cascade(p *pool.Pool, err error) error {
	if m := metrics.Get(); m != nil {
		m.CascadeCancellations.Inc()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ing.log.Warn("interrupted, cancelling in-flight work", "error", err)
	} else {
		ing.log.Error("failure, cancelling in-flight work", "error", err)
	}
	p.Shutdown(false)
	ing.procs.TerminateAll()
	return err
}

// ProcessGroup exposes the run's process group, used by the command layer
// for final teardown on interrupt.
func (ing *Ingestor) ProcessGroup() *procgroup.Group {
	return ing.procs
}
