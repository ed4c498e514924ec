package ingest

import (
	"github.com/epigenlab/trackstore/internal/attrib"
)

// IngestTask is one dataset of the metadata table, the unit of work for the
// dataset-level wave.
type IngestTask struct {
	Dataset string
	Sources map[string]string // attribute name -> source file path
}

// ChromTask is one (dataset, chromosome) pair, the unit of work for the
// chromosome-level wave. Handles are the dataset's opened attribute sources,
// shared read-only across the dataset's chromosome tasks.
type ChromTask struct {
	Dataset   string
	Chrom     string
	Size      uint64
	ArrayPath string
	Handles   map[string]attrib.Handle
}

// writeBatch is one contiguous coordinate range of the write-level wave.
// Columns are subslices of the chromosome's attribute bundle; the write task
// drops them on completion.
type writeBatch struct {
	Start   uint64
	End     uint64
	Columns map[string][]float64
}
