// Package export renders stored arrays into analyst-friendly formats.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/epigenlab/trackstore/internal/store"
)

// SignalRow is one exported cell in long format: a coordinate, an attribute
// name, and its value. NaN marks cells never written.
type SignalRow struct {
	Coord     uint64  `parquet:"coord"`
	Attribute string  `parquet:"attribute,dict"`
	Value     float64 `parquet:"value"`
}

// writeChunkSize bounds rows buffered per parquet write call.
const writeChunkSize = 1 << 16

// Parquet exports the coordinate range [start, end) of an array as a long
// format parquet table and returns the number of rows written.
func Parquet(ctx context.Context, r store.Reader, w io.Writer, start, end uint64, compression string) (int64, error) {
	schema := r.Schema()
	if end == 0 {
		end = schema.Domain
	}

	cols, err := r.Read(ctx, start, end)
	if err != nil {
		return 0, err
	}

	codec, err := codecFor(compression)
	if err != nil {
		return 0, err
	}
	pw := parquet.NewGenericWriter[SignalRow](w, codec)

	var written int64
	chunk := make([]SignalRow, 0, writeChunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if _, err := pw.Write(chunk); err != nil {
			return fmt.Errorf("export: write rows: %w", err)
		}
		written += int64(len(chunk))
		chunk = chunk[:0]
		return nil
	}

	// Attribute-major, coordinate-ascending within each attribute, in
	// schema order so exports are deterministic.
	for _, attr := range schema.Attributes {
		vals := cols[attr.Name]
		for i, v := range vals {
			chunk = append(chunk, SignalRow{
				Coord:     start + uint64(i),
				Attribute: attr.Name,
				Value:     v,
			})
			if len(chunk) == writeChunkSize {
				if err := flush(); err != nil {
					return written, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}

	if err := pw.Close(); err != nil {
		return written, fmt.Errorf("export: close writer: %w", err)
	}
	return written, nil
}

func codecFor(compression string) (parquet.WriterOption, error) {
	switch compression {
	case "", "snappy":
		return parquet.Compression(&parquet.Snappy), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	case "none":
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("export: unsupported parquet compression %q", compression)
	}
}
