package export

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"gocloud.dev/blob/memblob"

	"github.com/epigenlab/trackstore/internal/store"
)

func seedArray(t *testing.T) store.Reader {
	t.Helper()
	ctx := context.Background()
	s := store.NewBucketStore(memblob.OpenBucket(nil))
	t.Cleanup(func() { s.Close() })

	schema := store.Schema{
		Domain: 10,
		Tile:   4,
		Attributes: []store.AttributeSchema{
			{Name: "signal", Dtype: store.DtypeFloat64},
			{Name: "peaks", Dtype: store.DtypeFloat64},
		},
		Compression: "none",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateDenseArray(ctx, "a", schema); err != nil {
		t.Fatal(err)
	}

	signal := make([]float64, 10)
	peaks := make([]float64, 10)
	for i := range signal {
		signal[i] = float64(i) * 1.5
		peaks[i] = float64(i % 2)
	}
	w, err := s.OpenForWrite(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Assign(ctx, 0, 10, map[string][]float64{"signal": signal, "peaks": peaks}); err != nil {
		t.Fatal(err)
	}

	r, err := s.OpenForRead(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestParquetFullDomain(t *testing.T) {
	r := seedArray(t)

	var buf bytes.Buffer
	rows, err := Parquet(context.Background(), r, &buf, 0, 0, "snappy")
	if err != nil {
		t.Fatalf("Parquet: %v", err)
	}
	if rows != 20 {
		t.Fatalf("rows = %d, want 20 (2 attributes x 10 coords)", rows)
	}

	got, err := parquet.Read[SignalRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("read %d rows, want 20", len(got))
	}

	// Attribute-major in schema order, coordinates ascending.
	if got[0].Attribute != "signal" || got[0].Coord != 0 || got[0].Value != 0 {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if got[9].Attribute != "signal" || got[9].Coord != 9 || got[9].Value != 13.5 {
		t.Fatalf("row 9 = %+v", got[9])
	}
	if got[10].Attribute != "peaks" || got[10].Coord != 0 || got[10].Value != 0 {
		t.Fatalf("row 10 = %+v", got[10])
	}
	if got[13].Attribute != "peaks" || got[13].Coord != 3 || got[13].Value != 1 {
		t.Fatalf("row 13 = %+v", got[13])
	}
}

func TestParquetSubrange(t *testing.T) {
	r := seedArray(t)

	var buf bytes.Buffer
	rows, err := Parquet(context.Background(), r, &buf, 3, 7, "zstd")
	if err != nil {
		t.Fatalf("Parquet: %v", err)
	}
	if rows != 8 {
		t.Fatalf("rows = %d, want 8", rows)
	}

	got, err := parquet.Read[SignalRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got[0].Coord != 3 || got[len(got)-1].Coord != 6 {
		t.Fatalf("coords span [%d, %d], want [3, 6]", got[0].Coord, got[len(got)-1].Coord)
	}
}

func TestParquetUnwrittenCellsExportNaN(t *testing.T) {
	ctx := context.Background()
	s := store.NewBucketStore(memblob.OpenBucket(nil))
	t.Cleanup(func() { s.Close() })

	schema := store.Schema{
		Domain:      4,
		Tile:        4,
		Attributes:  []store.AttributeSchema{{Name: "signal", Dtype: store.DtypeFloat64}},
		Compression: "none",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateDenseArray(ctx, "a", schema); err != nil {
		t.Fatal(err)
	}
	r, err := s.OpenForRead(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := Parquet(ctx, r, &buf, 0, 0, "none"); err != nil {
		t.Fatalf("Parquet: %v", err)
	}
	got, err := parquet.Read[SignalRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	for _, row := range got {
		if !math.IsNaN(row.Value) {
			t.Fatalf("coord %d = %v, want NaN", row.Coord, row.Value)
		}
	}
}

func TestParquetBadCompression(t *testing.T) {
	r := seedArray(t)
	var buf bytes.Buffer
	if _, err := Parquet(context.Background(), r, &buf, 0, 0, "lzma"); err == nil {
		t.Fatal("Parquet accepted an unsupported codec")
	}
}
