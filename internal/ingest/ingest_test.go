package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/epigenlab/trackstore/internal/attrib"
	"github.com/epigenlab/trackstore/internal/config"
	"github.com/epigenlab/trackstore/internal/store"
)

func testCatalog() *attrib.Catalog {
	return &attrib.Catalog{
		Name: "test",
		Attributes: []attrib.Attribute{
			{Name: "signal", Dtype: store.DtypeFloat64, Kind: attrib.KindSignal},
			{Name: "peaks", Dtype: store.DtypeFloat64, Kind: attrib.KindPeak, Flags: attrib.Flags{StoreSummits: true, SummitIndicator: 2}},
		},
	}
}

func testConfig(metadata, chromSizes string) config.Config {
	return config.Config{
		Group:              "mem://",
		Metadata:           metadata,
		ChromSizes:         chromSizes,
		AttributeConfig:    "test",
		DatasetPoolSize:    1,
		ChromosomePoolSize: 1,
		WritePoolSize:      1,
		WaveSize:           10,
		WriteBatchSize:     7, // deliberately smaller than chromosomes, and not a tile multiple
		TileSize:           5,
		Compression:        "gzip",
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testInputs lays out two datasets over three chromosomes. Dataset enc2
// supplies no peak source.
func testInputs(t *testing.T) (metadata, chromSizes string) {
	t.Helper()
	dir := t.TempDir()

	sig1 := writeFile(t, dir, "enc1.bedGraph",
		"chr1\t0\t20\t1\nchr2\t0\t13\t2\nchr3\t0\t9\t3\n")
	sig2 := writeFile(t, dir, "enc2.bedGraph",
		"chr1\t5\t10\t4\nchr2\t0\t13\t5\nchr3\t0\t9\t6\n")
	peaks1 := writeFile(t, dir, "enc1.narrowPeak",
		"chr1\t2\t6\tp1\t0\t.\t0\t0\t0\t1\nchr2\t0\t3\n")

	metadata = writeFile(t, dir, "meta.tsv",
		"dataset\tsignal\tpeaks\n"+
			fmt.Sprintf("enc1\t%s\t%s\n", sig1, peaks1)+
			fmt.Sprintf("enc2\t%s\t\n", sig2))
	chromSizes = writeFile(t, dir, "chrom.sizes",
		"chr1\t20\nchr2\t13\nchr3\t9\n")
	return metadata, chromSizes
}

func newTestStore(t *testing.T) *store.BucketStore {
	t.Helper()
	s := store.NewBucketStore(memblob.OpenBucket(nil))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunEndToEnd(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			metadata, chromSizes := testInputs(t)
			cfg := testConfig(metadata, chromSizes)
			cfg.DatasetPoolSize = workers
			cfg.ChromosomePoolSize = workers
			cfg.WritePoolSize = workers

			st := newTestStore(t)
			ing := New(cfg, st, testCatalog())
			ctx := context.Background()

			if err := ing.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}

			// One array per dataset and chromosome.
			for _, path := range []string{
				"enc1.chr1", "enc1.chr2", "enc1.chr3",
				"enc2.chr1", "enc2.chr2", "enc2.chr3",
			} {
				typ, err := st.ObjectType(ctx, path)
				if err != nil {
					t.Fatalf("ObjectType(%s): %v", path, err)
				}
				if typ != store.ObjectArray {
					t.Fatalf("ObjectType(%s) = %v, want array", path, typ)
				}
			}
			if typ, _ := st.ObjectType(ctx, ""); typ != store.ObjectGroup {
				t.Fatal("group marker missing at store root")
			}

			r, err := st.OpenForRead(ctx, "enc1.chr1")
			if err != nil {
				t.Fatalf("OpenForRead: %v", err)
			}
			got, err := r.ReadAll(ctx)
			r.Close()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			for i := 0; i < 20; i++ {
				if got["signal"][i] != 1 {
					t.Fatalf("enc1.chr1 signal[%d] = %v, want 1", i, got["signal"][i])
				}
			}
			// Peak [2,6) with the summit at base 3.
			wantPeaks := []float64{0, 0, 1, 2, 1, 1, 0, 0}
			for i, w := range wantPeaks {
				if got["peaks"][i] != w {
					t.Fatalf("enc1.chr1 peaks[%d] = %v, want %v", i, got["peaks"][i], w)
				}
			}

			// Attributes with no source are NaN-filled on first write.
			r, err = st.OpenForRead(ctx, "enc2.chr2")
			if err != nil {
				t.Fatalf("OpenForRead: %v", err)
			}
			got, err = r.ReadAll(ctx)
			r.Close()
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			for i, v := range got["peaks"] {
				if !math.IsNaN(v) {
					t.Fatalf("enc2.chr2 peaks[%d] = %v, want NaN", i, v)
				}
			}
			for i, v := range got["signal"] {
				if v != 5 {
					t.Fatalf("enc2.chr2 signal[%d] = %v, want 5", i, v)
				}
			}
		})
	}
}

func TestRunShortTile(t *testing.T) {
	// A tile size above the shortest chromosome must be capped per array.
	metadata, chromSizes := testInputs(t)
	cfg := testConfig(metadata, chromSizes)
	cfg.TileSize = 1000

	st := newTestStore(t)
	ctx := context.Background()
	if err := New(cfg, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r, err := st.OpenForRead(ctx, "enc1.chr3")
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer r.Close()
	if got := r.Schema().Tile; got != 9 {
		t.Fatalf("tile = %d, want capped at domain 9", got)
	}
}

func TestRunConflictWithoutOverwrite(t *testing.T) {
	metadata, chromSizes := testInputs(t)
	cfg := testConfig(metadata, chromSizes)
	st := newTestStore(t)
	ctx := context.Background()

	if err := New(cfg, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err := New(cfg, st, testCatalog()).Run(ctx)
	if !errors.Is(err, ErrArrayExists) {
		t.Fatalf("second Run = %v, want ErrArrayExists", err)
	}
}

func TestRunUpdatePreservesOtherAttributes(t *testing.T) {
	metadata, chromSizes := testInputs(t)
	cfg := testConfig(metadata, chromSizes)
	st := newTestStore(t)
	ctx := context.Background()

	if err := New(cfg, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Second pass supplies only a new signal source for enc1.
	dir := t.TempDir()
	sig := writeFile(t, dir, "enc1.v2.bedGraph",
		"chr1\t0\t20\t9\nchr2\t0\t13\t9\nchr3\t0\t9\t9\n")
	metadata2 := writeFile(t, dir, "meta2.tsv",
		"dataset\tsignal\tpeaks\n"+fmt.Sprintf("enc1\t%s\t\n", sig))

	cfg2 := cfg
	cfg2.Metadata = metadata2
	cfg2.OverwritePermitted = true
	if err := New(cfg2, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("update Run: %v", err)
	}

	r, err := st.OpenForRead(ctx, "enc1.chr1")
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer r.Close()
	got, err := r.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	// The supplied column is replaced wholesale.
	for i, v := range got["signal"] {
		if v != 9 {
			t.Fatalf("signal[%d] = %v, want 9", i, v)
		}
	}
	// The unsupplied column keeps its previous content.
	wantPeaks := []float64{0, 0, 1, 2, 1, 1, 0, 0}
	for i, w := range wantPeaks {
		if got["peaks"][i] != w {
			t.Fatalf("peaks[%d] = %v, want %v", i, got["peaks"][i], w)
		}
	}
}

func readArray(t *testing.T, st *store.BucketStore, path string) map[string][]float64 {
	t.Helper()
	r, err := st.OpenForRead(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenForRead(%s): %v", path, err)
	}
	defer r.Close()
	got, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll(%s): %v", path, err)
	}
	return got
}

func TestRunRepeatUpdateIdempotent(t *testing.T) {
	// Re-ingesting the same inputs with overwrite permission must leave
	// every array cell exactly as the first run did.
	metadata, chromSizes := testInputs(t)
	cfg := testConfig(metadata, chromSizes)
	st := newTestStore(t)
	ctx := context.Background()

	if err := New(cfg, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	arrays := []string{
		"enc1.chr1", "enc1.chr2", "enc1.chr3",
		"enc2.chr1", "enc2.chr2", "enc2.chr3",
	}
	before := make(map[string]map[string][]float64, len(arrays))
	for _, path := range arrays {
		before[path] = readArray(t, st, path)
	}

	cfg.OverwritePermitted = true
	if err := New(cfg, st, testCatalog()).Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	for _, path := range arrays {
		after := readArray(t, st, path)
		for attr, want := range before[path] {
			got := after[attr]
			if len(got) != len(want) {
				t.Fatalf("%s/%s: %d cells, want %d", path, attr, len(got), len(want))
			}
			for i := range want {
				same := got[i] == want[i] || (math.IsNaN(got[i]) && math.IsNaN(want[i]))
				if !same {
					t.Fatalf("%s/%s[%d] = %v after repeat, want %v", path, attr, i, got[i], want[i])
				}
			}
		}
	}
}

func TestRunUnknownMetadataColumn(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "meta.tsv", "dataset\tmystery\nenc1\t/a.bedGraph\n")
	chromSizes := writeFile(t, dir, "chrom.sizes", "chr1\t20\n")
	cfg := testConfig(metadata, chromSizes)

	err := New(cfg, newTestStore(t), testCatalog()).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with an unrecognized metadata column")
	}
}

func TestRunMissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	metadata := writeFile(t, dir, "meta.tsv",
		"dataset\tsignal\nenc1\t"+filepath.Join(dir, "missing.bedGraph")+"\n")
	chromSizes := writeFile(t, dir, "chrom.sizes", "chr1\t20\n")
	cfg := testConfig(metadata, chromSizes)

	err := New(cfg, newTestStore(t), testCatalog()).Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded with a missing source file")
	}
}

func TestProvisionRejectsForeignObject(t *testing.T) {
	metadata, chromSizes := testInputs(t)
	cfg := testConfig(metadata, chromSizes)
	st := newTestStore(t)
	ctx := context.Background()

	// Something that is neither array nor absent sits at a target path.
	if err := st.CreateGroup(ctx, "enc1.chr1"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	err := New(cfg, st, testCatalog()).Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded over a non-array object")
	}
}
