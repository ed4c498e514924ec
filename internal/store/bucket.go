package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BucketStore implements ArrayStore on top of a gocloud blob bucket, so the
// same array layout works on local disk, in memory, GCS, and S3.
//
// Layout per array path:
//
//	<path>/.schema.json            array schema document
//	<path>/<attr>/tile-<n>.bin.gz  one object per attribute tile
//
// Tiles are written with per-tile read-modify-write under an in-process
// lock, which is sufficient because all writers of one run share the store
// instance and write batches target disjoint coordinate ranges.
type BucketStore struct {
	bucket *blob.Bucket
	url    string

	mu        sync.Mutex
	tileLocks map[string]*sync.Mutex

	schemaMu sync.RWMutex
	schemas  map[string]Schema
}

// Open opens a bucket-backed store from a URL such as file:///data/tracks,
// mem://, gs://bucket/prefix or s3://bucket/prefix.
func Open(ctx context.Context, url string) (*BucketStore, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	s := NewBucketStore(bucket)
	s.url = url
	return s, nil
}

// NewBucketStore wraps an already-open bucket. The caller keeps ownership of
// nothing; Close closes the bucket.
func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{
		bucket:    bucket,
		tileLocks: make(map[string]*sync.Mutex),
		schemas:   make(map[string]Schema),
	}
}

// URL returns the bucket URL this store was opened from, if any.
func (s *BucketStore) URL() string {
	return s.url
}

// key joins a store path with an object name. The empty path is the bucket
// root, used for the group marker of the whole store.
func key(path, name string) string {
	if path == "" {
		return name
	}
	return path + "/" + name
}

func schemaKey(path string) string { return key(path, ".schema.json") }
func groupKey(path string) string  { return key(path, ".group.json") }

func tileKey(path, attr string, idx uint64, compression string) string {
	return key(path, fmt.Sprintf("%s/tile-%06d%s", attr, idx, tileExt(compression)))
}

// ObjectType reports whether path holds an array, a group, some other
// objects, or nothing.
func (s *BucketStore) ObjectType(ctx context.Context, path string) (ObjectType, error) {
	if ok, err := s.bucket.Exists(ctx, schemaKey(path)); err != nil {
		return ObjectAbsent, fmt.Errorf("probe %s: %w", path, err)
	} else if ok {
		return ObjectArray, nil
	}
	if ok, err := s.bucket.Exists(ctx, groupKey(path)); err != nil {
		return ObjectAbsent, fmt.Errorf("probe %s: %w", path, err)
	} else if ok {
		return ObjectGroup, nil
	}

	prefix := ""
	if path != "" {
		prefix = path + "/"
	}
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	if _, err := iter.Next(ctx); err == nil {
		return ObjectOther, nil
	} else if err != io.EOF {
		return ObjectAbsent, fmt.Errorf("list %s: %w", path, err)
	}
	return ObjectAbsent, nil
}

// CreateGroup writes a group marker at path. Creating an existing group is
// a no-op.
func (s *BucketStore) CreateGroup(ctx context.Context, path string) error {
	t, err := s.ObjectType(ctx, path)
	if err != nil {
		return err
	}
	if t == ObjectGroup {
		return nil
	}
	if t != ObjectAbsent {
		return fmt.Errorf("store: %s holds a %s, not a group", path, t)
	}
	return s.bucket.WriteAll(ctx, groupKey(path), []byte("{}\n"), nil)
}

// CreateDenseArray allocates a new array at path. Fails if anything already
// lives there; overwrite policy is the caller's concern.
func (s *BucketStore) CreateDenseArray(ctx context.Context, path string, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	t, err := s.ObjectType(ctx, path)
	if err != nil {
		return err
	}
	if t != ObjectAbsent {
		return fmt.Errorf("store: %s already holds a %s", path, t)
	}

	doc, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, schemaKey(path), doc, nil); err != nil {
		return fmt.Errorf("write schema %s: %w", path, err)
	}

	s.schemaMu.Lock()
	s.schemas[path] = schema
	s.schemaMu.Unlock()
	return nil
}

func (s *BucketStore) loadSchema(ctx context.Context, path string) (Schema, error) {
	s.schemaMu.RLock()
	schema, ok := s.schemas[path]
	s.schemaMu.RUnlock()
	if ok {
		return schema, nil
	}

	doc, err := s.bucket.ReadAll(ctx, schemaKey(path))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return Schema{}, fmt.Errorf("store: %s is not an array", path)
		}
		return Schema{}, fmt.Errorf("read schema %s: %w", path, err)
	}
	if err := json.Unmarshal(doc, &schema); err != nil {
		return Schema{}, fmt.Errorf("parse schema %s: %w", path, err)
	}

	s.schemaMu.Lock()
	s.schemas[path] = schema
	s.schemaMu.Unlock()
	return schema, nil
}

// OpenForWrite opens the array at path for coordinate-range writes.
func (s *BucketStore) OpenForWrite(ctx context.Context, path string) (Writer, error) {
	schema, err := s.loadSchema(ctx, path)
	if err != nil {
		return nil, err
	}
	return &bucketWriter{store: s, path: path, schema: schema}, nil
}

// OpenForRead opens the array at path for reading.
func (s *BucketStore) OpenForRead(ctx context.Context, path string) (Reader, error) {
	schema, err := s.loadSchema(ctx, path)
	if err != nil {
		return nil, err
	}
	return &bucketReader{store: s, path: path, schema: schema}, nil
}

// Close releases the underlying bucket.
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}

func (s *BucketStore) tileLock(path string, idx uint64) *sync.Mutex {
	key := fmt.Sprintf("%s#%d", path, idx)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tileLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.tileLocks[key] = l
	}
	return l
}

// readTile loads one attribute tile, returning NaN cells when the tile was
// never written.
func (s *BucketStore) readTile(ctx context.Context, path string, attr AttributeSchema, schema Schema, idx uint64) ([]float64, error) {
	n := schema.Tile
	if last := schema.NumTiles() - 1; idx == last {
		n = schema.Domain - last*schema.Tile
	}

	data, err := s.bucket.ReadAll(ctx, tileKey(path, attr.Name, idx, schema.Compression))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nanTile(n), nil
		}
		return nil, fmt.Errorf("read tile %s/%s[%d]: %w", path, attr.Name, idx, err)
	}
	return decodeTile(attr.Dtype, schema.Compression, data, n)
}

func (s *BucketStore) writeTile(ctx context.Context, path string, attr AttributeSchema, schema Schema, idx uint64, vals []float64) error {
	data, err := encodeTile(attr.Dtype, schema.Compression, vals)
	if err != nil {
		return err
	}
	if err := s.bucket.WriteAll(ctx, tileKey(path, attr.Name, idx, schema.Compression), data, nil); err != nil {
		return fmt.Errorf("write tile %s/%s[%d]: %w", path, attr.Name, idx, err)
	}
	return nil
}

type bucketWriter struct {
	store  *BucketStore
	path   string
	schema Schema
}

func (w *bucketWriter) Assign(ctx context.Context, start, end uint64, cols map[string][]float64) error {
	if start > end || end > w.schema.Domain {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrRangeOutOfDomain, start, end, w.schema.Domain)
	}
	for name, vals := range cols {
		if _, ok := w.schema.Attribute(name); !ok {
			return fmt.Errorf("%w: %q in %s", ErrUnknownAttribute, name, w.path)
		}
		if uint64(len(vals)) != end-start {
			return fmt.Errorf("store: column %q has %d values for range [%d, %d)", name, len(vals), start, end)
		}
	}
	if start == end {
		return nil
	}

	tile := w.schema.Tile
	for idx := start / tile; idx <= (end-1)/tile; idx++ {
		tileStart := idx * tile
		tileEnd := tileStart + tile
		if tileEnd > w.schema.Domain {
			tileEnd = w.schema.Domain
		}
		segStart := max(start, tileStart)
		segEnd := min(end, tileEnd)

		if err := w.assignTile(ctx, idx, tileStart, tileEnd, segStart, segEnd, start, cols); err != nil {
			return err
		}
	}
	return nil
}

// assignTile overlays one tile's segment for every written attribute, under
// the tile lock so batches straddling a tile boundary never lose cells.
func (w *bucketWriter) assignTile(ctx context.Context, idx, tileStart, tileEnd, segStart, segEnd, rangeStart uint64, cols map[string][]float64) error {
	lock := w.store.tileLock(w.path, idx)
	lock.Lock()
	defer lock.Unlock()

	fullTile := segStart == tileStart && segEnd == tileEnd

	for name, vals := range cols {
		attr, _ := w.schema.Attribute(name)
		seg := vals[segStart-rangeStart : segEnd-rangeStart]

		var tileVals []float64
		if fullTile {
			tileVals = seg
		} else {
			existing, err := w.store.readTile(ctx, w.path, attr, w.schema, idx)
			if err != nil {
				return err
			}
			copy(existing[segStart-tileStart:], seg)
			tileVals = existing
		}

		if err := w.store.writeTile(ctx, w.path, attr, w.schema, idx, tileVals); err != nil {
			return err
		}
	}
	return nil
}

func (w *bucketWriter) Close() error {
	return nil
}

type bucketReader struct {
	store  *BucketStore
	path   string
	schema Schema
}

func (r *bucketReader) Schema() Schema {
	return r.schema
}

func (r *bucketReader) Read(ctx context.Context, start, end uint64) (map[string][]float64, error) {
	if start > end || end > r.schema.Domain {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrRangeOutOfDomain, start, end, r.schema.Domain)
	}

	out := make(map[string][]float64, len(r.schema.Attributes))
	for _, attr := range r.schema.Attributes {
		vals := make([]float64, end-start)
		if start == end {
			out[attr.Name] = vals
			continue
		}
		tile := r.schema.Tile
		for idx := start / tile; idx <= (end-1)/tile; idx++ {
			tileVals, err := r.store.readTile(ctx, r.path, attr, r.schema, idx)
			if err != nil {
				return nil, err
			}
			tileStart := idx * tile
			segStart := max(start, tileStart)
			segEnd := min(end, tileStart+uint64(len(tileVals)))
			copy(vals[segStart-start:], tileVals[segStart-tileStart:segEnd-tileStart])
		}
		out[attr.Name] = vals
	}
	return out, nil
}

func (r *bucketReader) ReadAll(ctx context.Context) (map[string][]float64, error) {
	return r.Read(ctx, 0, r.schema.Domain)
}

func (r *bucketReader) Close() error {
	return nil
}
