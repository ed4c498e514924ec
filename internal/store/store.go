// Package store provides a chunked, coordinate-indexed dense array store.
//
// An array covers the coordinate domain [0, Domain) with one column per
// attribute, persisted as fixed-size tiles behind a blob bucket. Cells that
// were never written read back as NaN.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ObjectType classifies what lives at a store path.
type ObjectType int

const (
	ObjectAbsent ObjectType = iota
	ObjectArray
	ObjectGroup
	ObjectOther
)

func (t ObjectType) String() string {
	switch t {
	case ObjectAbsent:
		return "absent"
	case ObjectArray:
		return "array"
	case ObjectGroup:
		return "group"
	default:
		return "other"
	}
}

// Supported attribute datatypes.
const (
	DtypeFloat32 = "float32"
	DtypeFloat64 = "float64"
)

var (
	// ErrUnknownAttribute is returned when a write or read names an
	// attribute the array schema does not carry.
	ErrUnknownAttribute = errors.New("store: unknown attribute")

	// ErrRangeOutOfDomain is returned when a coordinate range falls outside
	// [0, Domain).
	ErrRangeOutOfDomain = errors.New("store: range out of domain")
)

// AttributeSchema describes one named column of an array.
type AttributeSchema struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

// Schema describes a dense array.
type Schema struct {
	Domain      uint64            `json:"domain"` // coordinates [0, Domain)
	Tile        uint64            `json:"tile"`
	Attributes  []AttributeSchema `json:"attributes"`
	Compression string            `json:"compression"` // "gzip" | "zstd" | "none"
	CreatedAt   time.Time         `json:"created_at"`
}

// Attribute returns the schema entry for name, if present.
func (s Schema) Attribute(name string) (AttributeSchema, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSchema{}, false
}

// NumTiles returns the number of tiles covering the domain.
func (s Schema) NumTiles() uint64 {
	if s.Tile == 0 {
		return 0
	}
	return (s.Domain + s.Tile - 1) / s.Tile
}

// Validate checks the schema for internal consistency.
func (s Schema) Validate() error {
	if s.Domain == 0 {
		return fmt.Errorf("store: schema domain must be positive")
	}
	if s.Tile == 0 || s.Tile > s.Domain {
		return fmt.Errorf("store: tile size %d invalid for domain %d", s.Tile, s.Domain)
	}
	if len(s.Attributes) == 0 {
		return fmt.Errorf("store: schema needs at least one attribute")
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.Name == "" {
			return fmt.Errorf("store: attribute with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("store: duplicate attribute %q", a.Name)
		}
		seen[a.Name] = true
		switch a.Dtype {
		case DtypeFloat32, DtypeFloat64:
		default:
			return fmt.Errorf("store: attribute %q has unsupported dtype %q", a.Name, a.Dtype)
		}
	}
	switch s.Compression {
	case "gzip", "zstd", "none":
	default:
		return fmt.Errorf("store: unsupported compression %q", s.Compression)
	}
	return nil
}

// Writer writes attribute columns into coordinate ranges of one array.
type Writer interface {
	// Assign writes each column to cells [start, end). Every column must
	// have length end-start and name an attribute of the array.
	Assign(ctx context.Context, start, end uint64, cols map[string][]float64) error
	Close() error
}

// Reader reads attribute columns from one array.
type Reader interface {
	Schema() Schema

	// Read returns each attribute's values over [start, end). Cells never
	// written come back as NaN.
	Read(ctx context.Context, start, end uint64) (map[string][]float64, error)

	// ReadAll returns every attribute over the full domain.
	ReadAll(ctx context.Context) (map[string][]float64, error)

	Close() error
}

// ArrayStore abstracts the dense array storage engine.
type ArrayStore interface {
	ObjectType(ctx context.Context, path string) (ObjectType, error)
	CreateGroup(ctx context.Context, path string) error
	CreateDenseArray(ctx context.Context, path string, schema Schema) error
	OpenForWrite(ctx context.Context, path string) (Writer, error)
	OpenForRead(ctx context.Context, path string) (Reader, error)
	Close() error
}
