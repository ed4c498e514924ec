// Package attrib holds the attribute configuration catalog: which named
// signal columns a dataset can carry, how to open their source files, and
// how to parse one chromosome of values out of them.
//
// The ingestion pipeline knows nothing about file formats beyond the two
// calls Open (once per dataset and attribute) and Parse (once per dataset,
// chromosome and attribute).
package attrib

import (
	"context"
	"fmt"

	"github.com/epigenlab/trackstore/internal/procgroup"
	"github.com/epigenlab/trackstore/internal/store"
)

// Kind selects the parser for an attribute.
const (
	KindSignal = "signal" // bedGraph-style per-base signal
	KindPeak   = "peak"   // narrowPeak intervals rendered as an indicator column
)

// Flags tunes peak parsing.
type Flags struct {
	StoreSummits    bool    `yaml:"store_summits"`
	SummitIndicator float64 `yaml:"summit_indicator"`
}

// Attribute describes one recognized column of the active configuration.
type Attribute struct {
	Name  string `yaml:"name"`
	Dtype string `yaml:"dtype"`
	Kind  string `yaml:"kind"`
	Flags Flags  `yaml:"flags"`

	// Converter, when set, is an external command invoked at open time for
	// sources the parsers cannot read directly (e.g. bigwig binaries). It is
	// run as "<converter...> <src> <dst>" and its output must be bedGraph
	// text.
	Converter []string `yaml:"converter"`
}

// Catalog is an ordered set of recognized attributes.
type Catalog struct {
	Name       string      `yaml:"name"`
	Attributes []Attribute `yaml:"attributes"`
}

// Attribute returns the entry for name, if recognized.
func (c *Catalog) Attribute(name string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Names returns the recognized attribute names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Attributes))
	for i, a := range c.Attributes {
		names[i] = a.Name
	}
	return names
}

// Schemas returns the store column schemas for every recognized attribute.
func (c *Catalog) Schemas() []store.AttributeSchema {
	out := make([]store.AttributeSchema, len(c.Attributes))
	for i, a := range c.Attributes {
		out[i] = store.AttributeSchema{Name: a.Name, Dtype: a.Dtype}
	}
	return out
}

func (c *Catalog) validate() error {
	if c.Name == "" {
		return fmt.Errorf("attrib: catalog needs a name")
	}
	if len(c.Attributes) == 0 {
		return fmt.Errorf("attrib: catalog %q has no attributes", c.Name)
	}
	seen := make(map[string]bool)
	for i := range c.Attributes {
		a := &c.Attributes[i]
		if a.Name == "" {
			return fmt.Errorf("attrib: catalog %q has an unnamed attribute", c.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("attrib: catalog %q repeats attribute %q", c.Name, a.Name)
		}
		seen[a.Name] = true
		if a.Dtype == "" {
			a.Dtype = store.DtypeFloat64
		}
		if a.Kind == "" {
			a.Kind = KindSignal
		}
		switch a.Kind {
		case KindSignal, KindPeak:
		default:
			return fmt.Errorf("attrib: attribute %q has unknown kind %q", a.Name, a.Kind)
		}
	}
	return nil
}

// Open opens the source file for one attribute. Sources needing conversion
// spawn the attribute's converter as a child process registered with procs,
// so cascade cancellation can reach it.
func (c *Catalog) Open(ctx context.Context, name, path string, procs *procgroup.Group) (Handle, error) {
	attr, ok := c.Attribute(name)
	if !ok {
		return nil, fmt.Errorf("attrib: catalog %q does not recognize %q", c.Name, name)
	}
	if len(attr.Converter) > 0 && needsConversion(path) {
		return openConverted(ctx, attr.Converter, path, procs)
	}
	return &fileHandle{path: path}, nil
}

// Parse materializes one chromosome's values, length size, from an opened
// source. Cells the source does not cover come back as NaN for signal
// attributes and 0 for peak attributes.
func (c *Catalog) Parse(name string, h Handle, chrom string, size uint64) ([]float64, error) {
	attr, ok := c.Attribute(name)
	if !ok {
		return nil, fmt.Errorf("attrib: catalog %q does not recognize %q", c.Name, name)
	}
	switch attr.Kind {
	case KindPeak:
		return parseNarrowPeak(h.Path(), chrom, size, attr.Flags)
	default:
		return parseBedGraph(h.Path(), chrom, size)
	}
}

// builtins are the catalogs shipped with the tool.
var builtins = map[string]*Catalog{
	"encode_pipeline": {
		Name: "encode_pipeline",
		Attributes: []Attribute{
			{Name: "fc_bigwig", Dtype: store.DtypeFloat64, Kind: KindSignal, Converter: []string{"bigWigToBedGraph"}},
			{Name: "pval_bigwig", Dtype: store.DtypeFloat64, Kind: KindSignal, Converter: []string{"bigWigToBedGraph"}},
			{Name: "count_bigwig_plus_5p", Dtype: store.DtypeFloat64, Kind: KindSignal, Converter: []string{"bigWigToBedGraph"}},
			{Name: "count_bigwig_minus_5p", Dtype: store.DtypeFloat64, Kind: KindSignal, Converter: []string{"bigWigToBedGraph"}},
			{Name: "idr_peak", Dtype: store.DtypeFloat64, Kind: KindPeak, Flags: Flags{StoreSummits: true, SummitIndicator: 2}},
			{Name: "overlap_peak", Dtype: store.DtypeFloat64, Kind: KindPeak, Flags: Flags{StoreSummits: true, SummitIndicator: 2}},
			{Name: "ambig_peak", Dtype: store.DtypeFloat64, Kind: KindPeak},
		},
	},
	"generic_bigwig": {
		Name: "generic_bigwig",
		Attributes: []Attribute{
			{Name: "signal", Dtype: store.DtypeFloat64, Kind: KindSignal, Converter: []string{"bigWigToBedGraph"}},
		},
	},
}

// Get returns a built-in catalog by name.
func Get(name string) (*Catalog, error) {
	c, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("attrib: unknown catalog %q", name)
	}
	return c, nil
}

// Resolve returns the built-in catalog named by ref, or loads ref as a YAML
// catalog file when no built-in matches.
func Resolve(ref string) (*Catalog, error) {
	if c, ok := builtins[ref]; ok {
		return c, nil
	}
	return LoadYAML(ref)
}
