package attrib

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a user-supplied catalog file:
//
//	name: my_assay
//	attributes:
//	  - name: coverage
//	    dtype: float32
//	    kind: signal
//	  - name: peaks
//	    kind: peak
//	    flags:
//	      store_summits: true
//	      summit_indicator: 2
//
// Dtype defaults to float64 and kind to signal.
func LoadYAML(path string) (*Catalog, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("attrib: read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("attrib: parse catalog %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
