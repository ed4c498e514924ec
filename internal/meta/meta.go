// Package meta loads the two delimited input tables that drive an
// ingestion run: the dataset metadata table and the chromosome sizes table.
package meta

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Row is one dataset of the metadata table: its identifier and the source
// file per supplied attribute column.
type Row struct {
	Dataset string
	Sources map[string]string
}

// Table is the parsed metadata table.
type Table struct {
	Columns []string // attribute columns, header order, without "dataset"
	Rows    []Row
}

// LoadMetadata parses a tab-delimited metadata table. The header row must
// carry a "dataset" column; every other column names an attribute. Empty
// cells mean the attribute is not supplied for that dataset.
func LoadMetadata(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meta: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("meta: read %s: %w", path, err)
		}
		return nil, fmt.Errorf("meta: %s is empty", path)
	}
	header := strings.Split(sc.Text(), "\t")

	datasetCol := -1
	columns := make([]string, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "dataset" {
			datasetCol = i
			continue
		}
		columns = append(columns, name)
	}
	if datasetCol < 0 {
		return nil, fmt.Errorf("meta: %s has no dataset column", path)
	}

	table := &Table{Columns: columns}
	line := 1
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		cells := strings.Split(text, "\t")
		if len(cells) != len(header) {
			return nil, fmt.Errorf("meta: %s:%d: %d cells, header has %d", path, line, len(cells), len(header))
		}

		row := Row{Sources: make(map[string]string)}
		col := 0
		for i, cell := range cells {
			cell = strings.TrimSpace(cell)
			if i == datasetCol {
				row.Dataset = cell
				continue
			}
			if cell != "" {
				row.Sources[columns[col]] = cell
			}
			col++
		}
		if row.Dataset == "" {
			return nil, fmt.Errorf("meta: %s:%d: empty dataset cell", path, line)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meta: read %s: %w", path, err)
	}
	return table, nil
}

// Chrom is one (name, length) pair of the chromosome sizes table.
type Chrom struct {
	Name string
	Size uint64
}

// LoadChromSizes parses a two-column tab-delimited chromosome sizes table,
// no header, preserving row order.
func LoadChromSizes(path string) ([]Chrom, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("meta: open %s: %w", path, err)
	}
	defer f.Close()

	var chroms []Chrom
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("meta: %s:%d: want name and size, got %q", path, line, text)
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil || size == 0 {
			return nil, fmt.Errorf("meta: %s:%d: bad chromosome size %q", path, line, fields[1])
		}
		chroms = append(chroms, Chrom{Name: fields[0], Size: size})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("meta: read %s: %w", path, err)
	}
	if len(chroms) == 0 {
		return nil, fmt.Errorf("meta: %s has no chromosomes", path)
	}
	return chroms, nil
}
