package attrib

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// openText opens a possibly gzip-compressed text source.
func openText(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipFile{zr: zr, f: f}, nil
}

type gzipFile struct {
	zr *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipFile) Close() error {
	zerr := g.zr.Close()
	ferr := g.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}

// parseBedGraph materializes per-base signal for one chromosome from a
// bedGraph source: "chrom start end value", tab or space delimited. Bases
// the source does not cover stay NaN.
func parseBedGraph(path, chrom string, size uint64) ([]float64, error) {
	r, err := openText(path)
	if err != nil {
		return nil, fmt.Errorf("attrib: open %s: %w", path, err)
	}
	defer r.Close()

	vals := make([]float64, size)
	for i := range vals {
		vals[i] = math.NaN()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<22)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || strings.HasPrefix(text, "track") || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 4 {
			return nil, fmt.Errorf("attrib: %s:%d: want 4 bedGraph fields, got %d", path, line, len(fields))
		}
		if fields[0] != chrom {
			continue
		}
		start, end, err := parseInterval(fields[1], fields[2], size)
		if err != nil {
			return nil, fmt.Errorf("attrib: %s:%d: %w", path, line, err)
		}
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("attrib: %s:%d: bad value %q", path, line, fields[3])
		}
		for i := start; i < end; i++ {
			vals[i] = v
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("attrib: scan %s: %w", path, err)
	}
	return vals, nil
}

// parseNarrowPeak materializes a peak indicator column for one chromosome:
// 1 inside peaks, 0 outside, and optionally the summit indicator at each
// peak's summit offset (narrowPeak column 10).
func parseNarrowPeak(path, chrom string, size uint64, flags Flags) ([]float64, error) {
	r, err := openText(path)
	if err != nil {
		return nil, fmt.Errorf("attrib: open %s: %w", path, err)
	}
	defer r.Close()

	vals := make([]float64, size)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), 1<<22)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("attrib: %s:%d: want at least 3 narrowPeak fields, got %d", path, line, len(fields))
		}
		if fields[0] != chrom {
			continue
		}
		start, end, err := parseInterval(fields[1], fields[2], size)
		if err != nil {
			return nil, fmt.Errorf("attrib: %s:%d: %w", path, line, err)
		}
		for i := start; i < end; i++ {
			vals[i] = 1
		}
		if flags.StoreSummits && len(fields) >= 10 {
			summit, err := strconv.ParseInt(fields[9], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("attrib: %s:%d: bad summit %q", path, line, fields[9])
			}
			if summit >= 0 {
				pos := start + uint64(summit)
				if pos < end && pos < size {
					vals[pos] = flags.SummitIndicator
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("attrib: scan %s: %w", path, err)
	}
	return vals, nil
}

// parseInterval parses a half-open [start, end) interval and clips it to
// the chromosome domain.
func parseInterval(startField, endField string, size uint64) (uint64, uint64, error) {
	start, err := strconv.ParseUint(startField, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad start %q", startField)
	}
	end, err := strconv.ParseUint(endField, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad end %q", endField)
	}
	if end < start {
		return 0, 0, fmt.Errorf("interval end %d before start %d", end, start)
	}
	if start > size {
		start = size
	}
	if end > size {
		end = size
	}
	return start, end, nil
}
