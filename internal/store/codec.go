package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// tileExt returns the object key suffix for the given compression codec.
func tileExt(compression string) string {
	switch compression {
	case "gzip":
		return ".bin.gz"
	case "zstd":
		return ".bin.zst"
	default:
		return ".bin"
	}
}

// encodeTile serializes a tile's cell values as little-endian fixed-width
// floats, compressed per the codec.
func encodeTile(dtype, compression string, vals []float64) ([]byte, error) {
	var raw []byte
	switch dtype {
	case DtypeFloat32:
		raw = make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		}
	case DtypeFloat64:
		raw = make([]byte, 8*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
	default:
		return nil, fmt.Errorf("store: unsupported dtype %q", dtype)
	}

	switch compression {
	case "gzip":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip tile: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip tile: %w", err)
		}
		return buf.Bytes(), nil
	case "zstd":
		zw, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		out := zw.EncodeAll(raw, nil)
		zw.Close()
		return out, nil
	default:
		return raw, nil
	}
}

// decodeTile deserializes a tile into n cell values.
func decodeTile(dtype, compression string, data []byte, n uint64) ([]float64, error) {
	var raw []byte
	switch compression {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gunzip tile: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("gunzip tile: %w", err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("gunzip tile: %w", err)
		}
	case "zstd":
		zr, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		raw, err = zr.DecodeAll(data, nil)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("zstd tile: %w", err)
		}
	default:
		raw = data
	}

	vals := make([]float64, n)
	switch dtype {
	case DtypeFloat32:
		if uint64(len(raw)) != 4*n {
			return nil, fmt.Errorf("store: tile has %d bytes, want %d", len(raw), 4*n)
		}
		for i := range vals {
			vals[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
		}
	case DtypeFloat64:
		if uint64(len(raw)) != 8*n {
			return nil, fmt.Errorf("store: tile has %d bytes, want %d", len(raw), 8*n)
		}
		for i := range vals {
			vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	default:
		return nil, fmt.Errorf("store: unsupported dtype %q", dtype)
	}
	return vals, nil
}

// nanTile returns a tile of n unwritten cells.
func nanTile(n uint64) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return vals
}
