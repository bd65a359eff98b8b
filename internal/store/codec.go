package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a BLOB written by encodeVector. dims must match the
// blob length; a mismatch means the row is corrupt.
func decodeVector(buf []byte, dims int) ([]float32, error) {
	if len(buf) != dims*4 {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d for %d dims", len(buf), dims*4, dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
