package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeEmbedding packs a float32 vector into a BLOB of little-endian
// IEEE 754 values. No length prefix: the dimension is recovered from the
// BLOB size on decode.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// decodeEmbedding unpacks a BLOB produced by encodeEmbedding.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not a multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
