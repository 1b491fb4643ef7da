package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SerializeVector encodes a vector as little-endian IEEE 754 float32 values,
// 4 bytes per dimension (a 1024-dimension vector is 4096 bytes). The same
// layout is understood by sqlite-vec's distance functions.
func SerializeVector(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DeserializeVector reverses SerializeVector. A length that is not a
// multiple of 4 indicates corrupted data.
func DeserializeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: length %d not divisible by 4", len(data))
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
