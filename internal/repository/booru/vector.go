package booru

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// The service exchanges raw embeddings as base64 over little-endian float32,
// the same layout numpy's frombuffer expects.

// EncodeVector renders a vector in the service's wire format.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector parses a vector from the service's wire format.
func DecodeVector(s string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("decode vector: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
