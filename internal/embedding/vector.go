package embedding

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a vector as little-endian float32 for BLOB
// storage alongside the journal row it belongs to.
func EncodeVector(v Vector) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeVector deserializes a BLOB written by EncodeVector.
func DecodeVector(b []byte) Vector {
	if len(b) < 4 {
		return nil
	}
	v := make(Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
