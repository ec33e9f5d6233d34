// ABOUTME: PCM payload conversion to normalized float32 samples
// ABOUTME: One pure converter per wire format, selected once per session
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Converter turns one raw packet payload into interleaved normalized
// float32 samples. Converters are pure and stateless; a trailing partial
// sample is dropped, never an error.
type Converter func(payload []byte) []float32

// ConverterFor selects the conversion function for a wire format. The
// mapping is closed: an unrecognized format is rejected here, so callers
// holding a Converter never see a failure path.
func ConverterFor(format SampleFormat) (Converter, error) {
	switch format {
	case FormatS16BE:
		return convertS16BE, nil
	case FormatS24BE:
		return convertS24BE, nil
	case FormatS32BE:
		return convertS32BE, nil
	case FormatFloat32BE:
		return convertFloat32BE, nil
	}
	return nil, fmt.Errorf("no converter for sample format %q", format)
}

// convertS16BE normalizes by the maximum positive 16-bit value, so the
// most negative sample maps slightly below -1.0. That asymmetry matches
// the signed integer range and is expected by downstream clamping.
func convertS16BE(payload []byte) []float32 {
	n := len(payload) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.BigEndian.Uint16(payload[i*2:]))
		out[i] = float32(v) / float32(math.MaxInt16)
	}
	return out
}

// convertS24BE places the 3 wire bytes in the high bytes of an int32,
// keeping the sign bit in place, then normalizes by the maximum positive
// 32-bit value.
func convertS24BE(payload []byte) []float32 {
	n := len(payload) / 3
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		b := payload[i*3 : i*3+3]
		v := int32(b[0])<<24 | int32(b[1])<<16 | int32(b[2])<<8
		out[i] = float32(v) / float32(math.MaxInt32)
	}
	return out
}

func convertS32BE(payload []byte) []float32 {
	n := len(payload) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int32(binary.BigEndian.Uint32(payload[i*4:]))
		out[i] = float32(v) / float32(math.MaxInt32)
	}
	return out
}

// convertFloat32BE reinterprets each 4-byte group as IEEE-754 bits with
// no scaling. Senders already produce normalized values.
func convertFloat32BE(payload []byte) []float32 {
	n := len(payload) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(payload[i*4:]))
	}
	return out
}
