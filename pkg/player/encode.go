// ABOUTME: Final-step conversion from normalized floats to device formats
// ABOUTME: Encoders clamp to full scale and write little-endian layouts
package player

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// DeviceFormat selects the sample representation handed to the output
// device. The stream's own wire format is converted to normalized
// floats long before this point; the device format only decides how
// those floats leave the process.
type DeviceFormat int

const (
	// DeviceFloat32LE feeds 32-bit little-endian floats, the default.
	DeviceFloat32LE DeviceFormat = iota
	// DeviceInt16LE feeds signed 16-bit little-endian integers.
	DeviceInt16LE
	// DeviceUint8 feeds unsigned 8-bit samples centered on 128.
	DeviceUint8
)

func (f DeviceFormat) String() string {
	switch f {
	case DeviceFloat32LE:
		return "float32le"
	case DeviceInt16LE:
		return "int16le"
	case DeviceUint8:
		return "uint8"
	}
	return "unknown"
}

// ParseDeviceFormat maps a flag or config value to a DeviceFormat.
func ParseDeviceFormat(name string) (DeviceFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float32le", "float32", "f32":
		return DeviceFloat32LE, nil
	case "int16le", "int16", "s16":
		return DeviceInt16LE, nil
	case "uint8", "u8":
		return DeviceUint8, nil
	}
	return DeviceFloat32LE, fmt.Errorf("unknown device format %q", name)
}

// sampleEncoder writes gain-scaled samples into a device byte buffer.
type sampleEncoder interface {
	bytesPerSample() int
	otoFormat() oto.Format
	encode(dst []byte, samples []float32, gain float32)
}

func encoderFor(format DeviceFormat) (sampleEncoder, error) {
	switch format {
	case DeviceFloat32LE:
		return float32LEEncoder{}, nil
	case DeviceInt16LE:
		return int16LEEncoder{}, nil
	case DeviceUint8:
		return uint8Encoder{}, nil
	}
	return nil, fmt.Errorf("unknown device format %d", format)
}

type float32LEEncoder struct{}

func (float32LEEncoder) bytesPerSample() int    { return 4 }
func (float32LEEncoder) otoFormat() oto.Format  { return oto.FormatFloat32LE }
func (float32LEEncoder) encode(dst []byte, samples []float32, gain float32) {
	for i, s := range samples {
		v := clampUnit(s * gain)
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

type int16LEEncoder struct{}

func (int16LEEncoder) bytesPerSample() int   { return 2 }
func (int16LEEncoder) otoFormat() oto.Format { return oto.FormatSignedInt16LE }
func (int16LEEncoder) encode(dst []byte, samples []float32, gain float32) {
	for i, s := range samples {
		v := clampUnit(s * gain)
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v*math.MaxInt16)))
	}
}

type uint8Encoder struct{}

func (uint8Encoder) bytesPerSample() int   { return 1 }
func (uint8Encoder) otoFormat() oto.Format { return oto.FormatUnsignedInt8 }
func (uint8Encoder) encode(dst []byte, samples []float32, gain float32) {
	for i, s := range samples {
		v := clampUnit(s * gain)
		dst[i] = uint8(int(v*math.MaxInt8) + 128)
	}
}

// clampUnit pins a sample to the [-1, 1] full-scale range.
func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// volumeState carries the volume and mute controls across goroutines.
// The feed goroutine reads it on every device block while the control
// surface writes it, so both fields are atomics.
type volumeState struct {
	level atomic.Int32
	muted atomic.Bool
}

func newVolumeState(level int) *volumeState {
	v := &volumeState{}
	v.level.Store(int32(clampVolume(level)))
	return v
}

// multiplier returns the gain applied at the device boundary.
func (v *volumeState) multiplier() float32 {
	if v.muted.Load() {
		return 0
	}
	return float32(v.level.Load()) / 100
}

func clampVolume(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
