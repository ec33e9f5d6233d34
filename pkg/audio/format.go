// ABOUTME: Wire sample format definitions for PCM network audio
// ABOUTME: Maps SDP encoding names to byte widths and layouts
package audio

import (
	"fmt"
	"strings"
)

// SampleFormat identifies the wire encoding of one PCM sample.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota

	// FormatS16BE is 16-bit signed big-endian PCM (SDP name "L16").
	FormatS16BE

	// FormatS24BE is 24-bit signed big-endian PCM (SDP name "L24").
	FormatS24BE

	// FormatS32BE is 32-bit signed big-endian PCM (SDP name "L32").
	FormatS32BE

	// FormatFloat32BE is 32-bit big-endian IEEE-754 float PCM.
	FormatFloat32BE
)

// ParseSampleFormat maps an rtpmap encoding name to a SampleFormat.
// Matching is case-insensitive and by substring, so "L16", "L16-48k" and
// plain "16" all resolve to FormatS16BE. Float names ("float32", "F32")
// are checked before the integer widths so the "32" in them does not
// resolve to FormatS32BE.
func ParseSampleFormat(name string) (SampleFormat, error) {
	s := strings.ToLower(name)
	switch {
	case strings.Contains(s, "float") || strings.Contains(s, "f32"):
		return FormatFloat32BE, nil
	case strings.Contains(s, "24"):
		return FormatS24BE, nil
	case strings.Contains(s, "32"):
		return FormatS32BE, nil
	case strings.Contains(s, "16"):
		return FormatS16BE, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported sample format %q", name)
}

// BytesPerSample returns the wire size of one sample, or 0 for an
// unknown format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16BE:
		return 2
	case FormatS24BE:
		return 3
	case FormatS32BE, FormatFloat32BE:
		return 4
	}
	return 0
}

// String returns the conventional SDP name for the format.
func (f SampleFormat) String() string {
	switch f {
	case FormatS16BE:
		return "L16"
	case FormatS24BE:
		return "L24"
	case FormatS32BE:
		return "L32"
	case FormatFloat32BE:
		return "F32"
	}
	return "unknown"
}
