// ABOUTME: Audio fundamentals package for PCM stream playback
// ABOUTME: Defines wire sample formats, converters and the level meter
// Package audio provides the sample-level building blocks for network
// audio playback.
//
// This package defines the types shared across the playback pipeline:
//   - SampleFormat: the four supported wire encodings (L16, L24, L32, F32)
//   - Converter: pure functions turning raw payload bytes into
//     normalized float32 samples
//   - Meter: a best-effort peak level reporter
//
// All pipeline math happens on interleaved normalized float32 samples;
// wire formats exist only at the network boundary and device formats
// only at the output boundary.
//
// Example:
//
//	format, err := audio.ParseSampleFormat("L24")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	convert, _ := audio.ConverterFor(format)
//	samples := convert(payload) // []float32 in -1..1
package audio
