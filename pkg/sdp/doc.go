// ABOUTME: SDP package documentation
// ABOUTME: Describes descriptor construction from session descriptions
// Package sdp turns SDP session descriptions into stream descriptors.
//
// A StreamDescriptor carries everything one playback session needs:
// multicast group, port, channel count, sample rate, wire sample format
// and packet time. Descriptors come from three places:
//   - Parse: raw SDP text, as published by AES67/Ravenna devices
//   - FromFile / FromURL: the same text read from disk or HTTP
//   - struct literals: tests and the control plane build them directly
//
// The descriptor also owns the buffer arithmetic derived from its
// fields: PacketBytes, SamplesPerPacket and DeviceBufferSamples.
//
// Example:
//
//	desc, err := sdp.FromFile("stage-left.sdp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(desc) // 239.69.11.44:5004 L24 8ch 48000Hz 1.0ms
package sdp
