// ABOUTME: Stream descriptor for one multicast PCM session
// ABOUTME: Carries addressing, sample format and the packet size arithmetic
package sdp

import (
	"fmt"
	"net"

	"github.com/sdplay/sdplay-go/pkg/audio"
)

const (
	// DefaultPacketTime is assumed when a description carries no ptime
	// attribute, matching the common 1 ms AES67 packet cadence.
	DefaultPacketTime = 1.0

	// DefaultMultiplierPerChannel scales the channel count into the
	// default device buffer multiplier.
	DefaultMultiplierPerChannel = 45
)

// StreamDescriptor describes one multicast PCM stream. It is produced by
// the SDP layer (or filled in directly) and read-only afterwards; the
// receiver and the playback engine share one descriptor for the duration
// of a session.
type StreamDescriptor struct {
	// Group is the IPv4 multicast group carrying the stream.
	Group net.IP

	// Port is the UDP port the RTP stream arrives on.
	Port int

	// Channels is the interleaved channel count.
	Channels int

	// SampleRate in Hz.
	SampleRate int

	// Format is the wire sample encoding.
	Format audio.SampleFormat

	// PacketTime is the audio duration per packet in milliseconds.
	PacketTime float64
}

// Validate checks the descriptor before a session is built from it.
// Everything downstream assumes a validated descriptor.
func (d StreamDescriptor) Validate() error {
	if d.Group == nil || d.Group.To4() == nil {
		return fmt.Errorf("group %v is not an IPv4 address", d.Group)
	}
	if !d.Group.IsMulticast() {
		return fmt.Errorf("group %v is not a multicast address", d.Group)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range", d.Port)
	}
	if d.Channels <= 0 {
		return fmt.Errorf("channel count %d must be positive", d.Channels)
	}
	if d.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d must be positive", d.SampleRate)
	}
	if d.PacketTime <= 0 {
		return fmt.Errorf("packet time %.2f ms must be positive", d.PacketTime)
	}
	if d.Format.BytesPerSample() == 0 {
		return fmt.Errorf("unsupported sample format %q", d.Format)
	}
	return nil
}

// PacketBytes returns channels * packet_time_ms * sample_rate / 1000,
// the per-packet size that dimensions receive buffers and, scaled by the
// multiplier, the device buffer. For a 2-channel 48 kHz stream at 1.0 ms
// this is 96.
func (d StreamDescriptor) PacketBytes() int {
	return int(float64(d.Channels) * d.PacketTime * float64(d.SampleRate) / 1000.0)
}

// SamplesPerPacket returns PacketBytes divided by the wire sample size.
func (d StreamDescriptor) SamplesPerPacket() int {
	return d.PacketBytes() / d.Format.BytesPerSample()
}

// DeviceBufferSamples returns the output device buffer length, in
// frames, for the given depth multiplier. A multiplier of 0 or less
// selects the default of 45 per channel, so a stereo stream buffers
// about 90 packets of audio.
func (d StreamDescriptor) DeviceBufferSamples(multiplier int) int {
	if multiplier <= 0 {
		multiplier = DefaultMultiplierPerChannel * d.Channels
	}
	return d.PacketBytes() * multiplier / d.Format.BytesPerSample()
}

// String renders a compact one-line summary for logs.
func (d StreamDescriptor) String() string {
	return fmt.Sprintf("%s:%d %s %dch %dHz %.1fms",
		d.Group, d.Port, d.Format, d.Channels, d.SampleRate, d.PacketTime)
}
