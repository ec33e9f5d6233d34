// ABOUTME: Named stream presets and their single-source validation
// ABOUTME: Each preset resolves to one playable stream descriptor
package preset

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/sdp"
)

// ErrNotFound is returned when a named preset does not exist.
var ErrNotFound = errors.New("preset not found")

// Preset is one named way to reach a stream. Exactly one of the four
// source fields must be set.
type Preset struct {
	// SDP is an inline session description.
	SDP string `yaml:"sdp,omitempty" json:"sdp,omitempty"`

	// SDPFile points at a session description on disk.
	SDPFile string `yaml:"sdp_file,omitempty" json:"sdp_file,omitempty"`

	// SDPURL fetches a session description over HTTP.
	SDPURL string `yaml:"sdp_url,omitempty" json:"sdp_url,omitempty"`

	// Stream spells the stream out directly, without SDP.
	Stream *Stream `yaml:"stream,omitempty" json:"stream,omitempty"`
}

// Stream is a descriptor written directly into the preset file.
// Everything but the group falls back to the usual stereo 48 kHz L16
// defaults.
type Stream struct {
	Group      string  `yaml:"group" json:"group"`
	Port       int     `yaml:"port,omitempty" json:"port,omitempty"`
	Channels   int     `yaml:"channels,omitempty" json:"channels,omitempty"`
	SampleRate int     `yaml:"sample_rate,omitempty" json:"sample_rate,omitempty"`
	Format     string  `yaml:"format,omitempty" json:"format,omitempty"`
	PacketTime float64 `yaml:"packet_time,omitempty" json:"packet_time,omitempty"`
}

// Validate checks that the preset names exactly one source.
func (p Preset) Validate() error {
	n := 0
	if p.SDP != "" {
		n++
	}
	if p.SDPFile != "" {
		n++
	}
	if p.SDPURL != "" {
		n++
	}
	if p.Stream != nil {
		n++
	}
	switch n {
	case 0:
		return errors.New("preset needs one of sdp, sdp_file, sdp_url or stream")
	case 1:
		return nil
	}
	return fmt.Errorf("preset sets %d sources, want exactly one of sdp, sdp_file, sdp_url or stream", n)
}

// Resolve turns the preset into a validated stream descriptor, fetching
// or reading the session description if the preset points at one.
func (p Preset) Resolve(ctx context.Context) (sdp.StreamDescriptor, error) {
	if err := p.Validate(); err != nil {
		return sdp.StreamDescriptor{}, err
	}

	switch {
	case p.SDP != "":
		return sdp.Parse(p.SDP)
	case p.SDPFile != "":
		return sdp.FromFile(p.SDPFile)
	case p.SDPURL != "":
		return sdp.FromURL(ctx, p.SDPURL)
	}
	return p.Stream.Descriptor()
}

// Descriptor applies defaults and validates the directly spelled stream.
func (s *Stream) Descriptor() (sdp.StreamDescriptor, error) {
	desc := sdp.StreamDescriptor{
		Group:      net.ParseIP(s.Group),
		Port:       s.Port,
		Channels:   s.Channels,
		SampleRate: s.SampleRate,
		PacketTime: s.PacketTime,
		Format:     audio.FormatS16BE,
	}

	if desc.Port == 0 {
		desc.Port = 5004
	}
	if desc.Channels == 0 {
		desc.Channels = 2
	}
	if desc.SampleRate == 0 {
		desc.SampleRate = 48000
	}
	if desc.PacketTime == 0 {
		desc.PacketTime = sdp.DefaultPacketTime
	}
	if s.Format != "" {
		format, err := audio.ParseSampleFormat(s.Format)
		if err != nil {
			return sdp.StreamDescriptor{}, err
		}
		desc.Format = format
	}

	if err := desc.Validate(); err != nil {
		return sdp.StreamDescriptor{}, err
	}
	return desc, nil
}
