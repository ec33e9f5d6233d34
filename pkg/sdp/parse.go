// ABOUTME: SDP text parsing into stream descriptors
// ABOUTME: Uses the pion envelope parser plus regex attribute extraction
package sdp

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/sdplay/sdplay-go/pkg/audio"
)

// rtpmap carries "<payload type> <encoding>/<clock rate>[/<channels>]".
var rtpmapRegexp = regexp.MustCompile(`^\s*(\d+)\s+([A-Za-z0-9\-]+)/(\d+)(?:/(\d+))?`)

// Parse extracts a StreamDescriptor from raw SDP text. The first audio
// media section wins; its first rtpmap attribute selects the encoding.
// A missing ptime attribute falls back to DefaultPacketTime.
func Parse(raw string) (StreamDescriptor, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return StreamDescriptor{}, fmt.Errorf("malformed SDP: %w", err)
	}

	var media *psdp.MediaDescription
	for _, m := range sd.MediaDescriptions {
		if m.MediaName.Media == "audio" {
			media = m
			break
		}
	}
	if media == nil {
		return StreamDescriptor{}, errors.New("SDP has no audio media section")
	}

	group, err := connectionAddress(&sd, media)
	if err != nil {
		return StreamDescriptor{}, err
	}

	rtpmap := attribute(media, "rtpmap")
	if rtpmap == "" {
		return StreamDescriptor{}, errors.New("audio media has no rtpmap attribute")
	}
	m := rtpmapRegexp.FindStringSubmatch(rtpmap)
	if m == nil {
		return StreamDescriptor{}, fmt.Errorf("unparseable rtpmap attribute %q", rtpmap)
	}

	format, err := audio.ParseSampleFormat(m[2])
	if err != nil {
		return StreamDescriptor{}, err
	}

	rate, err := strconv.Atoi(m[3])
	if err != nil {
		return StreamDescriptor{}, fmt.Errorf("unparseable clock rate in %q", rtpmap)
	}

	// RFC 3551: an omitted channel count means one channel.
	channels := 1
	if m[4] != "" {
		channels, err = strconv.Atoi(m[4])
		if err != nil {
			return StreamDescriptor{}, fmt.Errorf("unparseable channel count in %q", rtpmap)
		}
	}

	ptime := DefaultPacketTime
	if v := attribute(media, "ptime"); v != "" {
		ptime, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return StreamDescriptor{}, fmt.Errorf("unparseable ptime attribute %q", v)
		}
	}

	desc := StreamDescriptor{
		Group:      group,
		Port:       media.MediaName.Port.Value,
		Channels:   channels,
		SampleRate: rate,
		Format:     format,
		PacketTime: ptime,
	}
	if err := desc.Validate(); err != nil {
		return StreamDescriptor{}, err
	}
	return desc, nil
}

// connectionAddress resolves the multicast group, preferring the
// media-level connection line over the session-level one.
func connectionAddress(sd *psdp.SessionDescription, media *psdp.MediaDescription) (net.IP, error) {
	conn := media.ConnectionInformation
	if conn == nil {
		conn = sd.ConnectionInformation
	}
	if conn == nil || conn.Address == nil {
		return nil, errors.New("SDP has no connection address")
	}

	// The address may carry a /TTL or /TTL/range suffix.
	addr, _, _ := strings.Cut(conn.Address.Address, "/")
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("unparseable connection address %q", conn.Address.Address)
	}
	return ip, nil
}

func attribute(media *psdp.MediaDescription, key string) string {
	for _, attr := range media.Attributes {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}
