// ABOUTME: Tests for session construction and fast-fail validation
// ABOUTME: Device-dependent paths are covered by the player and stream tests
package sdplay

import (
	"context"
	"net"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/player"
	"github.com/sdplay/sdplay-go/pkg/sdp"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func testDescriptor() sdp.StreamDescriptor {
	return sdp.StreamDescriptor{
		Group:      net.ParseIP("239.69.11.44"),
		Port:       5004,
		Channels:   2,
		SampleRate: 48000,
		Format:     audio.FormatS16BE,
		PacketTime: 1.0,
	}
}

func TestOpenRejectsInvalidDescriptor(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sdp.StreamDescriptor)
	}{
		{"nil group", func(d *sdp.StreamDescriptor) { d.Group = nil }},
		{"unicast group", func(d *sdp.StreamDescriptor) { d.Group = net.ParseIP("192.168.1.10") }},
		{"ipv6 group", func(d *sdp.StreamDescriptor) { d.Group = net.ParseIP("ff02::1") }},
		{"zero port", func(d *sdp.StreamDescriptor) { d.Port = 0 }},
		{"zero rate", func(d *sdp.StreamDescriptor) { d.SampleRate = 0 }},
		{"zero channels", func(d *sdp.StreamDescriptor) { d.Channels = 0 }},
		{"unknown format", func(d *sdp.StreamDescriptor) { d.Format = audio.FormatUnknown }},
		{"zero packet time", func(d *sdp.StreamDescriptor) { d.PacketTime = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDescriptor()
			tt.mutate(&desc)
			s, err := Open(context.Background(), desc, Options{Log: testLogger()})
			if err == nil {
				s.Stop()
				s.Wait()
				t.Fatal("Open accepted an invalid descriptor")
			}
		})
	}
}

func TestOpenRejectsUnknownDeviceFormat(t *testing.T) {
	_, err := Open(context.Background(), testDescriptor(), Options{
		DeviceFormat: player.DeviceFormat(99),
		Log:          testLogger(),
	})
	if err == nil {
		t.Fatal("Open accepted an unknown device format")
	}
}
