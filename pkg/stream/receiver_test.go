// ABOUTME: Tests for the multicast RTP receiver
// ABOUTME: Uses loopback sockets to drive delivery, diagnostics and shutdown
package stream

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/sdp"
)

func testDescriptor(port int) sdp.StreamDescriptor {
	return sdp.StreamDescriptor{
		Group:      net.ParseIP("239.77.77.77"),
		Port:       port,
		Channels:   2,
		SampleRate: 48000,
		Format:     audio.FormatS16BE,
		PacketTime: 1.0,
	}
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("probe free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func dialReceiver(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func marshalRTP(t *testing.T, seq uint16, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 48,
			SSRC:           0x53445041,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal RTP packet: %v", err)
	}
	return buf
}

func awaitPayload(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case p, ok := <-ch:
		if !ok {
			t.Fatal("packet channel closed early")
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
	}
	return nil
}

func awaitClosed(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestReceiverDeliversPayloadsInOrder(t *testing.T) {
	port := freeUDPPort(t)
	recv := NewReceiver(ReceiverConfig{Descriptor: testDescriptor(port)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn := dialReceiver(t, port)
	payloads := [][]byte{{0x01, 0x02}, {0x03, 0x04}, {0x05, 0x06}}
	for i, p := range payloads {
		if _, err := conn.Write(marshalRTP(t, uint16(100+i), p)); err != nil {
			t.Fatalf("send packet %d: %v", i, err)
		}
	}

	for i, want := range payloads {
		got := awaitPayload(t, recv.Packets())
		if string(got) != string(want) {
			t.Errorf("payload %d = %v, want %v", i, got, want)
		}
	}

	cancel()
	awaitClosed(t, "receiver shutdown", recv.Done())
}

func TestReceiverSequenceDiagnostics(t *testing.T) {
	port := freeUDPPort(t)
	losses := make(chan int, 4)
	reorders := make(chan struct{}, 4)

	recv := NewReceiver(ReceiverConfig{
		Descriptor:  testDescriptor(port),
		OnLoss:      func(n int) { losses <- n },
		OnReordered: func() { reorders <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn := dialReceiver(t, port)
	// 10 -> 12 skips one packet, the repeated 12 is a duplicate.
	for _, seq := range []uint16{10, 12, 12} {
		if _, err := conn.Write(marshalRTP(t, seq, []byte{0x00, 0x00})); err != nil {
			t.Fatalf("send seq %d: %v", seq, err)
		}
	}

	for i := 0; i < 3; i++ {
		awaitPayload(t, recv.Packets())
	}

	select {
	case n := <-losses:
		if n != 1 {
			t.Errorf("loss diagnostic = %d missing, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no loss diagnostic fired")
	}

	select {
	case <-reorders:
	case <-time.After(2 * time.Second):
		t.Fatal("no reorder diagnostic fired")
	}

	stats := recv.Stats()
	if stats.Packets != 3 {
		t.Errorf("packets = %d, want 3", stats.Packets)
	}
	if stats.Lost != 1 {
		t.Errorf("lost = %d, want 1", stats.Lost)
	}
	if stats.Reordered != 1 {
		t.Errorf("reordered = %d, want 1", stats.Reordered)
	}
}

func TestReceiverIgnoresZeroLengthDatagrams(t *testing.T) {
	port := freeUDPPort(t)
	recv := NewReceiver(ReceiverConfig{Descriptor: testDescriptor(port)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn := dialReceiver(t, port)
	if _, err := conn.Write(nil); err != nil {
		t.Fatalf("send empty datagram: %v", err)
	}
	if _, err := conn.Write(marshalRTP(t, 7, []byte{0xAA, 0xBB})); err != nil {
		t.Fatalf("send packet: %v", err)
	}

	got := awaitPayload(t, recv.Packets())
	if string(got) != string([]byte{0xAA, 0xBB}) {
		t.Errorf("payload = %v, want [aa bb]", got)
	}

	if stats := recv.Stats(); stats.Packets != 1 {
		t.Errorf("packets = %d, want 1 (empty datagram not counted)", stats.Packets)
	}
}

func TestReceiverStripsPadding(t *testing.T) {
	port := freeUDPPort(t)
	recv := NewReceiver(ReceiverConfig{Descriptor: testDescriptor(port)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Hand-built packet with the padding bit set: version 2, padding,
	// payload type 96, sequence 5, then "abcd" plus a 4-byte pad block.
	datagram := []byte{
		0xA0, 0x60, 0x00, 0x05,
		0x00, 0x00, 0x00, 0x00,
		0x11, 0x22, 0x33, 0x44,
		'a', 'b', 'c', 'd',
		0x00, 0x00, 0x00, 0x04,
	}

	conn := dialReceiver(t, port)
	if _, err := conn.Write(datagram); err != nil {
		t.Fatalf("send padded packet: %v", err)
	}

	got := awaitPayload(t, recv.Packets())
	if string(got) != "abcd" {
		t.Errorf("payload = %q, want %q with padding stripped", got, "abcd")
	}
}

func TestReceiverStopWhileBlocked(t *testing.T) {
	port := freeUDPPort(t)
	recv := NewReceiver(ReceiverConfig{Descriptor: testDescriptor(port)})

	ctx, cancel := context.WithCancel(context.Background())
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// No traffic at all: the loop is parked in the socket read. Stop
	// must still take effect promptly.
	cancel()
	awaitClosed(t, "receiver shutdown with no traffic", recv.Done())

	if _, ok := <-recv.Packets(); ok {
		t.Error("packet channel delivered data after stop")
	}
}

func TestReceiverFatalOnMalformedPacket(t *testing.T) {
	port := freeUDPPort(t)
	errs := make(chan error, 1)

	recv := NewReceiver(ReceiverConfig{
		Descriptor: testDescriptor(port),
		OnError:    func(err error) { errs <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := recv.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn := dialReceiver(t, port)
	if _, err := conn.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("send garbage: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("OnError delivered nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no fatal error reported for malformed packet")
	}

	awaitClosed(t, "receiver shutdown after fatal error", recv.Done())
}

func TestReceiverStartFailsOnBusyPort(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	recv := NewReceiver(ReceiverConfig{Descriptor: testDescriptor(port)})
	err = recv.Start(context.Background())
	if err == nil {
		t.Fatal("expected bind error on busy port, got nil")
	}
	if !strings.Contains(err.Error(), "bind") {
		t.Errorf("error %q does not describe the bind failure", err)
	}
}
