// ABOUTME: Multicast RTP receiver feeding payloads downstream in arrival order
// ABOUTME: Owns the group socket, sequence diagnostics and receive rate stats
package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/pkg/sdp"
)

const (
	// packetChannelDepth absorbs arrival bursts between the socket loop
	// and the playback bridge.
	packetChannelDepth = 256

	// datagramSlack covers the RTP header, CSRCs and extensions on top
	// of the descriptor's payload size.
	datagramSlack = 256
)

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// Descriptor identifies the group, port and stream shape. Must be
	// validated by the caller.
	Descriptor sdp.StreamDescriptor

	// OnError is invoked once if the receive loop dies on a fatal
	// error. Optional.
	OnError func(error)

	// OnPacket is invoked per delivered payload with its size. Optional.
	OnPacket func(payloadBytes int)

	// OnLoss is invoked with the gap size when packets went missing.
	// Optional.
	OnLoss func(missing int)

	// OnReordered is invoked for duplicates and late arrivals. Optional.
	OnReordered func()

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// ReceiverStats is a point-in-time snapshot of receive accounting.
type ReceiverStats struct {
	Packets            uint64
	Lost               uint64
	Reordered          uint64
	LastPayloadBytes   int
	SSRC               uint32
	ExtendedHighestSeq uint32
}

// Receiver owns one multicast socket and turns its datagrams into an
// ordered payload stream. Sequence anomalies are logged and counted but
// never change what is forwarded.
type Receiver struct {
	cfg ReceiverConfig
	log *logrus.Entry

	ctx     context.Context
	conn    *net.UDPConn
	packets chan []byte
	done    chan struct{}

	mu          sync.Mutex
	seq         sequenceTracker
	ssrc        uint32
	lastPayload int
}

// NewReceiver creates a receiver for the descriptor's stream.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"group": cfg.Descriptor.Group.String(),
		"port":  cfg.Descriptor.Port,
	})

	return &Receiver{
		cfg:     cfg,
		log:     log,
		packets: make(chan []byte, packetChannelDepth),
		done:    make(chan struct{}),
	}
}

// Start binds the socket, joins the group and launches the receive
// loop. Bind and join failures surface here, before any loop runs. The
// loop stops when ctx is canceled or a fatal error occurs; either way
// the payload channel is closed so downstream sees end-of-stream.
func (r *Receiver) Start(ctx context.Context) error {
	conn, err := OpenMulticast(r.cfg.Descriptor.Group, r.cfg.Descriptor.Port)
	if err != nil {
		return err
	}

	if err := conn.SetReadBuffer(kernelReadBufferSize); err != nil {
		r.log.Warnf("could not grow kernel receive buffer: %v", err)
	}

	r.ctx = ctx
	r.conn = conn

	go r.watchStop()
	go r.run()

	r.log.Infof("receiving %s", r.cfg.Descriptor)
	return nil
}

// Packets is the ordered payload stream. It is closed when the receive
// loop exits.
func (r *Receiver) Packets() <-chan []byte {
	return r.packets
}

// Done is closed once the receive loop has fully exited and the socket
// is released.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Stats returns a snapshot of the receive accounting.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReceiverStats{
		Packets:            r.seq.received,
		Lost:               r.seq.lost,
		Reordered:          r.seq.reordered,
		LastPayloadBytes:   r.lastPayload,
		SSRC:               r.ssrc,
		ExtendedHighestSeq: r.seq.extendedHighest(),
	}
}

// watchStop unblocks the receive loop when the session stops: closing
// the socket makes the pending ReadFrom return immediately.
func (r *Receiver) watchStop() {
	select {
	case <-r.ctx.Done():
		r.conn.Close()
	case <-r.done:
	}
}

func (r *Receiver) run() {
	defer close(r.done)
	defer close(r.packets)
	defer r.conn.Close()

	bufSize := r.cfg.Descriptor.PacketBytes()*4 + datagramSlack
	if bufSize < 2048 {
		bufSize = 2048
	}
	buf := make([]byte, bufSize)

	windowStart := time.Now()
	windowPackets := 0

	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			if r.ctx.Err() != nil {
				return // stop requested; the socket was closed under the read
			}
			r.fail(fmt.Errorf("socket receive: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			r.fail(fmt.Errorf("malformed RTP packet: %w", err))
			return
		}

		r.observe(&pkt)

		payload := make([]byte, len(pkt.Payload))
		copy(payload, pkt.Payload)

		select {
		case r.packets <- payload:
		case <-r.ctx.Done():
			return
		}

		if r.cfg.OnPacket != nil {
			r.cfg.OnPacket(len(payload))
		}

		windowPackets++
		if now := time.Now(); now.Sub(windowStart) >= time.Second {
			r.log.Debugf("Receiving %d packets/s; payload size: %d", windowPackets, len(payload))
			windowPackets = 0
			windowStart = now
		}
	}
}

func (r *Receiver) observe(pkt *rtp.Packet) {
	r.mu.Lock()
	event, missing := r.seq.observe(pkt.SequenceNumber)
	r.ssrc = pkt.SSRC
	r.lastPayload = len(pkt.Payload)
	r.mu.Unlock()

	switch event {
	case SeqLoss:
		r.log.Warnf("packet loss, %d packet(s)", missing)
		if r.cfg.OnLoss != nil {
			r.cfg.OnLoss(int(missing))
		}
	case SeqReordered:
		r.log.Warnf("inconsistent RTP sequence number %d", pkt.SequenceNumber)
		if r.cfg.OnReordered != nil {
			r.cfg.OnReordered()
		}
	}
}

func (r *Receiver) fail(err error) {
	r.log.Errorf("receive loop stopped: %v", err)
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}
