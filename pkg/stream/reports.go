// ABOUTME: Periodic RTCP receiver reports toward the stream's sender
// ABOUTME: Summarizes cumulative and per-interval loss statistics
package stream

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/pion/rtcp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// DefaultReportInterval spaces receiver reports; five seconds keeps
// well under one percent of stream bandwidth for any supported shape.
const DefaultReportInterval = 5 * time.Second

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	// Stats supplies receive accounting snapshots, normally a
	// Receiver's Stats method.
	Stats func() ReceiverStats

	// Group and Port address the RTCP destination, conventionally the
	// media group with the port one above the media port.
	Group net.IP
	Port  int

	// Interval between reports (default: DefaultReportInterval).
	Interval time.Duration

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// Reporter periodically tells the sender what this receiver has seen.
// Reports are purely diagnostic; any failure to send is logged and the
// stream carries on.
type Reporter struct {
	cfg  ReporterConfig
	log  *logrus.Entry
	conn *net.UDPConn
	dest *net.UDPAddr
	ssrc uint32
	prev ReceiverStats
	done chan struct{}
}

// NewReporter creates a reporter sending toward group:port.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReportInterval
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reporter{
		cfg:  cfg,
		log:  log,
		dest: &net.UDPAddr{IP: cfg.Group, Port: cfg.Port},
		ssrc: rand.Uint32(),
		done: make(chan struct{}),
	}
}

// Start opens the sending socket and launches the report loop, which
// runs until ctx is canceled.
func (p *Reporter) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("bind RTCP socket: %w", err)
	}
	if p.dest.IP.IsMulticast() {
		ipv4.NewPacketConn(conn).SetMulticastTTL(multicastTTL)
	}
	p.conn = conn

	go p.run(ctx)
	return nil
}

// Done is closed once the report loop has exited.
func (p *Reporter) Done() <-chan struct{} {
	return p.done
}

func (p *Reporter) run(ctx context.Context) {
	defer close(p.done)
	defer p.conn.Close()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.send()
		}
	}
}

func (p *Reporter) send() {
	stats := p.cfg.Stats()
	if stats.Packets == 0 {
		return // nothing observed yet, nothing to report
	}

	receivedInterval := stats.Packets - p.prev.Packets
	lostInterval := stats.Lost - p.prev.Lost
	expectedInterval := receivedInterval + lostInterval

	var fraction uint8
	if expectedInterval > 0 {
		f := lostInterval * 256 / expectedInterval
		if f > 255 {
			f = 255
		}
		fraction = uint8(f)
	}

	totalLost := stats.Lost
	if totalLost > 0xFFFFFF {
		totalLost = 0xFFFFFF
	}

	rr := &rtcp.ReceiverReport{
		SSRC: p.ssrc,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               stats.SSRC,
			FractionLost:       fraction,
			TotalLost:          uint32(totalLost),
			LastSequenceNumber: stats.ExtendedHighestSeq,
		}},
	}

	buf, err := rr.Marshal()
	if err != nil {
		p.log.Warnf("marshal receiver report: %v", err)
		return
	}
	if _, err := p.conn.WriteToUDP(buf, p.dest); err != nil {
		p.log.Warnf("send receiver report: %v", err)
		return
	}

	p.prev = stats
}
