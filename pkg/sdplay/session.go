// ABOUTME: Session lifecycle wiring receiver, playback engine and meter
// ABOUTME: One session is one playing stream with broadcast stop semantics
package sdplay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/player"
	"github.com/sdplay/sdplay-go/pkg/sdp"
	"github.com/sdplay/sdplay-go/pkg/stream"
)

// meterTapDepth buffers duplicated sample blocks toward the meter. The
// tap is lossy beyond that, never blocking.
const meterTapDepth = 16

// Options tune a session beyond what the descriptor dictates.
type Options struct {
	// BufferMultiplier scales the device buffer; 0 keeps the default
	// of 45 per channel.
	BufferMultiplier int

	// DeviceFormat picks the output sample representation.
	DeviceFormat player.DeviceFormat

	// Volume is the initial volume from 0 to 100; 0 means default 100.
	Volume int

	// MeterInterval spaces level reports (default 1s).
	MeterInterval time.Duration

	// ReceiverReports enables periodic RTCP receiver reports toward
	// the sender on the port above the media port.
	ReceiverReports bool

	// ReportInterval spaces receiver reports when enabled.
	ReportInterval time.Duration

	// OnLevel is called with each completed meter window. Optional.
	OnLevel func(audio.Report)

	// OnPacket is called per received payload with its size. Optional.
	OnPacket func(payloadBytes int)

	// OnLoss is called with the gap size when packets went missing.
	// Optional.
	OnLoss func(missing int)

	// OnReordered is called for duplicate and late packets. Optional.
	OnReordered func()

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// Stats is a point-in-time snapshot across the whole session.
type Stats struct {
	ID         string
	Descriptor sdp.StreamDescriptor
	Started    time.Time
	Receiver   stream.ReceiverStats
	Playback   player.EngineStats
	Volume     int
	Muted      bool
}

// Session is one playing stream from multicast socket to output device.
// Stopping is a broadcast: one Stop (or a canceled parent context)
// reaches every stage, and Wait does not return until all of them are
// down and the socket and device are released.
type Session struct {
	id      string
	desc    sdp.StreamDescriptor
	log     *logrus.Entry
	started time.Time

	cancel   context.CancelFunc
	receiver *stream.Receiver
	engine   *player.Engine
	meter    *audio.Meter
	tap      chan []float32

	stopOnce sync.Once
	done     chan struct{}
	waitErr  error
}

// Open validates the descriptor, binds the multicast socket, opens the
// output device and starts playback. Everything that can fail fast
// fails here; after Open returns the session runs until Stop, parent
// cancellation or a fatal receive error.
func Open(ctx context.Context, desc sdp.StreamDescriptor, opts Options) (*Session, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", id[:8])

	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:      id,
		desc:    desc,
		log:     log,
		started: time.Now(),
		cancel:  cancel,
		tap:     make(chan []float32, meterTapDepth),
		done:    make(chan struct{}),
	}

	recvErr := make(chan error, 1)
	s.receiver = stream.NewReceiver(stream.ReceiverConfig{
		Descriptor:  desc,
		Log:         log,
		OnPacket:    opts.OnPacket,
		OnLoss:      opts.OnLoss,
		OnReordered: opts.OnReordered,
		OnError: func(err error) {
			select {
			case recvErr <- err:
			default:
			}
		},
	})

	engine, err := player.NewEngine(player.EngineConfig{
		Descriptor:       desc,
		BufferMultiplier: opts.BufferMultiplier,
		DeviceFormat:     opts.DeviceFormat,
		Volume:           opts.Volume,
		MeterTap:         s.tap,
		Log:              log,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.engine = engine

	s.meter = audio.NewMeter(audio.MeterConfig{
		Channels:   desc.Channels,
		SampleRate: desc.SampleRate,
		Interval:   opts.MeterInterval,
		OnReport:   opts.OnLevel,
		Log:        log,
	})

	if err := s.receiver.Start(sctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start receiver: %w", err)
	}

	if err := s.engine.Start(sctx, s.receiver.Packets()); err != nil {
		cancel()
		<-s.receiver.Done()
		return nil, fmt.Errorf("start playback: %w", err)
	}

	s.meter.Start(s.tap)

	if opts.ReceiverReports {
		reporter := stream.NewReporter(stream.ReporterConfig{
			Stats:    s.receiver.Stats,
			Group:    desc.Group,
			Port:     desc.Port + 1,
			Interval: opts.ReportInterval,
			Log:      log,
		})
		if err := reporter.Start(sctx); err != nil {
			log.Warnf("receiver reports disabled: %v", err)
		}
	}

	g := new(errgroup.Group)

	// Teardown sequencer. The bridge closing means no more input; only
	// after the device is closed may the meter tap close, because the
	// device feed is what sends into it.
	g.Go(func() error {
		<-s.engine.Done()
		err := s.engine.Close()
		close(s.tap)
		<-s.meter.Done()
		return err
	})

	// A fatal receive error ends the pipeline from the top; surface it.
	g.Go(func() error {
		<-s.receiver.Done()
		select {
		case err := <-recvErr:
			return fmt.Errorf("receiver failed: %w", err)
		default:
			return nil
		}
	})

	go func() {
		s.waitErr = g.Wait()
		close(s.done)
		s.log.Infof("session closed")
	}()

	log.Infof("session %s playing %s", id, desc)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Descriptor returns the stream this session plays.
func (s *Session) Descriptor() sdp.StreamDescriptor {
	return s.desc
}

// Stop asks every stage to shut down. It is safe to call repeatedly
// and returns immediately; Wait observes completion.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.log.Infof("stop requested")
		s.cancel()
	})
}

// Done is closed once every stage has fully shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session has fully shut down and returns the
// first fatal error, if any. Stopping normally yields nil.
func (s *Session) Wait() error {
	<-s.done
	return s.waitErr
}

// Stats snapshots the whole pipeline.
func (s *Session) Stats() Stats {
	return Stats{
		ID:         s.id,
		Descriptor: s.desc,
		Started:    s.started,
		Receiver:   s.receiver.Stats(),
		Playback:   s.engine.Stats(),
		Volume:     s.engine.Volume(),
		Muted:      s.engine.Muted(),
	}
}

// SetVolume sets the playback volume from 0 to 100.
func (s *Session) SetVolume(volume int) {
	s.engine.SetVolume(volume)
}

// SetMuted sets the mute state.
func (s *Session) SetMuted(muted bool) {
	s.engine.SetMuted(muted)
}

// Volume returns the current volume.
func (s *Session) Volume() int {
	return s.engine.Volume()
}

// Muted reports the mute state.
func (s *Session) Muted() bool {
	return s.engine.Muted()
}
