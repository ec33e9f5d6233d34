// ABOUTME: Playback engine owning the output device and the bridge loop
// ABOUTME: Pulls converted samples through the elastic buffer at device pace
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/sdp"
)

// bridgeDepth bounds how many payloads may queue between the receive
// loop and the device feed before backpressure reaches the receiver.
const bridgeDepth = 256

// EngineConfig configures a playback engine.
type EngineConfig struct {
	// Descriptor is the stream being played.
	Descriptor sdp.StreamDescriptor

	// BufferMultiplier scales the device buffer depth; 0 selects the
	// default of 45 per channel.
	BufferMultiplier int

	// DeviceFormat picks the hardware sample representation. The zero
	// value is 32-bit little-endian float.
	DeviceFormat DeviceFormat

	// Volume is the initial volume from 0 to 100; 0 means default 100.
	Volume int

	// MeterTap receives a copy of every block written to the device.
	// Optional; a nil tap disables metering.
	MeterTap chan<- []float32

	// Log overrides the default logger.
	Log *logrus.Entry
}

// EngineStats is a point-in-time snapshot of playback counters.
type EngineStats struct {
	// PacketsBridged counts payloads handed to the elastic buffer.
	PacketsBridged int64
	// SamplesPlayed counts samples drained by the device.
	SamplesPlayed int64
	// ShortReads counts device reads the buffer could not fill, which
	// only happens while draining the stream tail.
	ShortReads int64
	// MeterDrops counts blocks the level meter was too slow to take.
	MeterDrops int64
	// BufferedSamples is the elastic buffer depth after the last read.
	BufferedSamples int
}

// Engine drives one output device from a stream of raw RTP payloads.
// The device pulls at its own hardware pace; the engine's bridge loop
// pushes payloads toward it and the elastic buffer absorbs the
// difference.
type Engine struct {
	cfg  EngineConfig
	desc sdp.StreamDescriptor
	log  *logrus.Entry

	vol    *volumeState
	reader *elasticReader
	bridge chan []byte
	done   chan struct{}

	otoCtx *oto.Context
	player *oto.Player

	bridged   atomic.Int64
	closeOnce sync.Once
}

// NewEngine validates the configuration and builds an engine. The
// output device is not touched until Start.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, err
	}
	convert, err := audio.ConverterFor(cfg.Descriptor.Format)
	if err != nil {
		return nil, err
	}
	enc, err := encoderFor(cfg.DeviceFormat)
	if err != nil {
		return nil, err
	}
	if cfg.Volume == 0 {
		cfg.Volume = 100
	}

	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"format": cfg.Descriptor.Format.String(),
		"rate":   cfg.Descriptor.SampleRate,
	})

	e := &Engine{
		cfg:    cfg,
		desc:   cfg.Descriptor,
		log:    log,
		vol:    newVolumeState(cfg.Volume),
		bridge: make(chan []byte, bridgeDepth),
		done:   make(chan struct{}),
	}

	capacity := e.desc.DeviceBufferSamples(cfg.BufferMultiplier) + e.desc.SamplesPerPacket()
	e.reader = newElasticReader(e.bridge, convert, enc, cfg.MeterTap, e.vol, log, capacity)
	return e, nil
}

// Start opens the output device and launches the bridge loop. Payloads
// read from packets flow into the elastic buffer until the channel
// closes or ctx is canceled; either closes the bridge so the device
// feed drains the tail and stops.
func (e *Engine) Start(ctx context.Context, packets <-chan []byte) error {
	frames := e.desc.DeviceBufferSamples(e.cfg.BufferMultiplier)
	bufferSize := time.Duration(frames) * time.Second / time.Duration(e.desc.SampleRate)

	op := &oto.NewContextOptions{
		SampleRate:   e.desc.SampleRate,
		ChannelCount: e.desc.Channels,
		Format:       e.reader.enc.otoFormat(),
		BufferSize:   bufferSize,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}

	<-readyChan

	e.otoCtx = otoCtx
	e.player = otoCtx.NewPlayer(e.reader)

	go e.bridgeLoop(ctx, packets)

	e.player.Play()
	e.log.Infof("Audio output initialized: %dHz, %d channels, %d frame buffer (%v)",
		e.desc.SampleRate, e.desc.Channels, frames, bufferSize)
	return nil
}

// bridgeLoop forwards receiver payloads into the bridge channel.
// Closing the bridge is what lets a blocked device read return, so the
// loop closes it on every exit path.
func (e *Engine) bridgeLoop(ctx context.Context, packets <-chan []byte) {
	defer close(e.done)
	defer close(e.bridge)

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			select {
			case e.bridge <- pkt:
				e.bridged.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}
}

// Done is closed once the bridge loop has exited and no further
// payloads will reach the device.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Close stops the player and suspends the device context. Safe to call
// more than once and before Start.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.player != nil {
			err = e.player.Close()
			e.player = nil
		}
		if e.otoCtx != nil {
			e.otoCtx.Suspend()
			e.otoCtx = nil
		}
	})
	return err
}

// SetVolume sets the playback volume from 0 to 100.
func (e *Engine) SetVolume(volume int) {
	volume = clampVolume(volume)
	e.vol.level.Store(int32(volume))
	e.log.Infof("Volume set to %d", volume)
}

// SetMuted sets the mute state.
func (e *Engine) SetMuted(muted bool) {
	e.vol.muted.Store(muted)
	e.log.Infof("Muted: %v", muted)
}

// Volume returns the current volume.
func (e *Engine) Volume() int {
	return int(e.vol.level.Load())
}

// Muted reports the mute state.
func (e *Engine) Muted() bool {
	return e.vol.muted.Load()
}

// Stats returns a snapshot of the playback counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		PacketsBridged:  e.bridged.Load(),
		SamplesPlayed:   e.reader.samplesOut.Load(),
		ShortReads:      e.reader.shortReads.Load(),
		MeterDrops:      e.reader.tapDrops.Load(),
		BufferedSamples: int(e.reader.buffered.Load()),
	}
}

// BufferTarget reports the device buffer size in frames and its
// duration at the stream's sample rate.
func (e *Engine) BufferTarget() (frames int, duration time.Duration) {
	frames = e.desc.DeviceBufferSamples(e.cfg.BufferMultiplier)
	duration = time.Duration(frames) * time.Second / time.Duration(e.desc.SampleRate)
	return frames, duration
}
