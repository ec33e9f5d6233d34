// ABOUTME: Peak level meter consuming duplicated sample blocks
// ABOUTME: Reports loudness in dB and audio throughput once per second
package audio

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Report is one meter window: the peak level observed and how much
// audio passed through while it accumulated.
type Report struct {
	Peak   float32       // linear peak magnitude, 0..1 for normalized streams
	PeakDB float64       // 20*log10(peak); -Inf for a silent window
	Frames int           // sample count divided by channel count
	Audio  time.Duration // frame count expressed as playback time
}

// MeterConfig configures a Meter.
type MeterConfig struct {
	// Channels is the stream's interleaved channel count.
	Channels int

	// SampleRate is the stream's sample rate in Hz.
	SampleRate int

	// Interval between reports (default: 1s).
	Interval time.Duration

	// OnReport is called with each completed window. Optional.
	OnReport func(Report)

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// Meter tracks peak amplitude over wall-clock windows. It is a
// best-effort observer: it never influences playback and tolerates
// being starved.
type Meter struct {
	cfg  MeterConfig
	done chan struct{}
}

// NewMeter creates a meter for the given stream shape.
func NewMeter(cfg MeterConfig) *Meter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Meter{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start consumes sample blocks on its own goroutine until in is closed.
func (m *Meter) Start(in <-chan []float32) {
	go m.run(in)
}

// Done is closed once the meter loop has exited.
func (m *Meter) Done() <-chan struct{} {
	return m.done
}

func (m *Meter) run(in <-chan []float32) {
	defer close(m.done)

	var peak float32
	var samples int
	windowStart := time.Now()

	for block := range in {
		for _, s := range block {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		samples += len(block)

		if elapsed := time.Since(windowStart); elapsed >= m.cfg.Interval {
			m.report(peak, samples)
			peak = 0
			samples = 0
			windowStart = time.Now()
		}
	}
}

func (m *Meter) report(peak float32, samples int) {
	db := 20 * math.Log10(float64(peak))
	frames := samples / m.cfg.Channels

	var audio time.Duration
	if m.cfg.SampleRate > 0 {
		audio = time.Duration(frames) * time.Second / time.Duration(m.cfg.SampleRate)
	}

	m.cfg.Log.Debugf("Audio level: %.2f dB (%d frames, %d ms)", db, frames, audio.Milliseconds())

	if m.cfg.OnReport != nil {
		m.cfg.OnReport(Report{
			Peak:   peak,
			PeakDB: db,
			Frames: frames,
			Audio:  audio,
		})
	}
}
