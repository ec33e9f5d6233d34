// ABOUTME: Elastic buffer bridging packet arrival to the device pull clock
// ABOUTME: Single-owner float FIFO drained in device-sized chunks
package player

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/pkg/audio"
)

// elasticReader adapts the bridge channel to the output device's pull
// model. The device's feed goroutine is the only caller of Read, which
// makes it the buffer's single mutator; the FIFO needs no lock.
type elasticReader struct {
	bridge  <-chan []byte
	convert audio.Converter
	enc     sampleEncoder
	tap     chan<- []float32
	vol     *volumeState
	log     *logrus.Entry

	fifo   []float32
	closed bool

	samplesOut atomic.Int64
	shortReads atomic.Int64
	tapDrops   atomic.Int64
	buffered   atomic.Int64
}

func newElasticReader(bridge <-chan []byte, convert audio.Converter, enc sampleEncoder,
	tap chan<- []float32, vol *volumeState, log *logrus.Entry, capacity int) *elasticReader {
	return &elasticReader{
		bridge:  bridge,
		convert: convert,
		enc:     enc,
		tap:     tap,
		vol:     vol,
		log:     log,
		fifo:    make([]float32, 0, capacity),
	}
}

// Read fills p with device-format samples. While the buffer holds fewer
// samples than p demands it block-receives packets from the bridge and
// converts them; the bridge closing bounds that wait. Once the demand
// is met it drains exactly that many samples in FIFO order. After the
// bridge closes, whatever remains is written as a short read and the
// following call reports EOF, so the device stream winds down instead
// of blocking or panicking.
func (r *elasticReader) Read(p []byte) (int, error) {
	bytesPerSample := r.enc.bytesPerSample()
	want := len(p) / bytesPerSample
	if want == 0 {
		if r.closed && len(r.fifo) == 0 {
			return 0, io.EOF
		}
		return 0, nil
	}

	for len(r.fifo) < want && !r.closed {
		pkt, ok := <-r.bridge
		if !ok {
			r.closed = true
			break
		}
		r.fifo = append(r.fifo, r.convert(pkt)...)
	}

	n := want
	if len(r.fifo) < n {
		n = len(r.fifo)
	}
	if n == 0 {
		return 0, io.EOF
	}
	if n < want {
		r.shortReads.Add(1)
	}

	block := r.fifo[:n]
	r.forwardToMeter(block)
	r.enc.encode(p, block, r.vol.multiplier())

	remaining := copy(r.fifo, r.fifo[n:])
	r.fifo = r.fifo[:remaining]

	r.samplesOut.Add(int64(n))
	r.buffered.Store(int64(remaining))
	return n * bytesPerSample, nil
}

// forwardToMeter duplicates the about-to-be-written block toward the
// level meter. The tap is fire-and-forget: a lagging meter costs a
// counter bump and a debug line, never playback.
func (r *elasticReader) forwardToMeter(block []float32) {
	if r.tap == nil {
		return
	}
	dup := make([]float32, len(block))
	copy(dup, block)

	select {
	case r.tap <- dup:
	default:
		r.tapDrops.Add(1)
		r.log.Debugf("level meter lagging, dropped a %d-sample block", len(dup))
	}
}
