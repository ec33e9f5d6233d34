// ABOUTME: RTP sequence number tracking with modular arithmetic
// ABOUTME: Classifies gaps and reorders, keeps cumulative loss accounting
package stream

// SequenceEvent classifies one observed RTP sequence number against its
// predecessor.
type SequenceEvent int

const (
	// SeqFirst is the first packet of a session; nothing to compare.
	SeqFirst SequenceEvent = iota

	// SeqInOrder is the expected successor.
	SeqInOrder

	// SeqLoss is a forward jump; one or more packets never arrived.
	SeqLoss

	// SeqReordered is a duplicate or a packet delivered late.
	SeqReordered
)

// reorderThreshold splits the 16-bit difference space: smaller forward
// differences are losses, everything at or above is a backwards step.
const reorderThreshold = 1 << 15

// sequenceTracker follows 16-bit sequence numbers using wrapping
// subtraction, so every wrap position behaves like the 65535->0
// boundary. The tracker only observes; payloads are never dropped or
// reordered because of it.
type sequenceTracker struct {
	initialized bool
	last        uint16
	cycles      uint32

	received  uint64
	lost      uint64
	reordered uint64
}

// observe records seq and classifies it. missing is the gap size when
// the event is SeqLoss, zero otherwise. The new number always becomes
// the comparison point, so a late packet resynchronizes the tracker
// instead of cascading diagnostics.
func (t *sequenceTracker) observe(seq uint16) (event SequenceEvent, missing uint16) {
	t.received++

	if !t.initialized {
		t.initialized = true
		t.last = seq
		return SeqFirst, 0
	}

	d := seq - t.last // uint16 subtraction wraps
	switch {
	case d == 1:
		event = SeqInOrder
	case d >= 2 && d < reorderThreshold:
		event = SeqLoss
		missing = d - 1
		t.lost += uint64(missing)
	default:
		event = SeqReordered
		t.reordered++
	}

	// A forward step that lands on a numerically smaller value passed
	// through zero.
	if d >= 1 && d < reorderThreshold && seq < t.last {
		t.cycles++
	}

	t.last = seq
	return event, missing
}

// extendedHighest returns the highest sequence number extended with the
// wrap cycle count, as carried in RTCP reception reports.
func (t *sequenceTracker) extendedHighest() uint32 {
	return t.cycles<<16 | uint32(t.last)
}
