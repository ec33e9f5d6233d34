// ABOUTME: Stream package documentation
// ABOUTME: Describes RTP reception and its diagnostics surface
// Package stream receives multicast RTP audio and hands payloads
// downstream in arrival order.
//
// The Receiver owns the group socket: it binds the stream's port, joins
// the multicast group on every capable interface, parses RTP headers
// and forwards payloads (header and padding stripped) over a buffered
// channel. Sequence numbers are tracked with wrapping 16-bit arithmetic
// purely for diagnostics; nothing is dropped or reordered on a gap.
//
// The Reporter optionally sends periodic RTCP receiver reports so
// senders can see loss from this receiver's point of view.
//
// Example:
//
//	recv := stream.NewReceiver(stream.ReceiverConfig{Descriptor: desc})
//	if err := recv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	for payload := range recv.Packets() {
//	    // decode and play
//	}
package stream
