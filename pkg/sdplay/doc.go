// ABOUTME: Top-level session package tying the playback pipeline together
// ABOUTME: Documents the open, stop and wait lifecycle
// Package sdplay plays multicast PCM streams described by SDP.
//
// A Session wires the full pipeline: the multicast receiver, the
// elastic-buffered playback engine and the level meter. Its lifecycle
// is deliberately small:
//   - Open binds the socket, opens the device and starts playing
//   - Stop broadcasts shutdown to every stage
//   - Wait blocks until the socket and device are released
//
// Canceling the context passed to Open has the same effect as Stop, so
// a session plugs directly into signal handling.
//
// Example:
//
//	desc, err := sdp.Parse(description)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := sdplay.Open(ctx, desc, sdplay.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	<-ctx.Done()
//	session.Stop()
//	if err := session.Wait(); err != nil {
//	    log.Fatal(err)
//	}
package sdplay
