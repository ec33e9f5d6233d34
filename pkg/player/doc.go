// ABOUTME: Playback engine package driving the output device
// ABOUTME: Documents the elastic buffer and device-paced pull model
// Package player turns a stream of raw RTP payloads into sound.
//
// The engine owns the output device and an elastic buffer between the
// network and the hardware clock:
//   - a bridge loop pushes received payloads into the buffer
//   - the device pulls fixed-size blocks out at its own pace
//   - the buffer absorbs arrival jitter in between
//
// The device never waits forever: stopping the engine closes the
// bridge, the buffer drains its tail as one short read, and the device
// stream ends cleanly.
//
// Example:
//
//	engine, err := player.NewEngine(player.EngineConfig{
//	    Descriptor: desc,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Start(ctx, receiver.Packets()); err != nil {
//	    log.Fatal(err)
//	}
package player
