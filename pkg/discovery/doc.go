// ABOUTME: Stream discovery package for finding sessions on the network
// ABOUTME: Covers SAP announcements and mDNS device browsing
// Package discovery finds playable streams on the local network.
//
// Two mechanisms are supported:
//   - SAP: senders announce their sessions on the well-known group
//     239.255.255.255:9875; the listener parses each announcement into
//     a ready-to-play stream descriptor
//   - mDNS: stream-capable devices register under _rtsp._tcp; browsing
//     yields the devices, whose descriptions are then fetched directly
//
// Example:
//
//	listener := discovery.NewSAPListener(discovery.SAPConfig{})
//	if err := listener.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for ann := range listener.Announcements() {
//	    fmt.Printf("%s: %s\n", ann.Origin, ann.Descriptor)
//	}
package discovery
