// ABOUTME: Preset package for named, reusable stream definitions
// ABOUTME: Documents the YAML file layout and resolution rules
// Package preset stores named stream definitions in a YAML file.
//
// A preset names exactly one way to reach a stream:
//   - sdp: an inline session description
//   - sdp_file: a description on disk
//   - sdp_url: a description fetched over HTTP
//   - stream: the group, port and shape spelled out directly
//
// The file lives at the user config directory under sdplay/presets.yml
// by default:
//
//	presets:
//	  studio-a:
//	    sdp_file: /etc/sdplay/studio-a.sdp
//	  lobby:
//	    stream:
//	      group: 239.10.20.30
//	      channels: 8
//	      sample_rate: 96000
//	      format: L24
//
// Example:
//
//	store, err := preset.Open(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := store.Get("studio-a")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	desc, err := p.Resolve(ctx)
package preset
