// ABOUTME: mDNS browsing for stream-capable devices on the local network
// ABOUTME: Repeated query rounds feed a deduplicated device channel
package discovery

import (
	"context"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// DefaultMDNSService is the service type AES67 and RAVENNA devices
// conventionally register under.
const DefaultMDNSService = "_rtsp._tcp"

// Device is a discovered network audio device. Its session description
// still has to be fetched from the device itself.
type Device struct {
	Name string
	Host string
	Port int
}

// MDNSConfig configures an MDNSBrowser.
type MDNSConfig struct {
	// Service overrides the service type to browse for.
	Service string

	// Timeout bounds each query round (default 3s).
	Timeout time.Duration

	// Log overrides the logger entry. Optional.
	Log *logrus.Entry
}

// MDNSBrowser repeatedly queries the local network for devices and
// reports each one once.
type MDNSBrowser struct {
	cfg     MDNSConfig
	log     *logrus.Entry
	devices chan Device
	done    chan struct{}
}

// NewMDNSBrowser creates a browser for the configured service type.
func NewMDNSBrowser(cfg MDNSConfig) *MDNSBrowser {
	if cfg.Service == "" {
		cfg.Service = DefaultMDNSService
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("service", cfg.Service)

	return &MDNSBrowser{
		cfg:     cfg,
		log:     log,
		devices: make(chan Device, 10),
		done:    make(chan struct{}),
	}
}

// Start launches the browse loop, which runs query rounds until ctx is
// canceled. The device channel is closed when the loop exits.
func (b *MDNSBrowser) Start(ctx context.Context) {
	go b.browseLoop(ctx)
}

// Devices is the stream of discovered devices, each reported once. It
// is closed when the browse loop exits.
func (b *MDNSBrowser) Devices() <-chan Device {
	return b.devices
}

// Done is closed once the browse loop has exited.
func (b *MDNSBrowser) Done() <-chan struct{} {
	return b.done
}

func (b *MDNSBrowser) browseLoop(ctx context.Context) {
	defer close(b.done)
	defer close(b.devices)

	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		drained := make(chan struct{})

		go func() {
			defer close(drained)
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				if _, ok := seen[entry.Name]; ok {
					continue
				}
				seen[entry.Name] = struct{}{}

				dev := Device{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}
				b.log.Infof("Discovered device: %s at %s:%d", dev.Name, dev.Host, dev.Port)

				select {
				case b.devices <- dev:
				case <-ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: b.cfg.Service,
			Domain:  "local",
			Timeout: b.cfg.Timeout,
			Entries: entries,
		}
		if err := mdns.Query(params); err != nil {
			b.log.Warnf("query round failed: %v", err)
		}
		close(entries)
		<-drained
	}
}
