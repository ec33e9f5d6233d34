// ABOUTME: Entry point for the sdplay stream player
// ABOUTME: Resolves a stream source from CLI flags and plays one session
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/internal/ui"
	"github.com/sdplay/sdplay-go/internal/version"
	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/discovery"
	"github.com/sdplay/sdplay-go/pkg/player"
	"github.com/sdplay/sdplay-go/pkg/preset"
	"github.com/sdplay/sdplay-go/pkg/sdp"
	"github.com/sdplay/sdplay-go/pkg/sdplay"
)

var (
	sdpFile      = flag.String("sdp", "", "Path to a session description file")
	sdpURL       = flag.String("url", "", "HTTP URL serving the session description")
	presetName   = flag.String("preset", "", "Play a named preset")
	group        = flag.String("group", "", "Multicast group address (describe the stream directly)")
	port         = flag.Int("port", 5004, "RTP port (with -group)")
	channels     = flag.Int("channels", 2, "Channel count (with -group)")
	rate         = flag.Int("rate", 48000, "Sample rate in Hz (with -group)")
	formatName   = flag.String("format", "L16", "Wire sample format: L16, L24, L32 or F32 (with -group)")
	packetTime   = flag.Float64("ptime", 1.0, "Packet time in milliseconds (with -group)")
	multiplier   = flag.Int("multiplier", 0, "Device buffer multiplier (0 = 45 per channel)")
	volume       = flag.Int("volume", 100, "Initial volume 0-100")
	deviceFormat = flag.String("device-format", "float32le", "Device sample format: float32le, int16le or uint8")
	rtcpReports  = flag.Bool("reports", false, "Send RTCP receiver reports back toward the sender")
	presetsFile  = flag.String("presets-file", "", "Preset file path (default: user config dir)")
	listPresets  = flag.Bool("list-presets", false, "List saved presets and exit")
	savePreset   = flag.String("save-preset", "", "Save the given stream source under this name and exit")
	discover     = flag.Bool("discover", false, "Browse SAP and mDNS announcements and exit")
	discoverFor  = flag.Duration("discover-for", 10*time.Second, "How long to browse with -discover")
	useTUI       = flag.Bool("tui", false, "Show the terminal level panel")
	logLevel     = flag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	logFile      = flag.String("log-file", "", "Log file path (default: stderr; the TUI discards logs unless set)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up logging
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level %q: %v", *logLevel, err)
	}
	logrus.SetLevel(level)

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			logrus.Fatalf("error opening log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		logrus.SetOutput(f)
	} else if *useTUI {
		// The panel owns the terminal; without a log file the logs
		// have nowhere sensible to go.
		logrus.SetOutput(io.Discard)
	}

	log := logrus.NewEntry(logrus.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *discover {
		if err := runDiscovery(ctx, log); err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		return
	}

	store := openPresetStore(log)

	if *listPresets {
		if store == nil {
			log.Fatalf("Preset store unavailable")
		}
		names := store.Names()
		if len(names) == 0 {
			fmt.Println("No presets saved.")
			return
		}
		for _, name := range names {
			p, err := store.Get(name)
			if err != nil {
				continue
			}
			fmt.Printf("%-20s %s\n", name, describePreset(p))
		}
		return
	}

	if *savePreset != "" {
		if store == nil {
			log.Fatalf("Preset store unavailable")
		}
		p, err := buildPreset()
		if err != nil {
			log.Fatalf("Cannot save preset: %v", err)
		}
		// Prove the source resolves before persisting it.
		if _, err := p.Resolve(ctx); err != nil {
			log.Fatalf("Stream source does not resolve: %v", err)
		}
		if err := store.Put(*savePreset, p); err != nil {
			log.Fatalf("Cannot save preset: %v", err)
		}
		if err := store.Save(); err != nil {
			log.Fatalf("Cannot save preset file: %v", err)
		}
		fmt.Printf("Saved preset %q\n", *savePreset)
		return
	}

	desc, err := resolveStream(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No stream to play: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	devFormat, err := player.ParseDeviceFormat(*deviceFormat)
	if err != nil {
		log.Fatalf("Invalid device format: %v", err)
	}

	// TUI setup
	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl

	if *useTUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg, err = ui.Run(volumeCtrl)
		if err != nil {
			log.Fatalf("Failed to start TUI: %v", err)
		}
		go tuiProg.Run()
	}

	// Helper to update TUI
	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	opts := sdplay.Options{
		BufferMultiplier: *multiplier,
		DeviceFormat:     devFormat,
		Volume:           *volume,
		ReceiverReports:  *rtcpReports,
		Log:              log,
		OnLevel: func(r audio.Report) {
			if tuiProg != nil {
				db := r.PeakDB
				updateTUI(ui.StatusMsg{LevelDB: &db})
				return
			}
			log.Infof("Level: %s peak over %d frames", formatPeak(r), r.Frames)
		},
	}

	session, err := sdplay.Open(ctx, desc, opts)
	if err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
			tuiProg.Wait()
		}
		log.Fatalf("Cannot play %s: %v", desc, err)
	}

	updateTUI(ui.StatusMsg{
		State:  "playing",
		Stream: fmt.Sprintf("%s:%d", desc.Group, desc.Port),
		Format: fmt.Sprintf("%s %dch %dHz @%.1fms", desc.Format, desc.Channels, desc.SampleRate, desc.PacketTime),
	})

	// Start volume control handler if TUI is enabled
	if volumeCtrl != nil {
		go handleVolumeControl(session, volumeCtrl)
	}

	// Start stats update loop for TUI
	if tuiProg != nil {
		go statsUpdateLoop(session, updateTUI)
	}

	// Wait for quit signal from TUI or OS
	if volumeCtrl != nil {
		select {
		case <-volumeCtrl.Quit:
			log.Infof("Quit requested from panel")
			session.Stop()
		case <-ctx.Done():
			session.Stop()
		case <-session.Done():
		}
	} else {
		select {
		case <-ctx.Done():
			log.Infof("Shutdown signal received")
			session.Stop()
		case <-session.Done():
		}
	}

	err = session.Wait()

	if tuiProg != nil {
		tuiProg.Quit()
		tuiProg.Wait()
	}

	if err != nil {
		log.Fatalf("Session failed: %v", err)
	}
	log.Infof("Player stopped")
}

// resolveStream picks the stream source. Explicit descriptor flags win
// over -sdp, which wins over -url, which wins over -preset.
func resolveStream(ctx context.Context, store *preset.Store) (sdp.StreamDescriptor, error) {
	switch {
	case *group != "":
		stream := preset.Stream{
			Group:      *group,
			Port:       *port,
			Channels:   *channels,
			SampleRate: *rate,
			Format:     *formatName,
			PacketTime: *packetTime,
		}
		return stream.Descriptor()
	case *sdpFile != "":
		return sdp.FromFile(*sdpFile)
	case *sdpURL != "":
		return sdp.FromURL(ctx, *sdpURL)
	case *presetName != "":
		if store == nil {
			return sdp.StreamDescriptor{}, fmt.Errorf("preset store unavailable")
		}
		p, err := store.Get(*presetName)
		if err != nil {
			return sdp.StreamDescriptor{}, err
		}
		return p.Resolve(ctx)
	}
	return sdp.StreamDescriptor{}, fmt.Errorf("pass -group, -sdp, -url or -preset")
}

// buildPreset captures the CLI stream source as a persistable preset.
func buildPreset() (preset.Preset, error) {
	switch {
	case *group != "":
		return preset.Preset{Stream: &preset.Stream{
			Group:      *group,
			Port:       *port,
			Channels:   *channels,
			SampleRate: *rate,
			Format:     *formatName,
			PacketTime: *packetTime,
		}}, nil
	case *sdpFile != "":
		return preset.Preset{SDPFile: *sdpFile}, nil
	case *sdpURL != "":
		return preset.Preset{SDPURL: *sdpURL}, nil
	}
	return preset.Preset{}, fmt.Errorf("pass -group, -sdp or -url together with -save-preset")
}

// openPresetStore opens the preset file, tolerating absence; only the
// preset-touching paths treat a nil store as fatal.
func openPresetStore(log *logrus.Entry) *preset.Store {
	path := *presetsFile
	if path == "" {
		p, err := preset.DefaultPath()
		if err != nil {
			log.Warnf("Preset store unavailable: %v", err)
			return nil
		}
		path = p
	}

	store, err := preset.Open(path)
	if err != nil {
		log.Warnf("Failed to load presets from %s: %v", path, err)
		return nil
	}
	return store
}

func describePreset(p preset.Preset) string {
	switch {
	case p.SDP != "":
		return "inline SDP"
	case p.SDPFile != "":
		return "file " + p.SDPFile
	case p.SDPURL != "":
		return p.SDPURL
	case p.Stream != nil:
		return fmt.Sprintf("stream %s:%d", p.Stream.Group, p.Stream.Port)
	}
	return "(empty)"
}

// runDiscovery browses SAP and mDNS for the configured window and
// prints everything that answers.
func runDiscovery(ctx context.Context, log *logrus.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, *discoverFor)
	defer cancel()

	sap := discovery.NewSAPListener(discovery.SAPConfig{Log: log})
	if err := sap.Start(ctx); err != nil {
		return fmt.Errorf("SAP listen: %w", err)
	}

	fmt.Printf("Browsing for streams (%s)...\n", *discoverFor)

	annCh := sap.Announcements()
	devCh := browseDevices(ctx, log)
	seenDevices := make(map[string]struct{})
	seen := 0

	for {
		select {
		case ann, ok := <-annCh:
			if !ok {
				annCh = nil
				continue
			}
			if ann.Deleted {
				fmt.Printf("SAP  deleted announcement from %s\n", ann.Origin)
				continue
			}
			fmt.Printf("SAP  %s\n", ann.Descriptor)
			seen++
		case dev, ok := <-devCh:
			if !ok {
				devCh = nil
				continue
			}
			if _, ok := seenDevices[dev.Name]; ok {
				continue
			}
			seenDevices[dev.Name] = struct{}{}
			fmt.Printf("mDNS %s at %s:%d\n", dev.Name, dev.Host, dev.Port)
			seen++
		case <-ctx.Done():
			if seen == 0 {
				fmt.Println("No streams found.")
			}
			return nil
		}
	}
}

// browseDevices merges mDNS results for the plain RTSP service type and
// the Ravenna session subtype into one channel. Devices advertising
// under both appear on both browsers; the caller deduplicates by name.
func browseDevices(ctx context.Context, log *logrus.Entry) <-chan discovery.Device {
	browsers := []*discovery.MDNSBrowser{
		discovery.NewMDNSBrowser(discovery.MDNSConfig{Log: log}),
		discovery.NewMDNSBrowser(discovery.MDNSConfig{
			Service: "_ravenna_session._sub._rtsp._tcp",
			Log:     log,
		}),
	}

	devices := make(chan discovery.Device, 10)
	var wg sync.WaitGroup
	for _, b := range browsers {
		b.Start(ctx)
		wg.Add(1)
		go func(ch <-chan discovery.Device) {
			defer wg.Done()
			for dev := range ch {
				select {
				case devices <- dev:
				case <-ctx.Done():
					return
				}
			}
		}(b.Devices())
	}
	go func() {
		wg.Wait()
		close(devices)
	}()
	return devices
}

// handleVolumeControl processes volume changes from TUI
func handleVolumeControl(session *sdplay.Session, volumeCtrl *ui.VolumeControl) {
	for {
		select {
		case vol := <-volumeCtrl.Changes:
			session.SetVolume(vol.Volume)
			session.SetMuted(vol.Muted)
		case <-session.Done():
			return
		}
	}
}

// statsUpdateLoop periodically pushes receiver and buffer statistics
// into the TUI.
func statsUpdateLoop(session *sdplay.Session, updateTUI func(ui.StatusMsg)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastPackets uint64
	last := time.Now()

	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			st := session.Stats()

			now := time.Now()
			elapsed := now.Sub(last).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(st.Receiver.Packets-lastPackets) / elapsed
			}
			lastPackets = st.Receiver.Packets
			last = now

			desc := st.Descriptor
			bufferedMs := 0.0
			if desc.SampleRate > 0 && desc.Channels > 0 {
				bufferedMs = float64(st.Playback.BufferedSamples) * 1000 /
					float64(desc.SampleRate*desc.Channels)
			}

			vol := st.Volume
			muted := st.Muted
			updateTUI(ui.StatusMsg{
				Stats: &ui.Stats{
					Packets:    int64(st.Receiver.Packets),
					PacketRate: rate,
					Lost:       int64(st.Receiver.Lost),
					Reordered:  int64(st.Receiver.Reordered),
					BufferedMs: bufferedMs,
				},
				Volume: &vol,
				Muted:  &muted,
			})
		}
	}
}

func formatPeak(r audio.Report) string {
	if math.IsInf(r.PeakDB, -1) {
		return "silent"
	}
	return fmt.Sprintf("%.1f dBFS", r.PeakDB)
}
