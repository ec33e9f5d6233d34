// ABOUTME: Entry point for the sdplayd control daemon
// ABOUTME: Serves the HTTP playback API, metrics and the live event stream
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/sdplay/sdplay-go/internal/control"
	"github.com/sdplay/sdplay-go/internal/observe"
	"github.com/sdplay/sdplay-go/internal/version"
	"github.com/sdplay/sdplay-go/pkg/player"
	"github.com/sdplay/sdplay-go/pkg/preset"
	"github.com/sdplay/sdplay-go/pkg/sdplay"
)

var (
	addr         = flag.String("addr", ":8080", "HTTP listen address")
	presetsFile  = flag.String("presets-file", "", "Preset file path (default: user config dir)")
	multiplier   = flag.Int("multiplier", 0, "Device buffer multiplier (0 = 45 per channel)")
	deviceFormat = flag.String("device-format", "float32le", "Device sample format: float32le, int16le or uint8")
	rtcpReports  = flag.Bool("reports", false, "Send RTCP receiver reports back toward senders")
	logLevel     = flag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	logFile      = flag.String("log-file", "", "Log file path (default: stderr)")
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
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	log.Infof("Starting %s on %s", version.String(), *addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics provider; the control server exposes the scrape endpoint.
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sdplayd",
		ServiceVersion: version.Version,
	})
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			log.Warnf("Metrics shutdown: %v", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("Failed to build metrics: %v", err)
	}

	devFormat, err := player.ParseDeviceFormat(*deviceFormat)
	if err != nil {
		log.Fatalf("Invalid device format: %v", err)
	}

	store := openPresetStore(log)

	srv := control.NewServer(control.Config{
		Addr:    *addr,
		Presets: store,
		Metrics: metrics,
		Session: sdplay.Options{
			BufferMultiplier: *multiplier,
			DeviceFormat:     devFormat,
			ReceiverReports:  *rtcpReports,
		},
		Log: log,
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Infof("Server stopped")
}

// openPresetStore opens the preset file; the daemon runs without preset
// endpoints when no store can be reached.
func openPresetStore(log *logrus.Entry) *preset.Store {
	path := *presetsFile
	if path == "" {
		p, err := preset.DefaultPath()
		if err != nil {
			log.Warnf("Preset endpoints disabled: %v", err)
			return nil
		}
		path = p
	}

	store, err := preset.Open(path)
	if err != nil {
		log.Warnf("Preset endpoints disabled: failed to load %s: %v", path, err)
		return nil
	}
	return store
}
