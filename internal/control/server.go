// ABOUTME: HTTP control surface owning the single active playback session
// ABOUTME: Serves play/stop/volume, preset CRUD, metrics and live events
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sdplay/sdplay-go/internal/observe"
	"github.com/sdplay/sdplay-go/internal/version"
	"github.com/sdplay/sdplay-go/pkg/audio"
	"github.com/sdplay/sdplay-go/pkg/preset"
	"github.com/sdplay/sdplay-go/pkg/sdp"
	"github.com/sdplay/sdplay-go/pkg/sdplay"
)

const (
	shutdownTimeout = 5 * time.Second

	// maxBodyBytes bounds request bodies; session descriptions are tiny.
	maxBodyBytes = 1 << 20
)

// Config holds control server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8090".
	Addr string

	// Presets backs the preset endpoints. Nil disables them.
	Presets *preset.Store

	// Metrics receives per-session counters. Nil disables recording.
	Metrics *observe.Metrics

	// Session carries the playback options applied to every session
	// the server opens.
	Session sdplay.Options

	Log *logrus.Entry
}

// Server exposes playback control over HTTP. At most one session plays
// at a time; starting a new one stops the old one first.
type Server struct {
	cfg Config
	log *logrus.Entry
	mux *http.ServeMux
	hub *eventHub

	httpServer *http.Server

	sessionMu sync.Mutex
	session   *sdplay.Session

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a control server with its routes registered.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		mux:      http.NewServeMux(),
		hub:      newEventHub(log),
		stopChan: make(chan struct{}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /play/sdp", s.handlePlaySDP)
	s.mux.HandleFunc("POST /play/url", s.handlePlayURL)
	s.mux.HandleFunc("POST /play/descriptor", s.handlePlayDescriptor)
	s.mux.HandleFunc("POST /play/preset", s.handlePlayPreset)
	s.mux.HandleFunc("POST /stop", s.handleStop)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /volume", s.handleVolume)
	s.mux.HandleFunc("GET /presets", s.handleListPresets)
	s.mux.HandleFunc("PUT /presets/{name}", s.handlePutPreset)
	s.mux.HandleFunc("DELETE /presets/{name}", s.handleDeletePreset)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return withServerHeader(s.mux)
}

// withServerHeader stamps every response with the product version.
func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.UserAgent())
		next.ServeHTTP(w, r)
	})
}

// Start runs the server until the context is canceled, Stop is called,
// or the listener fails. The active session, subscribers and listener
// are all torn down before it returns.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: withServerHeader(s.mux),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.log.Infof("Control server listening on %s", s.cfg.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
	case <-s.stopChan:
	case serveErr = <-errChan:
	}

	s.stopSession()
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("HTTP shutdown: %v", err)
	}

	if serveErr != nil {
		return fmt.Errorf("control server failed: %w", serveErr)
	}
	s.log.Infof("Control server stopped")
	return nil
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Play stops any current session and opens a new one for desc. The
// context bounds the session's lifetime, so callers that want it to
// outlive a request pass something longer-lived.
func (s *Server) Play(ctx context.Context, desc sdp.StreamDescriptor) (*sdplay.Session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.session != nil {
		s.session.Stop()
		s.session.Wait()
		s.session = nil
	}

	stream := fmt.Sprintf("%s:%d", desc.Group, desc.Port)
	session, err := sdplay.Open(ctx, desc, s.sessionOptions(stream))
	if err != nil {
		return nil, err
	}

	s.session = session
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionStarted(context.Background())
		go s.pollSession(session, stream)
	}
	s.hub.broadcast(Event{Type: "started", Session: session.ID(), Stream: stream})
	go s.watchSession(session, stream)
	return session, nil
}

// Session returns the active session, or nil when idle.
func (s *Server) Session() *sdplay.Session {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.session
}

// sessionOptions layers metric recording and event broadcasting over
// the configured playback options.
func (s *Server) sessionOptions(stream string) sdplay.Options {
	opts := s.cfg.Session
	opts.Log = s.log
	met := s.cfg.Metrics

	opts.OnLevel = func(r audio.Report) {
		if met != nil {
			met.RecordLevel(context.Background(), stream, r.PeakDB)
		}
		db := r.PeakDB
		s.hub.broadcast(Event{Type: "level", Stream: stream, LevelDB: &db})
	}
	opts.OnPacket = func(payloadBytes int) {
		if met != nil {
			met.RecordPacket(context.Background(), stream, payloadBytes)
		}
	}
	opts.OnLoss = func(missing int) {
		if met != nil {
			met.RecordLoss(context.Background(), stream, missing)
		}
		s.hub.broadcast(Event{Type: "loss", Stream: stream, Missing: missing})
	}
	opts.OnReordered = func() {
		if met != nil {
			met.RecordReordered(context.Background(), stream)
		}
	}
	return opts
}

// pollSession samples the playback buffer depth once a second while the
// session runs, feeding the gauge that counters cannot cover.
func (s *Server) pollSession(session *sdplay.Session, stream string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			st := session.Stats()
			s.cfg.Metrics.RecordBufferDepth(context.Background(), stream, st.Playback.BufferedSamples)
		}
	}
}

// watchSession waits the session out and reports its end exactly once,
// whether it stopped on request or died on its own.
func (s *Server) watchSession(session *sdplay.Session, stream string) {
	err := session.Wait()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionStopped(context.Background())
	}
	ev := Event{Type: "stopped", Session: session.ID(), Stream: stream}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warnf("Session %s ended with error: %v", session.ID(), err)
	}
	s.hub.broadcast(ev)

	s.sessionMu.Lock()
	if s.session == session {
		s.session = nil
	}
	s.sessionMu.Unlock()
}

// stopSession stops the active session, if any, and waits it out.
func (s *Server) stopSession() bool {
	s.sessionMu.Lock()
	session := s.session
	s.session = nil
	s.sessionMu.Unlock()

	if session == nil {
		return false
	}
	session.Stop()
	session.Wait()
	return true
}

func (s *Server) handlePlaySDP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if strings.TrimSpace(string(body)) == "" {
		writeError(w, http.StatusBadRequest, "empty session description")
		return
	}

	desc, err := sdp.Parse(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.playAndRespond(w, desc)
}

func (s *Server) handlePlayURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	desc, err := sdp.FromURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.playAndRespond(w, desc)
}

func (s *Server) handlePlayDescriptor(w http.ResponseWriter, r *http.Request) {
	var req preset.Stream
	if !decodeJSON(w, r, &req) {
		return
	}

	desc, err := req.Descriptor()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.playAndRespond(w, desc)
}

func (s *Server) handlePlayPreset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if s.cfg.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "presets are not configured")
		return
	}

	p, err := s.cfg.Presets.Get(req.Name)
	if err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	desc, err := p.Resolve(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.playAndRespond(w, desc)
}

// playAndRespond opens a session for the descriptor and answers with
// its status. Sessions belong to the server, not the request, so they
// start under a background context.
func (s *Server) playAndRespond(w http.ResponseWriter, desc sdp.StreamDescriptor) {
	session, err := s.Play(context.Background(), desc)
	if err != nil {
		s.log.Errorf("Failed to start playback: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusBody(session.Stats()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.stopSession()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sessionMu.Lock()
	session := s.session
	s.sessionMu.Unlock()

	if session == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"playing": false})
		return
	}
	writeJSON(w, http.StatusOK, statusBody(session.Stats()))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *int  `json:"volume"`
		Muted  *bool `json:"muted"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s.sessionMu.Lock()
	session := s.session
	s.sessionMu.Unlock()
	if session == nil {
		writeError(w, http.StatusConflict, "no session is playing")
		return
	}

	if req.Volume != nil {
		session.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		session.SetMuted(*req.Muted)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"volume": session.Volume(),
		"muted":  session.Muted(),
	})
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "presets are not configured")
		return
	}

	out := make(map[string]preset.Preset)
	for _, name := range s.cfg.Presets.Names() {
		p, err := s.cfg.Presets.Get(name)
		if err != nil {
			continue
		}
		out[name] = p
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "presets are not configured")
		return
	}

	var p preset.Preset
	if !decodeJSON(w, r, &p) {
		return
	}

	name := r.PathValue("name")
	if err := s.cfg.Presets.Put(name, p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Presets.Save(); err != nil {
		s.log.Errorf("Failed to save presets: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saved": name})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Presets == nil {
		writeError(w, http.StatusServiceUnavailable, "presets are not configured")
		return
	}

	name := r.PathValue("name")
	if err := s.cfg.Presets.Delete(name); err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.cfg.Presets.Save(); err != nil {
		s.log.Errorf("Failed to save presets: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusBody flattens session stats into the wire shape shared by
// /status and the play responses.
func statusBody(st sdplay.Stats) map[string]any {
	return map[string]any{
		"playing": true,
		"session": st.ID,
		"stream":  fmt.Sprintf("%s:%d", st.Descriptor.Group, st.Descriptor.Port),
		"descriptor": map[string]any{
			"group":       st.Descriptor.Group.String(),
			"port":        st.Descriptor.Port,
			"channels":    st.Descriptor.Channels,
			"sample_rate": st.Descriptor.SampleRate,
			"format":      st.Descriptor.Format.String(),
			"packet_time": st.Descriptor.PacketTime,
		},
		"started": st.Started,
		"uptime":  time.Since(st.Started).Round(time.Second).String(),
		"volume":  st.Volume,
		"muted":   st.Muted,
		"receiver": map[string]any{
			"packets":   st.Receiver.Packets,
			"lost":      st.Receiver.Lost,
			"reordered": st.Receiver.Reordered,
			"ssrc":      st.Receiver.SSRC,
		},
		"playback": map[string]any{
			"samples_played":   st.Playback.SamplesPlayed,
			"short_reads":      st.Playback.ShortReads,
			"buffered_samples": st.Playback.BufferedSamples,
			"meter_drops":      st.Playback.MeterDrops,
		},
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
