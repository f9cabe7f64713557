// Package server exposes investigations over HTTP. Runs are submitted with
// POST /investigate and observed through a Server-Sent Events stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dossier/internal/events"
	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/tools"
	"dossier/internal/usage"
)

// Runs is the part of pipeline.Service the server needs.
type Runs interface {
	Submit(query string) (string, error)
	Snapshot(id string) (pipeline.Run, error)
	Subscribe(ctx context.Context, id string, after int64) (<-chan events.Event, error)
	Catalog() []tools.Spec
}

// Archive serves runs whose live logs have been swept. Optional.
type Archive interface {
	LoadRun(ctx context.Context, id string) (pipeline.Run, error)
	LoadEvents(ctx context.Context, id string, after int64) ([]events.Event, error)
}

// Config configures the HTTP adapter.
type Config struct {
	Addr          string
	AllowedOrigin string
	// Heartbeat is the interval between SSE keep-alive comments.
	Heartbeat time.Duration
	// Usage, when set, is served on GET /usage.
	Usage *usage.Tracker
}

// Server is the HTTP adapter over a run service.
type Server struct {
	cfg     Config
	runs    Runs
	archive Archive
	http    *http.Server
}

// New creates a server. archive may be nil.
func New(cfg Config, runs Runs, archive Archive) *Server {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	s := &Server{cfg: cfg, runs: runs, archive: archive}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /investigate", s.handleInvestigate)
	mux.HandleFunc("GET /stream/{id}", s.handleStream)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /tools", s.handleTools)
	if s.cfg.Usage != nil {
		mux.HandleFunc("GET /usage", s.handleUsage)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.recoverer(s.cors(s.logRequests(mux)))
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Open event streams are closed when ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		logging.Server("HTTP server listening on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		<-errCh
		logging.Server("HTTP server stopped")
		return err
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

type investigateRequest struct {
	Query string `json:"query"`
}

type investigateResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	var req investigateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	id, err := s.runs.Submit(req.Query)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, pipeline.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("X-Run-ID", id)
	writeJSON(w, http.StatusAccepted, investigateResponse{RunID: id})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.runs.Snapshot(id)
	if errors.Is(err, pipeline.ErrRunNotFound) && s.archive != nil {
		run, err = s.archive.LoadRun(r.Context(), id)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.Catalog())
}

// handleStream replays and then follows a run's events. The stream ends
// after the done event. Disconnecting does not affect the run.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	after, err := resumePoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	ch, err := s.runs.Subscribe(r.Context(), id, after)
	if errors.Is(err, pipeline.ErrRunNotFound) && s.archive != nil {
		s.streamArchived(w, r, flusher, id, after)
		return
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	startStream(w, flusher)
	logging.ServerDebug("stream %s opened after=%d", id, after)

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logging.ServerDebug("stream %s write failed: %v", id, err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			logging.ServerDebug("stream %s closed by client", id)
			return
		}
	}
}

func (s *Server) streamArchived(w http.ResponseWriter, r *http.Request, flusher http.Flusher, id string, after int64) {
	if _, err := s.archive.LoadRun(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	evs, err := s.archive.LoadEvents(r.Context(), id, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	startStream(w, flusher)
	for _, ev := range evs {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()
}

// resumePoint reads the last seen sequence from Last-Event-ID or ?after=.
func resumePoint(r *http.Request) (int64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("after")
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid resume point %q", raw)
	}
	return n, nil
}

func startStream(w http.ResponseWriter, flusher http.Flusher) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerDebug("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleUsage reports token counters, for one run when ?run= is given.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("run"); id != "" {
		writeJSON(w, http.StatusOK, s.cfg.Usage.Run(id))
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Usage.Stats())
}
