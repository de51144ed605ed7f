package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oracleguard/internal/alerts"
	"oracleguard/internal/config"
	"oracleguard/internal/engine"
	"oracleguard/internal/model"
)

// PipelineControl is the operator surface of the running pipeline.
type PipelineControl interface {
	Stats() engine.Stats
	Breakers() []model.BreakerState
	DeactivateBreaker(ctx context.Context, feed string) bool
	CleanupDedup() int
}

// AlertReader queries the durable alert store. The in-memory ring serves
// /alerts first; the reader covers alerts that aged out of the ring.
type AlertReader interface {
	GetRecent(ctx context.Context, limit int, feed string) ([]model.Alert, error)
}

type Server struct {
	cfg      *config.Manager
	alerts   *alerts.Store
	store    AlertReader
	pipeline PipelineControl
	logger   zerolog.Logger
	version  string
}

type statusResponse struct {
	Status     string   `json:"status"`
	Time       string   `json:"time"`
	Uptime     string   `json:"uptime"`
	Version    string   `json:"version"`
	ConfigPath string   `json:"config_path"`
	RedisAddr  string   `json:"redis_addr"`
	Kafka      bool     `json:"kafka_ingest"`
	Scorer     bool     `json:"scorer_enabled"`
	Archive    bool     `json:"archive_enabled"`
	Thresholds any      `json:"thresholds"`
	Breakers   []string `json:"active_breakers"`
}

// Start runs the operator API until ctx is cancelled. Returns nil when
// the API is disabled.
func Start(ctx context.Context, cfg *config.Manager, alertsStore *alerts.Store, store AlertReader, pipeline PipelineControl, logger zerolog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	log := logger.With().Str("component", "api").Logger()
	if !current.Enabled {
		log.Info().Msg("api disabled")
		return nil
	}
	log.Info().Str("addr", current.Addr).Msg("api enabled")

	server := &Server{
		cfg:      cfg,
		alerts:   alertsStore,
		store:    store,
		pipeline: pipeline,
		logger:   log,
		version:  version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/alerts/acknowledge", server.handleAcknowledge)
	mux.HandleFunc("/alerts/resolve", server.handleResolve)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/breakers", server.handleBreakers)
	mux.HandleFunc("/breakers/deactivate", server.handleDeactivate)
	mux.HandleFunc("/admin/cleanup", server.handleCleanup)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server error")
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	stats := s.pipeline.Stats()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Uptime:     time.Since(stats.Started).Round(time.Second).String(),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		RedisAddr:  cfg.Bus.RedisAddr,
		Kafka:      cfg.Ingest.Kafka.Enabled,
		Scorer:     cfg.Scorer.Enabled,
		Archive:    cfg.Archive.Enabled,
		Thresholds: cfg.Detection,
		Breakers:   stats.ActiveBreakers,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	feed := r.URL.Query().Get("feed")
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	} else {
		list = s.alerts.List(limit, feed)
		if len(list) == 0 && s.store != nil {
			// Ring miss: the alerts may have aged out of memory but still
			// live in the durable store.
			stored, err := s.store.GetRecent(r.Context(), limit, feed)
			if err != nil {
				s.logger.Error().Err(err).Msg("alert store query failed")
			} else {
				list = stored
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID string `json:"id"`
		By string `json:"by"`
	}
	if !decodeBody(w, r, &req) || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.alerts.Acknowledge(req.ID, req.By) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) || req.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		status = "RESOLVED"
	}
	if !s.alerts.Resolve(req.ID, status) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	states := s.pipeline.Breakers()
	writeJSON(w, http.StatusOK, map[string]any{
		"breakers": states,
		"count":    len(states),
	})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		FeedName string `json:"feed_name"`
	}
	if !decodeBody(w, r, &req) || req.FeedName == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !s.pipeline.DeactivateBreaker(r.Context(), req.FeedName) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "feed_name": req.FeedName})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	removed := s.pipeline.CleanupDedup()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "removed": removed})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
