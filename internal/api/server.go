package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roommon/internal/activity"
	"roommon/internal/config"
	"roommon/internal/engine"
	"roommon/internal/fhir"
	"roommon/internal/hub"
	"roommon/internal/ingest"
	"roommon/internal/model"
	"roommon/internal/storage"
)

const fhirContentType = "application/fhir+json"

type Server struct {
	cfg     *config.Manager
	store   storage.Store
	writer  *storage.Writer
	feed    *hub.Hub
	builder *fhir.Builder
	engine  *engine.Engine
	stats   *ingest.Stats
	logger  *slog.Logger
	version string
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type settingsPayload struct {
	SoundThreshold    int `json:"soundThreshold"`
	InactivitySeconds int `json:"inactivitySeconds"`
}

type sleepResponse struct {
	model.ActivityAnalysis
	RestQuality string `json:"restQuality"`
}

type summaryResponse struct {
	TotalReadings    int64  `json:"totalReadings"`
	FallAlerts       int64  `json:"fallAlerts"`
	InactivityAlerts int64  `json:"inactivityAlerts"`
	SystemStatus     string `json:"systemStatus"`
	LastUpdated      string `json:"lastUpdated"`
}

type statusResponse struct {
	Status           string `json:"status"`
	Time             string `json:"time"`
	Version          string `json:"version"`
	SourceMode       string `json:"sourceMode"`
	StorageDriver    string `json:"storageDriver"`
	Parsed           int64  `json:"parsed"`
	ParseErrors      int64  `json:"parseErrors"`
	DroppedWrites    int64  `json:"droppedWrites"`
	Subscribers      int    `json:"subscribers"`
	FallAlerts       int64  `json:"fallAlerts"`
	InactivityAlerts int64  `json:"inactivityAlerts"`
}

// Start brings up the HTTP surface and shuts it down when ctx ends.
func Start(ctx context.Context, cfg *config.Manager, store storage.Store, writer *storage.Writer, feed *hub.Hub, builder *fhir.Builder, eng *engine.Engine, stats *ingest.Stats, logger *slog.Logger, version string) *http.Server {
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		store:   store,
		writer:  writer,
		feed:    feed,
		builder: builder,
		engine:  eng,
		stats:   stats,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", server.handleHealth)
	mux.HandleFunc("/api/observations", server.handleObservations)
	mux.HandleFunc("/api/observations/", server.handleObservation)
	mux.HandleFunc("/api/summary", server.handleSummary)
	mux.HandleFunc("/api/activity/sleep", server.handleSleepAnalysis)
	mux.HandleFunc("/api/activity/period", server.handlePeriodAnalysis)
	mux.HandleFunc("/api/activity/hourly", server.handleHourlyAnalysis)
	mux.HandleFunc("/api/settings", server.handleSettings)
	mux.HandleFunc("/api/status", server.handleStatus)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(feed, logger, w, r)
	})

	httpServer := &http.Server{Addr: current.Addr, Handler: withCORS(mux)}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := 0
	if v := r.URL.Query().Get("_offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}

	ctx := r.Context()
	if v := r.URL.Query().Get("minutes"); v != "" {
		minutes, err := strconv.ParseInt(v, 10, 64)
		if err != nil || minutes <= 0 {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "minutes must be a positive integer"})
			return
		}
		end := time.Now().UTC()
		start := end.Add(-time.Duration(minutes) * time.Minute)
		list, err := s.store.QueryRange(ctx, start, end, limit, offset)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeFHIR(w, s.builder.BundleOf(list, s.baseURL()))
		return
	}
	list, err := s.store.Recent(ctx, limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeFHIR(w, s.builder.BundleOf(list, s.baseURL()))
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/observations/")
	if rest == "latest" {
		ev, err := s.store.Latest(r.Context())
		if err != nil {
			if errors.Is(err, storage.ErrNoObservations) {
				writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "No observations recorded yet"})
				return
			}
			s.storeError(w, err)
			return
		}
		writeFHIR(w, s.builder.Build(*ev))
		return
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "observation id must be numeric"})
		return
	}
	ev, err := s.store.ByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNoObservations) {
			writeJSON(w, http.StatusNotFound, apiError{Error: "not_found", Message: "Observation " + rest + " not found"})
			return
		}
		s.storeError(w, err)
		return
	}
	writeFHIR(w, s.builder.Build(*ev))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sum, err := s.store.Summary(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalReadings:    sum.TotalReadings,
		FallAlerts:       sum.FallAlerts,
		InactivityAlerts: sum.InactivityAlerts,
		SystemStatus:     "active",
		LastUpdated:      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSleepAnalysis covers the overnight window, by default 22:00 to
// 06:00 of the following day.
func (s *Server) handleSleepAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	startHour := queryInt(q.Get("start_hour"), 22)
	endHour := queryInt(q.Get("end_hour"), 6)
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 23 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "hours must be in [0,23]"})
		return
	}
	base := time.Now().UTC()
	if v := q.Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err == nil {
			base = parsed
		}
	}
	start := time.Date(base.Year(), base.Month(), base.Day(), startHour, 0, 0, 0, time.UTC)
	endDay := base
	if endHour < startHour {
		endDay = base.AddDate(0, 0, 1)
	}
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), endHour, 0, 0, 0, time.UTC)

	analysis, err := s.store.ActivityAnalysis(r.Context(), start, end)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sleepResponse{
		ActivityAnalysis: analysis,
		RestQuality:      activity.RestQuality(analysis.ActivityScore),
	})
}

func (s *Server) handlePeriodAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	minutes := queryInt(r.URL.Query().Get("minutes"), 60)
	if minutes <= 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "minutes must be a positive integer"})
		return
	}
	end := time.Now().UTC()
	start := end.Add(-time.Duration(minutes) * time.Minute)
	analysis, err := s.store.ActivityAnalysis(r.Context(), start, end)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleHourlyAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}
	hourly, err := s.store.HourlyActivity(r.Context(), day)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":   day.Format("2006-01-02"),
		"hourly": hourly,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mc := s.cfg.Get().Monitor
		writeJSON(w, http.StatusOK, settingsPayload{
			SoundThreshold:    mc.SoundThreshold,
			InactivitySeconds: mc.InactivitySeconds,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "unreadable body"})
			return
		}
		var payload settingsPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "bad_request", Message: "invalid JSON"})
			return
		}
		next, err := s.cfg.UpdateMonitor(config.MonitorConfig{
			SoundThreshold:    payload.SoundThreshold,
			InactivitySeconds: payload.InactivitySeconds,
		})
		if err != nil {
			// Previous valid settings stay in effect.
			writeJSON(w, http.StatusBadRequest, apiError{Error: "validation_failed", Message: err.Error()})
			return
		}
		if s.logger != nil {
			s.logger.Info("settings updated",
				"sound_threshold", next.Monitor.SoundThreshold,
				"inactivity_seconds", next.Monitor.InactivitySeconds,
			)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Settings updated successfully",
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:        "ok",
		Time:          time.Now().UTC().Format(time.RFC3339Nano),
		Version:       s.version,
		SourceMode:    cfg.Source.Mode,
		StorageDriver: cfg.Storage.Driver,
	}
	if s.stats != nil {
		resp.Parsed = s.stats.Parsed()
		resp.ParseErrors = s.stats.ParseErrors()
	}
	if s.writer != nil {
		resp.DroppedWrites = s.writer.Dropped()
	}
	if s.feed != nil {
		resp.Subscribers = s.feed.Count()
	}
	if s.engine != nil {
		resp.FallAlerts = s.engine.FallAlerts()
		resp.InactivityAlerts = s.engine.InactivityAlerts()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) baseURL() string {
	return s.cfg.Get().API.BaseURL
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if s.logger != nil {
		s.logger.Error("store query failed", "err", err)
	}
	writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal_error", Message: "Failed to query observations"})
}

func queryInt(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFHIR(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", fhirContentType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
