// Package server exposes the HTTP trigger surface: manual and webhook sync
// triggers, health and status endpoints, and Prometheus metrics. It is also
// the layer that serializes runs; the controller itself does not defend
// against concurrent invocation.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"

	"fireflies-dealcloud-sync/internal/common/config"
	"fireflies-dealcloud-sync/internal/common/logger"
	"fireflies-dealcloud-sync/internal/common/observability"
	"fireflies-dealcloud-sync/internal/dealcloud"
	"fireflies-dealcloud-sync/internal/fireflies"
	"fireflies-dealcloud-sync/internal/syncer"
)

// backfillDefaultLimit is the fetch depth for catch-up runs on older calls.
const backfillDefaultLimit = 100

// Runner drives sync runs. Satisfied by syncer.Controller.
type Runner interface {
	SyncAll(ctx context.Context, limit int, trigger string) syncer.Summary
	SyncOne(ctx context.Context, transcriptID string) syncer.OneResult
}

// SchedulerState is what the status endpoints report about the scheduler.
type SchedulerState interface {
	Enabled() bool
	Enable()
	Disable()
	Interval() time.Duration
}

type Options struct {
	Config         *config.Config
	Runner         Runner
	FirefliesProbe func(ctx context.Context) fireflies.ConnectionStatus
	DealCloudProbe func(ctx context.Context) dealcloud.ConnectionStatus
	Scheduler      SchedulerState               // optional
	Observability  *observability.Observability // optional
	Logger         logger.Logger
}

type Server struct {
	cfg            *config.Config
	runner         Runner
	firefliesProbe func(ctx context.Context) fireflies.ConnectionStatus
	dealcloudProbe func(ctx context.Context) dealcloud.ConnectionStatus
	scheduler      SchedulerState
	obs            *observability.Observability
	logger         logger.Logger

	running   atomic.Bool
	startTime time.Time

	lastRunMu sync.RWMutex
	lastRun   *syncer.Summary
	lastRunAt time.Time
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	return &Server{
		cfg:            opts.Config,
		runner:         opts.Runner,
		firefliesProbe: opts.FirefliesProbe,
		dealcloudProbe: opts.DealCloudProbe,
		scheduler:      opts.Scheduler,
		obs:            opts.Observability,
		logger:         opts.Logger,
		startTime:      time.Now(),
	}
}

// AttachScheduler wires the scheduler for status reporting and the
// enable/disable endpoints. The scheduler itself needs the server as its run
// trigger, so this runs as a second wiring step during startup, before the
// handler is built.
func (s *Server) AttachScheduler(sched SchedulerState) {
	s.scheduler = sched
}

// TryRun starts an async run if none is in flight. Implements
// scheduler.Trigger so scheduled and HTTP-triggered runs share one guard.
func (s *Server) TryRun(trigger string, limit int) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.running.Store(false)
		s.execute(context.Background(), limit, trigger)
	}()
	return true
}

// runBlocking executes a run synchronously. Returns false without running
// when another run holds the guard.
func (s *Server) runBlocking(ctx context.Context, limit int, trigger string) (syncer.Summary, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return syncer.Summary{}, false
	}
	defer s.running.Store(false)
	return s.execute(ctx, limit, trigger), true
}

func (s *Server) execute(ctx context.Context, limit int, trigger string) syncer.Summary {
	summary := s.runner.SyncAll(ctx, limit, trigger)

	if s.obs != nil {
		s.obs.RecordRun(ctx, trigger, summary.DurationSeconds)
	}

	s.lastRunMu.Lock()
	s.lastRun = &summary
	s.lastRunAt = time.Now()
	s.lastRunMu.Unlock()

	return summary
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/test-config", s.requireAPIKey(s.handleTestConfig))

	mux.HandleFunc("POST /api/sync", s.requireAPIKey(s.handleSync))
	mux.HandleFunc("POST /api/sync/blocking", s.requireAPIKey(s.handleSyncBlocking))
	mux.HandleFunc("POST /api/sync/backfill", s.requireAPIKey(s.handleBackfill))
	mux.HandleFunc("POST /api/sync/transcript/{id}", s.requireAPIKey(s.handleSyncTranscript))

	mux.HandleFunc("POST /webhook/hubspot", s.handleWebhook)
	mux.HandleFunc("GET /webhook/hubspot/test", s.handleWebhookTest)

	mux.HandleFunc("GET /api/scheduler/status", s.requireAPIKey(s.handleSchedulerStatus))
	mux.HandleFunc("POST /api/scheduler/enable", s.requireAPIKey(s.handleSchedulerEnable))
	mux.HandleFunc("POST /api/scheduler/disable", s.requireAPIKey(s.handleSchedulerDisable))

	return mux
}

// requireAPIKey guards mutating endpoints when a key is configured. With no
// key configured the guard is a pass-through.
func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.Server.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Fireflies-DealCloud Integration",
		"status":  "running",
		"endpoints": map[string]string{
			"health":  "/health",
			"status":  "/api/status",
			"sync":    "/api/sync",
			"webhook": "/webhook/hubspot",
			"metrics": "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.lastRunMu.RLock()
	lastRun := s.lastRun
	lastRunAt := s.lastRunAt
	s.lastRunMu.RUnlock()

	syncStatus := map[string]interface{}{
		"is_running": s.running.Load(),
	}
	if lastRun != nil {
		syncStatus["last_run_at"] = lastRunAt.UTC().Format(time.RFC3339)
		syncStatus["last_run"] = lastRun
	}

	status := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"config":         s.configSnapshot(),
		"sync_status":    syncStatus,
	}
	if s.scheduler != nil {
		status["scheduler"] = map[string]interface{}{
			"enabled":          s.scheduler.Enabled(),
			"interval_minutes": s.scheduler.Interval().Minutes(),
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// configSnapshot reports operational settings without secrets.
func (s *Server) configSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"fireflies_configured": s.cfg.Fireflies.APIKey != "",
		"dealcloud_configured": s.cfg.DealCloud.ClientID != "" && s.cfg.DealCloud.ClientSecret != "",
		"internal_domains":     s.cfg.Sync.InternalDomains,
		"transcript_limit":     s.cfg.Sync.TranscriptLimit,
		"transcript_cap":       s.cfg.Sync.TranscriptCap,
	}
}

func (s *Server) handleTestConfig(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Testing API connections", nil)

	firefliesStatus := s.firefliesProbe(r.Context())
	dealcloudStatus := s.dealcloudProbe(r.Context())

	overall := "partial"
	if firefliesStatus.Status == "connected" && dealcloudStatus.Status == "connected" {
		overall = "all_connected"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": overall,
		"connections": map[string]interface{}{
			"fireflies": firefliesStatus,
			"dealcloud": dealcloudStatus,
		},
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	limit := s.limitParam(r, s.cfg.Sync.TranscriptLimit)

	if !s.TryRun("manual", limit) {
		writeAlreadyRunning(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": fmt.Sprintf("Sync started in background (limit: %d transcripts)", limit),
	})
}

func (s *Server) handleSyncBlocking(w http.ResponseWriter, r *http.Request) {
	limit := s.limitParam(r, s.cfg.Sync.TranscriptLimit)

	summary, started := s.runBlocking(r.Context(), limit, "manual")
	if !started {
		writeAlreadyRunning(w)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	limit := s.limitParam(r, backfillDefaultLimit)

	if !s.TryRun("backfill", limit) {
		writeAlreadyRunning(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": fmt.Sprintf("Backfill sync started (fetching last %d transcripts)", limit),
	})
}

func (s *Server) handleSyncTranscript(w http.ResponseWriter, r *http.Request) {
	transcriptID := r.PathValue("id")
	s.logger.Info("Manual sync requested for transcript", map[string]interface{}{
		"transcriptId": transcriptID,
	})

	result := s.runner.SyncOne(r.Context(), transcriptID)
	writeJSON(w, http.StatusOK, result)
}

// webhookSchema accepts any object payload with an optional positive integer
// limit. External callers send arbitrary extra fields; they are ignored.
var webhookSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"properties": {
		"limit": {"type": "integer", "minimum": 1}
	}
}`)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	validation, err := gojsonschema.Validate(webhookSchema, gojsonschema.NewBytesLoader(body))
	if err != nil || !validation.Valid() {
		detail := "payload must be a JSON object"
		if err == nil {
			detail = validation.Errors()[0].String()
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": detail})
		return
	}

	var payload struct {
		Limit int `json:"limit"`
	}
	// Validated above; a decode failure here cannot happen for valid JSON.
	json.Unmarshal(body, &payload)

	s.logger.Info("Webhook received", map[string]interface{}{
		"limit": payload.Limit,
	})

	if !s.TryRun("webhook", payload.Limit) {
		writeAlreadyRunning(w)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Sync started in background",
	})
}

func (s *Server) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Webhook endpoint is reachable",
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":          s.scheduler.Enabled(),
		"interval_minutes": s.scheduler.Interval().Minutes(),
	})
}

func (s *Server) handleSchedulerEnable(w http.ResponseWriter, r *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Enable()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

func (s *Server) handleSchedulerDisable(w http.ResponseWriter, r *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Disable()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// limitParam reads ?limit=, falling back to def. The controller applies the
// hard cap; clamping here just keeps the response message honest.
func (s *Server) limitParam(r *http.Request, def int) int {
	limit := def
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			limit = def
		}
	}
	if limit > s.cfg.Sync.TranscriptCap {
		limit = s.cfg.Sync.TranscriptCap
	}
	return limit
}

func writeAlreadyRunning(w http.ResponseWriter) {
	writeJSON(w, http.StatusConflict, map[string]string{
		"status":  "already_running",
		"message": "A sync is already in progress",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
