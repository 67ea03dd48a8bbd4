// Package httpapi exposes the control plane over HTTP: deployments and
// failover, threat ingestion, manual scans, incidents, and analytics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bastion/internal/analytics"
	"bastion/internal/domain"
	"bastion/internal/logging"
	"bastion/internal/rollout"
	"bastion/internal/scanner"
	"bastion/internal/store"
)

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

type orchestrator interface {
	StartDeployment(ctx context.Context, req rollout.StartRequest) (string, error)
	GetDeploymentStatus(ctx context.Context, deploymentID string) (rollout.Status, error)
	Abort(ctx context.Context, deploymentID string) error
	Failover(ctx context.Context, deploymentID, targetRegion string) (domain.FailoverResult, error)
}

type incidentEngine interface {
	ProcessThreat(ctx context.Context, ev domain.ThreatEvent) (*domain.Incident, error)
	ResolveIncident(ctx context.Context, incidentID, resolution string) (domain.Incident, error)
	CloseIncident(ctx context.Context, incidentID string) (domain.Incident, error)
}

type threatScanner interface {
	RunScanCycle(ctx context.Context, regions []string) ([]domain.ThreatEvent, scanner.Summary, error)
}

type analyzer interface {
	Analyze(ctx context.Context, timeRangeHours int, mode analytics.Mode) (analytics.Report, error)
}

type incidentReader interface {
	Ready(ctx context.Context) error
	GetIncident(ctx context.Context, incidentID string) (domain.Incident, error)
	ListIncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error)
	ListIncidentsByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error)
}

// SignalRecorder receives raw telemetry samples that feed the threat
// detectors.
type SignalRecorder interface {
	Record(region, kind string, v float64)
}

type Server struct {
	log      *logging.Logger
	store    incidentReader
	orch     orchestrator
	incident incidentEngine
	scanner  threatScanner
	analyzer analyzer
	signals  SignalRecorder
	regions  []string
	apiToken string
	r        chi.Router
}

func NewServer(log *logging.Logger, st incidentReader, orch orchestrator, eng incidentEngine, scan threatScanner, an analyzer, signals SignalRecorder, monitoredRegions []string, apiToken string) *Server {
	s := &Server{
		log:      log,
		store:    st,
		orch:     orch,
		incident: eng,
		scanner:  scan,
		analyzer: an,
		signals:  signals,
		regions:  monitoredRegions,
		apiToken: strings.TrimSpace(apiToken),
		r:        chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) routes() {
	s.r.Use(middleware.RequestID)
	s.r.Use(s.loggingMiddleware)
	s.r.Get("/healthz", s.handleHealth)
	s.r.Get("/readyz", s.handleReady)
	s.r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", s.handleStartDeployment)
			r.Route("/{deploymentID}", func(r chi.Router) {
				r.Get("/", s.handleGetDeployment)
				r.Post("/abort", s.handleAbortDeployment)
				r.Post("/failover", s.handleFailover)
			})
		})
		r.Post("/threats", s.handleProcessThreat)
		r.Post("/signals", s.handleIngestSignals)
		r.Post("/scans", s.handleRunScan)
		r.Get("/analytics", s.handleAnalytics)
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", s.handleListIncidents)
			r.Route("/{incidentID}", func(r chi.Router) {
				r.Get("/", s.handleGetIncident)
				r.Post("/resolve", s.handleResolveIncident)
				r.Post("/close", s.handleCloseIncident)
			})
		})
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		logger := s.log.WithRequestID(reqID)
		ctx := logging.ContextWithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[7:])
		}
		if token == "" {
			token = strings.TrimSpace(r.Header.Get("X-API-Key"))
		}
		if token != s.apiToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid API token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "record store unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startDeploymentResponse struct {
	DeploymentID string `json:"deploymentId"`
}

func (s *Server) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	var req rollout.StartRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	id, err := s.orch.StartDeployment(r.Context(), req)
	if err != nil {
		var invalid *rollout.InvalidConfigError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error(), nil)
			return
		}
		logging.FromContext(r.Context(), s.log).Errorf("start deployment: %v", err)
		writeError(w, http.StatusInternalServerError, "could not start deployment", nil)
		return
	}
	writeJSON(w, http.StatusAccepted, startDeploymentResponse{DeploymentID: id})
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	status, err := s.orch.GetDeploymentStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deployment not found", nil)
			return
		}
		logging.FromContext(r.Context(), s.log).Errorf("get deployment %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load deployment", nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAbortDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	if err := s.orch.Abort(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"deploymentId": id, "status": "aborting"})
}

type failoverRequest struct {
	TargetRegion string `json:"targetRegion"`
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deploymentID")
	var req failoverRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.TargetRegion == "" {
		writeError(w, http.StatusBadRequest, "targetRegion is required", nil)
		return
	}
	result, err := s.orch.Failover(r.Context(), id, req.TargetRegion)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "deployment not found", nil)
		default:
			var invalid *rollout.InvalidConfigError
			if errors.As(err, &invalid) {
				writeError(w, http.StatusBadRequest, invalid.Error(), nil)
				return
			}
			writeError(w, http.StatusConflict, err.Error(), nil)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProcessThreat(w http.ResponseWriter, r *http.Request) {
	var ev domain.ThreatEvent
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if ev.ThreatID == "" || ev.Type == "" || ev.ThreatLevel == "" {
		writeError(w, http.StatusBadRequest, "threatId, type, and threatLevel are required", nil)
		return
	}
	inc, err := s.incident.ProcessThreat(r.Context(), ev)
	if err != nil {
		logging.FromContext(r.Context(), s.log).Errorf("process threat %s: %v", ev.ThreatID, err)
		writeError(w, http.StatusInternalServerError, "could not process threat", nil)
		return
	}
	if inc == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"threatId": ev.ThreatID, "outcome": "recorded"})
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

type signalSample struct {
	Region string  `json:"region"`
	Kind   string  `json:"kind"`
	Value  float64 `json:"value"`
}

type ingestSignalsRequest struct {
	Samples []signalSample `json:"samples"`
}

// handleIngestSignals accepts raw telemetry samples from regional agents.
// The samples feed the sliding windows the threat detectors read.
func (s *Server) handleIngestSignals(w http.ResponseWriter, r *http.Request) {
	var req ingestSignalsRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "samples must not be empty", nil)
		return
	}
	for _, sample := range req.Samples {
		if sample.Region == "" || sample.Kind == "" {
			writeError(w, http.StatusBadRequest, "every sample needs region and kind", nil)
			return
		}
	}
	for _, sample := range req.Samples {
		s.signals.Record(sample.Region, sample.Kind, sample.Value)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Samples)})
}

type scanResponse struct {
	Events  []domain.ThreatEvent `json:"events"`
	Summary scanner.Summary      `json:"summary"`
}

// handleRunScan triggers one scan cycle on demand and routes every finding
// through incident processing, same as the scheduled path.
func (s *Server) handleRunScan(w http.ResponseWriter, r *http.Request) {
	events, summary, err := s.scanner.RunScanCycle(r.Context(), s.regions)
	if err != nil {
		logging.FromContext(r.Context(), s.log).Errorf("manual scan: %v", err)
		writeError(w, http.StatusInternalServerError, "scan cycle failed", nil)
		return
	}
	for _, ev := range events {
		if _, err := s.incident.ProcessThreat(r.Context(), ev); err != nil {
			logging.FromContext(r.Context(), s.log).Errorf("process scan finding %s: %v", ev.ThreatID, err)
		}
	}
	writeJSON(w, http.StatusOK, scanResponse{Events: events, Summary: summary})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer", nil)
			return
		}
		hours = parsed
	}
	mode := analytics.ModeBasic
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode = analytics.Mode(raw)
	}
	report, err := s.analyzer.Analyze(r.Context(), hours, mode)
	if err != nil {
		var unavailable *analytics.DataUnavailableError
		if errors.As(err, &unavailable) {
			writeError(w, http.StatusServiceUnavailable, unavailable.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	var (
		incidents []domain.Incident
		err       error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		var statuses []domain.IncidentStatus
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.IncidentStatus(strings.TrimSpace(part)))
		}
		incidents, err = s.store.ListIncidentsByStatus(r.Context(), statuses...)
	} else {
		hours := 24
		if rawHours := r.URL.Query().Get("hours"); rawHours != "" {
			parsed, perr := strconv.Atoi(rawHours)
			if perr != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "hours must be a positive integer", nil)
				return
			}
			hours = parsed
		}
		incidents, err = s.store.ListIncidentsSince(r.Context(), time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	}
	if err != nil {
		logging.FromContext(r.Context(), s.log).Errorf("list incidents: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list incidents", nil)
		return
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")
	inc, err := s.store.GetIncident(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found", nil)
			return
		}
		logging.FromContext(r.Context(), s.log).Errorf("get incident %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load incident", nil)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type resolveIncidentRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")
	var req resolveIncidentRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Resolution == "" {
		writeError(w, http.StatusBadRequest, "resolution is required", nil)
		return
	}
	inc, err := s.incident.ResolveIncident(r.Context(), id, req.Resolution)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found", nil)
			return
		}
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleCloseIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "incidentID")
	inc, err := s.incident.CloseIncident(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found", nil)
			return
		}
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
