package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bastion/internal/analytics"
	"bastion/internal/domain"
	"bastion/internal/logging"
	"bastion/internal/rollout"
	"bastion/internal/scanner"
	"bastion/internal/store"
)

type fakeOrchestrator struct {
	startErr    error
	startedID   string
	status      rollout.Status
	statusErr   error
	abortErr    error
	failover    domain.FailoverResult
	failoverErr error
}

func (f *fakeOrchestrator) StartDeployment(_ context.Context, _ rollout.StartRequest) (string, error) {
	return f.startedID, f.startErr
}

func (f *fakeOrchestrator) GetDeploymentStatus(_ context.Context, _ string) (rollout.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeOrchestrator) Abort(_ context.Context, _ string) error { return f.abortErr }

func (f *fakeOrchestrator) Failover(_ context.Context, _, _ string) (domain.FailoverResult, error) {
	return f.failover, f.failoverErr
}

type fakeIncidentEngine struct {
	processed  []domain.ThreatEvent
	incident   *domain.Incident
	processErr error
	resolveErr error
}

func (f *fakeIncidentEngine) ProcessThreat(_ context.Context, ev domain.ThreatEvent) (*domain.Incident, error) {
	f.processed = append(f.processed, ev)
	return f.incident, f.processErr
}

func (f *fakeIncidentEngine) ResolveIncident(_ context.Context, id, _ string) (domain.Incident, error) {
	if f.resolveErr != nil {
		return domain.Incident{}, f.resolveErr
	}
	return domain.Incident{IncidentID: id, Status: domain.IncidentResolved}, nil
}

func (f *fakeIncidentEngine) CloseIncident(_ context.Context, id string) (domain.Incident, error) {
	return domain.Incident{IncidentID: id, Status: domain.IncidentClosed}, nil
}

type fakeScanner struct {
	events []domain.ThreatEvent
	err    error
}

func (f *fakeScanner) RunScanCycle(_ context.Context, _ []string) ([]domain.ThreatEvent, scanner.Summary, error) {
	return f.events, scanner.Summary{Total: len(f.events)}, f.err
}

type fakeAnalyzer struct {
	report analytics.Report
	err    error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ int, _ analytics.Mode) (analytics.Report, error) {
	return f.report, f.err
}

type recordedSignal struct {
	Region string
	Kind   string
	Value  float64
}

type fakeSignals struct {
	recorded []recordedSignal
}

func (f *fakeSignals) Record(region, kind string, v float64) {
	f.recorded = append(f.recorded, recordedSignal{Region: region, Kind: kind, Value: v})
}

type testDeps struct {
	orch    *fakeOrchestrator
	eng     *fakeIncidentEngine
	scan    *fakeScanner
	an      *fakeAnalyzer
	signals *fakeSignals
	mem     *store.Memory
}

func newTestServer(t *testing.T, token string) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		orch:    &fakeOrchestrator{startedID: "dep-1"},
		eng:     &fakeIncidentEngine{},
		scan:    &fakeScanner{},
		an:      &fakeAnalyzer{},
		signals: &fakeSignals{},
		mem:     store.NewMemory(),
	}
	srv := NewServer(logging.New("test"), deps.mem, deps.orch, deps.eng, deps.scan, deps.an, deps.signals, []string{"r1"}, token)
	return srv, deps
}

func doRequest(t *testing.T, srv *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestStartDeploymentAccepted(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := `{"targetRegions":["r1"],"strategy":"BLUE_GREEN","rollbackConfig":{"enabled":true,"healthCheckThreshold":90,"rollbackTimeoutMinutes":5}}`
	rr := doRequest(t, srv, http.MethodPost, "/v1/deployments", body, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp startDeploymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.DeploymentID != "dep-1" {
		t.Fatalf("deploymentId = %s", resp.DeploymentID)
	}
}

func TestStartDeploymentInvalidConfig(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.orch.startErr = &rollout.InvalidConfigError{Reason: "targetRegions must not be empty"}
	rr := doRequest(t, srv, http.MethodPost, "/v1/deployments", `{"targetRegions":[]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAuthRequiredWhenTokenConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "sekret")

	rr := doRequest(t, srv, http.MethodGet, "/v1/incidents", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/v1/incidents", "", map[string]string{"Authorization": "Bearer sekret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status with token = %d", rr.Code)
	}

	// health endpoints stay open
	rr = doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.orch.statusErr = store.ErrNotFound
	rr := doRequest(t, srv, http.MethodGet, "/v1/deployments/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProcessThreatCreatesIncident(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.eng.incident = &domain.Incident{IncidentID: "inc-1", Status: domain.IncidentEscalated}

	body := `{"threatId":"t-1","region":"r1","type":"DATA_EXFILTRATION","threatLevel":"CRITICAL"}`
	rr := doRequest(t, srv, http.MethodPost, "/v1/threats", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var inc domain.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &inc); err != nil {
		t.Fatal(err)
	}
	if inc.IncidentID != "inc-1" {
		t.Fatalf("incident = %+v", inc)
	}
}

func TestProcessThreatLowLevelAccepted(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.eng.incident = nil

	body := `{"threatId":"t-2","region":"r1","type":"OFF_HOURS_ACTIVITY","threatLevel":"LOW"}`
	rr := doRequest(t, srv, http.MethodPost, "/v1/threats", body, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProcessThreatValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rr := doRequest(t, srv, http.MethodPost, "/v1/threats", `{"region":"r1"}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestManualScanProcessesFindings(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.scan.events = []domain.ThreatEvent{
		{ThreatID: "s-1", Region: "r1", Type: domain.ThreatBruteForceAttack, ThreatLevel: domain.LevelHigh},
		{ThreatID: "s-2", Region: "r1", Type: domain.ThreatOffHoursActivity, ThreatLevel: domain.LevelLow},
	}

	rr := doRequest(t, srv, http.MethodPost, "/v1/scans", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(deps.eng.processed) != 2 {
		t.Fatalf("processed = %d findings, want 2", len(deps.eng.processed))
	}
	var resp scanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary.Total != 2 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
}

func TestIngestSignals(t *testing.T) {
	srv, deps := newTestServer(t, "")
	body := `{"samples":[{"region":"r1","kind":"failed_logins","value":12},{"region":"r1","kind":"api_calls","value":900}]}`
	rr := doRequest(t, srv, http.MethodPost, "/v1/signals", body, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(deps.signals.recorded) != 2 {
		t.Fatalf("recorded = %+v", deps.signals.recorded)
	}
	if deps.signals.recorded[0].Kind != "failed_logins" || deps.signals.recorded[0].Value != 12 {
		t.Fatalf("first sample = %+v", deps.signals.recorded[0])
	}

	rr = doRequest(t, srv, http.MethodPost, "/v1/signals", `{"samples":[]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty samples status = %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodPost, "/v1/signals", `{"samples":[{"kind":"api_calls","value":1}]}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing region status = %d", rr.Code)
	}
}

func TestAnalyticsUnavailable(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.an.err = &analytics.DataUnavailableError{Source: "incidents", Err: errors.New("down")}
	rr := doRequest(t, srv, http.MethodGet, "/v1/analytics", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAnalyticsBadHours(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rr := doRequest(t, srv, http.MethodGet, "/v1/analytics?hours=zero", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListIncidentsByStatus(t *testing.T) {
	srv, deps := newTestServer(t, "")
	seed := domain.Incident{
		IncidentID:    "inc-open",
		Timestamp:     time.Now().UTC(),
		Status:        domain.IncidentOpen,
		Severity:      domain.LevelHigh,
		Type:          domain.ThreatBruteForceAttack,
		Region:        "r1",
		RelatedEvents: []string{"t-1"},
	}
	if err := deps.mem.InsertIncident(context.Background(), seed); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(t, srv, http.MethodGet, "/v1/incidents?status=OPEN", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var incidents []domain.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &incidents); err != nil {
		t.Fatal(err)
	}
	if len(incidents) != 1 || incidents[0].IncidentID != "inc-open" {
		t.Fatalf("incidents = %+v", incidents)
	}

	rr = doRequest(t, srv, http.MethodGet, "/v1/incidents?status=CLOSED", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	incidents = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &incidents); err != nil {
		t.Fatal(err)
	}
	if len(incidents) != 0 {
		t.Fatalf("incidents = %+v", incidents)
	}
}

func TestResolveIncidentConflict(t *testing.T) {
	srv, deps := newTestServer(t, "")
	deps.eng.resolveErr = errors.New("incident inc-1 cannot be resolved from status CLOSED")
	rr := doRequest(t, srv, http.MethodPost, "/v1/incidents/inc-1/resolve", `{"resolution":"done"}`, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestResolveIncidentRequiresResolution(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rr := doRequest(t, srv, http.MethodPost, "/v1/incidents/inc-1/resolve", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
