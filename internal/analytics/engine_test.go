package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bastion/internal/domain"
)

type fakeLogger struct{}

func (fakeLogger) Printf(string, ...any) {}

type staticStore struct {
	events      []domain.ThreatEvent
	incidents   []domain.Incident
	eventErr    error
	incidentErr error
}

func (s *staticStore) ListThreatEventsSince(_ context.Context, _ time.Time) ([]domain.ThreatEvent, error) {
	return s.events, s.eventErr
}

func (s *staticStore) ListIncidentsSince(_ context.Context, _ time.Time) ([]domain.Incident, error) {
	return s.incidents, s.incidentErr
}

var analysisTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(st *staticStore) *Engine {
	eng := NewEngine(st, Config{SLAMinutes: 60}, fakeLogger{}, nil)
	eng.now = func() time.Time { return analysisTime }
	return eng
}

func event(id string, level domain.ThreatLevel, offset time.Duration, details map[string]string) domain.ThreatEvent {
	return domain.ThreatEvent{
		ThreatID:    id,
		Timestamp:   analysisTime.Add(offset),
		Region:      "us-east-1",
		Type:        domain.ThreatBruteForceAttack,
		ThreatLevel: level,
		Details:     details,
	}
}

func TestRiskScoreFormula(t *testing.T) {
	st := &staticStore{}
	for i := 0; i < 5; i++ {
		st.events = append(st.events, event(fmt.Sprintf("crit-%d", i), domain.LevelCritical, -2*time.Hour, nil))
	}
	for i := 0; i < 3; i++ {
		st.events = append(st.events, event(fmt.Sprintf("high-%d", i), domain.LevelHigh, -3*time.Hour, nil))
	}
	st.incidents = []domain.Incident{
		{IncidentID: "i-1", Status: domain.IncidentOpen, Severity: domain.LevelCritical, Timestamp: analysisTime.Add(-time.Hour)},
		{IncidentID: "i-2", Status: domain.IncidentInvestigating, Severity: domain.LevelHigh, Timestamp: analysisTime.Add(-time.Hour)},
	}

	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	if report.Risk.RiskScore != 71 {
		t.Fatalf("riskScore = %d, want 71", report.Risk.RiskScore)
	}
	if report.Risk.RiskLevel != domain.LevelCritical {
		t.Fatalf("riskLevel = %s, want CRITICAL", report.Risk.RiskLevel)
	}
	if !report.Complete {
		t.Fatal("report should be complete")
	}

	// Deterministic over the same snapshot.
	again, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	if again.Risk != report.Risk {
		t.Fatalf("risk differs across identical runs: %+v vs %+v", again.Risk, report.Risk)
	}
}

func TestRiskBoundaries(t *testing.T) {
	cases := []struct {
		critical, high, open int
		want                 domain.ThreatLevel
	}{
		{0, 0, 0, domain.LevelLow},
		{1, 0, 0, domain.LevelLow},     // 10 is not > 10
		{1, 0, 1, domain.LevelMedium},  // 13
		{2, 1, 0, domain.LevelMedium},  // 25 is not > 25
		{2, 1, 1, domain.LevelHigh},    // 28
		{5, 0, 0, domain.LevelHigh},    // 50 is not > 50
		{5, 0, 1, domain.LevelCritical},
	}
	for _, tc := range cases {
		st := &staticStore{}
		for i := 0; i < tc.critical; i++ {
			st.events = append(st.events, event(fmt.Sprintf("c-%d", i), domain.LevelCritical, -time.Hour, nil))
		}
		for i := 0; i < tc.high; i++ {
			st.events = append(st.events, event(fmt.Sprintf("h-%d", i), domain.LevelHigh, -time.Hour, nil))
		}
		for i := 0; i < tc.open; i++ {
			st.incidents = append(st.incidents, domain.Incident{IncidentID: fmt.Sprintf("i-%d", i), Status: domain.IncidentOpen})
		}
		report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
		if err != nil {
			t.Fatal(err)
		}
		if report.Risk.RiskLevel != tc.want {
			t.Fatalf("%d crit / %d high / %d open: level = %s, want %s",
				tc.critical, tc.high, tc.open, report.Risk.RiskLevel, tc.want)
		}
	}
}

func TestRepeatedIPClusters(t *testing.T) {
	st := &staticStore{}
	for i := 0; i < 12; i++ {
		st.events = append(st.events, event(fmt.Sprintf("a-%d", i), domain.LevelLow, -time.Hour, map[string]string{"sourceIp": "10.0.0.9"}))
	}
	for i := 0; i < 4; i++ {
		st.events = append(st.events, event(fmt.Sprintf("b-%d", i), domain.LevelLow, -time.Hour, map[string]string{"sourceIp": "10.0.0.7"}))
	}
	// three occurrences does not flag
	for i := 0; i < 3; i++ {
		st.events = append(st.events, event(fmt.Sprintf("c-%d", i), domain.LevelLow, -time.Hour, map[string]string{"sourceIp": "10.0.0.5"}))
	}

	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	clusters := report.Patterns.RepeatedSourceIPs
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %+v", clusters)
	}
	if clusters[0].SourceIP != "10.0.0.9" || clusters[0].Risk != domain.LevelHigh {
		t.Fatalf("largest cluster: %+v", clusters[0])
	}
	if clusters[1].SourceIP != "10.0.0.7" || clusters[1].Risk != domain.LevelMedium {
		t.Fatalf("second cluster: %+v", clusters[1])
	}
}

func TestBurstDetection(t *testing.T) {
	st := &staticStore{}
	base := -2 * time.Hour
	// six events inside a ten-minute window
	for i := 0; i < 6; i++ {
		st.events = append(st.events, event(fmt.Sprintf("burst-%d", i), domain.LevelLow, base+time.Duration(i)*time.Minute, nil))
	}
	// scattered events do not form a burst
	for i := 0; i < 3; i++ {
		st.events = append(st.events, event(fmt.Sprintf("calm-%d", i), domain.LevelLow, -time.Duration(20+i*15)*time.Minute, nil))
	}

	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Patterns.Bursts) != 1 {
		t.Fatalf("expected 1 burst, got %+v", report.Patterns.Bursts)
	}
	burst := report.Patterns.Bursts[0]
	if burst.Count != 6 || burst.Risk != domain.LevelMedium {
		t.Fatalf("burst = %+v", burst)
	}
}

func TestSLACompliance(t *testing.T) {
	within := analysisTime.Add(-3 * time.Hour).Add(30 * time.Minute)
	late := analysisTime.Add(-3 * time.Hour).Add(2 * time.Hour)
	st := &staticStore{incidents: []domain.Incident{
		{IncidentID: "i-1", Status: domain.IncidentResolved, Timestamp: analysisTime.Add(-3 * time.Hour), ResolvedAt: &within},
		{IncidentID: "i-2", Status: domain.IncidentClosed, Timestamp: analysisTime.Add(-3 * time.Hour), ResolvedAt: &late},
	}}

	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	perf := report.Performance
	if perf.ResolvedIncidents != 2 {
		t.Fatalf("resolvedIncidents = %d", perf.ResolvedIncidents)
	}
	if perf.SLACompliancePercent != 50 {
		t.Fatalf("slaCompliance = %.1f, want 50", perf.SLACompliancePercent)
	}
	if perf.AvgResolutionMinutes != 75 {
		t.Fatalf("avgResolutionMinutes = %.1f, want 75", perf.AvgResolutionMinutes)
	}
	found := false
	for _, rec := range report.Recommendations {
		if len(rec) > 0 && rec[0:3] == "SLA" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an SLA process-review recommendation, got %v", report.Recommendations)
	}
}

func TestComprehensiveBreakdown(t *testing.T) {
	st := &staticStore{events: []domain.ThreatEvent{
		event("e-1", domain.LevelHigh, -time.Hour, nil),
	}}

	basic, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	if basic.Breakdown != nil {
		t.Fatal("basic mode must not include a breakdown")
	}

	full, err := newTestEngine(st).Analyze(context.Background(), 24, ModeComprehensive)
	if err != nil {
		t.Fatal(err)
	}
	if full.Breakdown == nil {
		t.Fatal("comprehensive mode must include a breakdown")
	}
	if full.Breakdown.ByRegion["us-east-1"] != 1 {
		t.Fatalf("byRegion = %v", full.Breakdown.ByRegion)
	}
	if full.Breakdown.ByTypeAndLevel[domain.ThreatBruteForceAttack][domain.LevelHigh] != 1 {
		t.Fatalf("byTypeAndLevel = %v", full.Breakdown.ByTypeAndLevel)
	}
}

func TestIncidentReadFailureFlagsIncomplete(t *testing.T) {
	st := &staticStore{
		events:      []domain.ThreatEvent{event("e-1", domain.LevelCritical, -time.Hour, nil)},
		incidentErr: errors.New("store down"),
	}
	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err == nil {
		t.Fatal("expected an error")
	}
	var unavailable *DataUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error type = %T", err)
	}
	if report.Complete {
		t.Fatal("partial report must not be flagged complete")
	}
	if report.Summary.TotalEvents != 1 {
		t.Fatalf("event side of partial report lost: %+v", report.Summary)
	}
}

func TestEventReadFailure(t *testing.T) {
	st := &staticStore{eventErr: errors.New("store down")}
	_, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	var unavailable *DataUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v", err)
	}
}

func TestTrendWindows(t *testing.T) {
	st := &staticStore{}
	for i := 0; i < 4; i++ {
		st.events = append(st.events, event(fmt.Sprintf("recent-%d", i), domain.LevelLow, -time.Duration(i*10+5)*time.Minute, nil))
	}
	for i := 0; i < 5; i++ {
		st.events = append(st.events, event(fmt.Sprintf("older-%d", i), domain.LevelLow, -time.Duration(i+2)*time.Hour, nil))
	}

	report, err := newTestEngine(st).Analyze(context.Background(), 24, ModeBasic)
	if err != nil {
		t.Fatal(err)
	}
	if report.Trend.LastHourEvents != 4 {
		t.Fatalf("lastHourEvents = %d", report.Trend.LastHourEvents)
	}
	if report.Trend.PrecedingFiveHours != 4 {
		t.Fatalf("precedingFiveHours = %d", report.Trend.PrecedingFiveHours)
	}
	if report.Trend.Direction != "RISING" {
		t.Fatalf("direction = %s", report.Trend.Direction)
	}
}
