package scanner

import (
	"context"
	"testing"
	"time"

	"bastion/internal/domain"
)

type fakeLogger struct{}

func (fakeLogger) Printf(string, ...any) {}

type staticSignals struct {
	values map[string]float64
}

func (s staticSignals) Sum(region, kind string, _ time.Duration) float64 {
	return s.values[region+"/"+kind]
}

func newTestScanner(signals SignalSource) *Scanner {
	s := New(signals, Thresholds{}, fakeLogger{}, nil)
	// pin the clock to business hours so the off-hours detector stays quiet
	s.now = func() time.Time { return time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC) }
	return s
}

func TestQuietRegionYieldsNoEvents(t *testing.T) {
	s := newTestScanner(staticSignals{values: map[string]float64{}})
	events, summary, err := s.RunScanCycle(context.Background(), []string{"us-east-1", "eu-west-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 || summary.Total != 0 {
		t.Fatalf("expected quiet scan, got %d events", len(events))
	}
}

func TestBruteForceDetection(t *testing.T) {
	s := newTestScanner(staticSignals{values: map[string]float64{
		"us-east-1/" + SignalFailedLogins: 40,
	}})
	events, summary, err := s.RunScanCycle(context.Background(), []string{"us-east-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != domain.ThreatBruteForceAttack {
		t.Fatalf("type = %s", ev.Type)
	}
	if ev.ThreatLevel != domain.LevelHigh {
		t.Fatalf("level = %s, want HIGH per policy", ev.ThreatLevel)
	}
	if ev.Region != "us-east-1" {
		t.Fatalf("region = %s", ev.Region)
	}
	if summary.ByType[domain.ThreatBruteForceAttack] != 1 || summary.ByLevel[domain.LevelHigh] != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
}

func TestLevelPolicyIsStatic(t *testing.T) {
	s := newTestScanner(staticSignals{values: map[string]float64{
		"eu-west-1/" + SignalPrivilegedCalls: 50,
		"eu-west-1/" + SignalEgressBytes:     float64(10 << 30),
		"eu-west-1/" + SignalConfigWrites:    12,
	}})
	events, _, err := s.RunScanCycle(context.Background(), []string{"eu-west-1"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]domain.ThreatLevel{
		domain.ThreatPrivilegeEscalation:    domain.LevelCritical,
		domain.ThreatDataExfiltration:       domain.LevelCritical,
		domain.ThreatSuspiciousConfigChange: domain.LevelHigh,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for _, ev := range events {
		if want[ev.Type] != ev.ThreatLevel {
			t.Fatalf("%s level = %s, want %s", ev.Type, ev.ThreatLevel, want[ev.Type])
		}
	}
}

func TestOffHoursDetectorRespectsClock(t *testing.T) {
	signals := staticSignals{values: map[string]float64{
		"us-east-1/" + SignalAPICalls: 5000, // 500/min over the 10m window
	}}

	s := newTestScanner(signals)
	s.now = func() time.Time { return time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC) }
	events, _, err := s.RunScanCycle(context.Background(), []string{"us-east-1"})
	if err != nil {
		t.Fatal(err)
	}
	var sawOffHours bool
	for _, ev := range events {
		if ev.Type == domain.ThreatOffHoursActivity {
			sawOffHours = true
			if ev.ThreatLevel != domain.LevelLow {
				t.Fatalf("off-hours level = %s", ev.ThreatLevel)
			}
		}
	}
	if !sawOffHours {
		t.Fatal("expected OFF_HOURS_ACTIVITY at 23:30 UTC")
	}

	day := newTestScanner(signals)
	events, _, err = day.RunScanCycle(context.Background(), []string{"us-east-1"})
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range events {
		if ev.Type == domain.ThreatOffHoursActivity {
			t.Fatal("off-hours detector fired during business hours")
		}
	}
}

func TestOverlappingCyclesShareEventID(t *testing.T) {
	signals := staticSignals{values: map[string]float64{
		"us-east-1/" + SignalFailedLogins: 40,
	}}
	s := newTestScanner(signals)
	base := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

	cycle := func(at time.Time) domain.ThreatEvent {
		t.Helper()
		s.now = func() time.Time { return at }
		events, _, err := s.RunScanCycle(context.Background(), []string{"us-east-1"})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		return events[0]
	}

	first := cycle(base)
	// Still the same 10 minute window: the ongoing condition keeps its id.
	again := cycle(base.Add(3 * time.Minute))
	if again.ThreatID != first.ThreatID {
		t.Fatalf("ids diverged within one window: %s vs %s", first.ThreatID, again.ThreatID)
	}

	next := cycle(base.Add(10 * time.Minute))
	if next.ThreatID == first.ThreatID {
		t.Fatal("expected a fresh id in the next window")
	}
}

func TestInMemorySignalsWindow(t *testing.T) {
	s := NewInMemorySignals()
	base := time.Unix(1700000000, 0).UTC()
	current := base
	s.now = func() time.Time { return current }

	s.Record("us-east-1", SignalFailedLogins, 10)
	current = base.Add(5 * time.Minute)
	s.Record("us-east-1", SignalFailedLogins, 7)

	if got := s.Sum("us-east-1", SignalFailedLogins, 10*time.Minute); got != 17 {
		t.Fatalf("sum = %v, want 17", got)
	}

	current = base.Add(12 * time.Minute)
	if got := s.Sum("us-east-1", SignalFailedLogins, 10*time.Minute); got != 7 {
		t.Fatalf("sum after expiry = %v, want 7", got)
	}

	current = base.Add(30 * time.Minute)
	if got := s.Sum("us-east-1", SignalFailedLogins, 10*time.Minute); got != 0 {
		t.Fatalf("sum fully expired = %v, want 0", got)
	}
}

func TestInOffHoursWrapsMidnight(t *testing.T) {
	cases := []struct {
		hour int
		want bool
	}{
		{23, true}, {2, true}, {5, true}, {6, false}, {12, false}, {22, true},
	}
	for _, tc := range cases {
		if got := inOffHours(tc.hour, 22, 6); got != tc.want {
			t.Fatalf("inOffHours(%d) = %v, want %v", tc.hour, got, tc.want)
		}
	}
}
