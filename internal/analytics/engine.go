// Package analytics computes trend, pattern, and risk reports over the
// historical threat and incident records. It is a read-only consumer of
// the record store and tolerates records appearing between reads.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bastion/internal/domain"
)

// Mode selects report depth.
type Mode string

const (
	ModeBasic         Mode = "basic"
	ModeComprehensive Mode = "comprehensive"
)

// DataUnavailableError wraps a record store read failure during analysis.
// Callers must not treat a report produced alongside one as complete.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("analytics data unavailable (%s): %v", e.Source, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

type analyticsStore interface {
	ListThreatEventsSince(ctx context.Context, since time.Time) ([]domain.ThreatEvent, error)
	ListIncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error)
}

type Logger interface {
	Printf(string, ...any)
}

type Metrics interface {
	ObserveAnalyticsRun(mode string, duration time.Duration, err error)
}

// TypeCount is a threat type with its occurrence count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// HourCount is an hour of day (UTC) with its event count.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// IPCluster flags a source IP seen more than three times in the window.
type IPCluster struct {
	SourceIP string             `json:"sourceIp"`
	Count    int                `json:"count"`
	Risk     domain.ThreatLevel `json:"risk"`
}

// Burst flags more than five events inside a ten-minute window.
type Burst struct {
	Start time.Time          `json:"start"`
	Count int                `json:"count"`
	Risk  domain.ThreatLevel `json:"risk"`
}

type Summary struct {
	TotalEvents         int                           `json:"totalEvents"`
	EventsByLevel       map[domain.ThreatLevel]int    `json:"eventsByLevel"`
	EventsByType        map[string]int                `json:"eventsByType"`
	TotalIncidents      int                           `json:"totalIncidents"`
	IncidentsBySeverity map[domain.ThreatLevel]int    `json:"incidentsBySeverity"`
	IncidentsByStatus   map[domain.IncidentStatus]int `json:"incidentsByStatus"`
}

type Trend struct {
	LastHourEvents     int         `json:"lastHourEvents"`
	PrecedingFiveHours int         `json:"precedingFiveHourEvents"`
	HourlyDelta        float64     `json:"hourlyDelta"`
	Direction          string      `json:"direction"`
	TopThreatTypes     []TypeCount `json:"topThreatTypes"`
	PeakHours          []HourCount `json:"peakHours"`
}

type Patterns struct {
	RepeatedSourceIPs []IPCluster `json:"repeatedSourceIps"`
	Bursts            []Burst     `json:"bursts"`
}

type RiskAssessment struct {
	CriticalEvents int                `json:"criticalEvents"`
	HighEvents     int                `json:"highEvents"`
	OpenIncidents  int                `json:"openIncidents"`
	RiskScore      int                `json:"riskScore"`
	RiskLevel      domain.ThreatLevel `json:"riskLevel"`
}

type Performance struct {
	ResolvedIncidents    int     `json:"resolvedIncidents"`
	AvgResolutionMinutes float64 `json:"avgResolutionMinutes"`
	SLACompliancePercent float64 `json:"slaCompliancePercent"`
}

// Breakdown is only populated in comprehensive mode.
type Breakdown struct {
	ByTypeAndLevel map[string]map[domain.ThreatLevel]int `json:"byTypeAndLevel"`
	ByRegion       map[string]int                        `json:"byRegion"`
	ByHourOfDay    map[int]int                           `json:"byHourOfDay"`
}

// Report is the full output of one Analyze run.
type Report struct {
	GeneratedAt     time.Time      `json:"generatedAt"`
	TimeRangeHours  int            `json:"timeRangeHours"`
	Mode            Mode           `json:"mode"`
	Complete        bool           `json:"complete"`
	Summary         Summary        `json:"summary"`
	Trend           Trend          `json:"trend"`
	Patterns        Patterns       `json:"patterns"`
	Risk            RiskAssessment `json:"risk"`
	Performance     Performance    `json:"performance"`
	Breakdown       *Breakdown     `json:"breakdown,omitempty"`
	Recommendations []string       `json:"recommendations"`
}

type Config struct {
	SLAMinutes int
}

// Engine computes reports from the record store.
type Engine struct {
	store   analyticsStore
	cfg     Config
	log     Logger
	metrics Metrics

	now func() time.Time
}

func NewEngine(st analyticsStore, cfg Config, log Logger, metrics Metrics) *Engine {
	return &Engine{
		store:   st,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Analyze loads events and incidents newer than now - timeRangeHours and
// computes the report. A store read failure returns whatever was computed
// so far with Complete=false wrapped in a DataUnavailableError.
func (e *Engine) Analyze(ctx context.Context, timeRangeHours int, mode Mode) (Report, error) {
	if timeRangeHours <= 0 {
		return Report{}, fmt.Errorf("timeRangeHours must be positive, got %d", timeRangeHours)
	}
	if mode != ModeBasic && mode != ModeComprehensive {
		return Report{}, fmt.Errorf("unknown analytics mode %q", mode)
	}

	start := e.now().UTC()
	since := start.Add(-time.Duration(timeRangeHours) * time.Hour)
	report := Report{
		GeneratedAt:    start,
		TimeRangeHours: timeRangeHours,
		Mode:           mode,
	}

	events, err := e.store.ListThreatEventsSince(ctx, since)
	if err != nil {
		return report, &DataUnavailableError{Source: "threat events", Err: err}
	}

	incidents, incErr := e.store.ListIncidentsSince(ctx, since)
	if incErr != nil {
		// Events loaded fine; produce the event-side report but flag it.
		incidents = nil
	}

	report.Summary = summarize(events, incidents)
	report.Trend = trend(events, start)
	report.Patterns = patterns(events)
	report.Risk = assessRisk(events, incidents)
	report.Performance = performance(incidents, e.cfg.SLAMinutes)
	if mode == ModeComprehensive {
		report.Breakdown = breakdown(events)
	}
	report.Recommendations = recommend(report)
	report.Complete = incErr == nil

	if e.metrics != nil {
		e.metrics.ObserveAnalyticsRun(string(mode), e.now().UTC().Sub(start), incErr)
	}
	if incErr != nil {
		return report, &DataUnavailableError{Source: "incidents", Err: incErr}
	}
	e.log.Printf("analytics run complete: %d events, %d incidents, risk %s (%d)",
		report.Summary.TotalEvents, report.Summary.TotalIncidents, report.Risk.RiskLevel, report.Risk.RiskScore)
	return report, nil
}

func summarize(events []domain.ThreatEvent, incidents []domain.Incident) Summary {
	s := Summary{
		TotalEvents:         len(events),
		EventsByLevel:       map[domain.ThreatLevel]int{},
		EventsByType:        map[string]int{},
		TotalIncidents:      len(incidents),
		IncidentsBySeverity: map[domain.ThreatLevel]int{},
		IncidentsByStatus:   map[domain.IncidentStatus]int{},
	}
	for _, ev := range events {
		s.EventsByLevel[ev.ThreatLevel]++
		s.EventsByType[ev.Type]++
	}
	for _, inc := range incidents {
		s.IncidentsBySeverity[inc.Severity]++
		s.IncidentsByStatus[inc.Status]++
	}
	return s
}

func trend(events []domain.ThreatEvent, now time.Time) Trend {
	t := Trend{}
	hourAgo := now.Add(-time.Hour)
	sixHoursAgo := now.Add(-6 * time.Hour)
	byType := map[string]int{}
	byHour := map[int]int{}
	for _, ev := range events {
		byType[ev.Type]++
		byHour[ev.Timestamp.UTC().Hour()]++
		if ev.Timestamp.After(hourAgo) {
			t.LastHourEvents++
		} else if ev.Timestamp.After(sixHoursAgo) {
			t.PrecedingFiveHours++
		}
	}
	t.HourlyDelta = float64(t.LastHourEvents) - float64(t.PrecedingFiveHours)/5
	switch {
	case t.HourlyDelta > 0:
		t.Direction = "RISING"
	case t.HourlyDelta < 0:
		t.Direction = "FALLING"
	default:
		t.Direction = "STABLE"
	}
	t.TopThreatTypes = topTypes(byType, 5)
	t.PeakHours = topHours(byHour, 3)
	return t
}

func topTypes(counts map[string]int, n int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for typ, c := range counts {
		out = append(out, TypeCount{Type: typ, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func topHours(counts map[int]int, n int) []HourCount {
	out := make([]HourCount, 0, len(counts))
	for hour, c := range counts {
		out = append(out, HourCount{Hour: hour, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Hour < out[j].Hour
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func patterns(events []domain.ThreatEvent) Patterns {
	p := Patterns{}

	byIP := map[string]int{}
	for _, ev := range events {
		if ip := ev.Details["sourceIp"]; ip != "" {
			byIP[ip]++
		}
	}
	for ip, count := range byIP {
		if count <= 3 {
			continue
		}
		risk := domain.LevelMedium
		if count > 10 {
			risk = domain.LevelHigh
		}
		p.RepeatedSourceIPs = append(p.RepeatedSourceIPs, IPCluster{SourceIP: ip, Count: count, Risk: risk})
	}
	sort.Slice(p.RepeatedSourceIPs, func(i, j int) bool {
		if p.RepeatedSourceIPs[i].Count != p.RepeatedSourceIPs[j].Count {
			return p.RepeatedSourceIPs[i].Count > p.RepeatedSourceIPs[j].Count
		}
		return p.RepeatedSourceIPs[i].SourceIP < p.RepeatedSourceIPs[j].SourceIP
	})

	p.Bursts = findBursts(events)
	return p
}

// findBursts slides a ten-minute window over the events in time order and
// flags windows holding more than five. Overlapping windows collapse into
// one burst anchored at the first event.
func findBursts(events []domain.ThreatEvent) []Burst {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]domain.ThreatEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var bursts []Burst
	const window = 10 * time.Minute
	for i := 0; i < len(sorted); {
		end := sorted[i].Timestamp.Add(window)
		j := i
		for j < len(sorted) && sorted[j].Timestamp.Before(end) {
			j++
		}
		count := j - i
		if count > 5 {
			risk := domain.LevelMedium
			if count > 20 {
				risk = domain.LevelHigh
			}
			bursts = append(bursts, Burst{Start: sorted[i].Timestamp, Count: count, Risk: risk})
			i = j
			continue
		}
		i++
	}
	return bursts
}

func assessRisk(events []domain.ThreatEvent, incidents []domain.Incident) RiskAssessment {
	r := RiskAssessment{}
	for _, ev := range events {
		switch ev.ThreatLevel {
		case domain.LevelCritical:
			r.CriticalEvents++
		case domain.LevelHigh:
			r.HighEvents++
		}
	}
	for _, inc := range incidents {
		switch inc.Status {
		case domain.IncidentOpen, domain.IncidentInvestigating, domain.IncidentEscalated:
			r.OpenIncidents++
		}
	}
	r.RiskScore = 10*r.CriticalEvents + 5*r.HighEvents + 3*r.OpenIncidents
	switch {
	case r.RiskScore > 50:
		r.RiskLevel = domain.LevelCritical
	case r.RiskScore > 25:
		r.RiskLevel = domain.LevelHigh
	case r.RiskScore > 10:
		r.RiskLevel = domain.LevelMedium
	default:
		r.RiskLevel = domain.LevelLow
	}
	return r
}

func performance(incidents []domain.Incident, slaMinutes int) Performance {
	p := Performance{SLACompliancePercent: 100}
	var totalMinutes float64
	withinSLA := 0
	for _, inc := range incidents {
		if inc.ResolvedAt == nil {
			continue
		}
		if inc.Status != domain.IncidentResolved && inc.Status != domain.IncidentClosed {
			continue
		}
		p.ResolvedIncidents++
		took := inc.ResolvedAt.Sub(inc.Timestamp)
		totalMinutes += took.Minutes()
		if took <= time.Duration(slaMinutes)*time.Minute {
			withinSLA++
		}
	}
	if p.ResolvedIncidents > 0 {
		p.AvgResolutionMinutes = totalMinutes / float64(p.ResolvedIncidents)
		p.SLACompliancePercent = 100 * float64(withinSLA) / float64(p.ResolvedIncidents)
	}
	return p
}

func breakdown(events []domain.ThreatEvent) *Breakdown {
	b := &Breakdown{
		ByTypeAndLevel: map[string]map[domain.ThreatLevel]int{},
		ByRegion:       map[string]int{},
		ByHourOfDay:    map[int]int{},
	}
	for _, ev := range events {
		if b.ByTypeAndLevel[ev.Type] == nil {
			b.ByTypeAndLevel[ev.Type] = map[domain.ThreatLevel]int{}
		}
		b.ByTypeAndLevel[ev.Type][ev.ThreatLevel]++
		b.ByRegion[ev.Region]++
		b.ByHourOfDay[ev.Timestamp.UTC().Hour()]++
	}
	return b
}

func recommend(r Report) []string {
	var recs []string
	switch r.Risk.RiskLevel {
	case domain.LevelCritical:
		recs = append(recs, "URGENT: risk level is CRITICAL; engage the security on-call and begin coordinated incident response immediately")
	case domain.LevelHigh:
		recs = append(recs, "Risk level is HIGH; increase monitoring cadence and review all open incidents")
	}
	for _, cluster := range r.Patterns.RepeatedSourceIPs {
		recs = append(recs, fmt.Sprintf("Block or rate-limit source IP %s (%d events in window)", cluster.SourceIP, cluster.Count))
	}
	if len(r.Patterns.Bursts) > 0 {
		recs = append(recs, fmt.Sprintf("Investigate %d high-activity burst(s); consider tightening rate limits", len(r.Patterns.Bursts)))
	}
	if r.Performance.ResolvedIncidents > 0 && r.Performance.SLACompliancePercent < 80 {
		recs = append(recs, fmt.Sprintf("SLA compliance at %.0f%%; review the incident response process", r.Performance.SLACompliancePercent))
	}
	if len(recs) == 0 {
		recs = append(recs, "Security posture nominal; no action required")
	}
	return recs
}
