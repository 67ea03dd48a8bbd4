// Package scanner runs detection heuristics across monitored regions and
// emits threat events. Detectors are independent and side-effect-free; the
// scanner never writes to the record store.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bastion/internal/domain"
)

type Logger interface {
	Printf(string, ...any)
}

type Metrics interface {
	RecordThreatEvent(region, threatType, level string)
	ObserveScanCycle(duration time.Duration, err error)
}

// levelPolicy fixes the threat level per detector category. The mapping is
// policy, not computation.
var levelPolicy = map[string]domain.ThreatLevel{
	domain.ThreatAnomalousCallVolume:    domain.LevelMedium,
	domain.ThreatOffHoursActivity:       domain.LevelLow,
	domain.ThreatPrivilegeEscalation:    domain.LevelCritical,
	domain.ThreatBruteForceAttack:       domain.LevelHigh,
	domain.ThreatDataExfiltration:       domain.LevelCritical,
	domain.ThreatSuspiciousConfigChange: domain.LevelHigh,
}

// Thresholds tune the detector heuristics. Zero values fall back to defaults.
type Thresholds struct {
	CallVolumePerMinute  float64
	FailedLoginCount     float64
	PrivilegedCallCount  float64
	EgressBytes          float64
	ConfigWriteCount     float64
	OffHoursCallsPerMin  float64
	OffHoursStart        int // hour of day, inclusive
	OffHoursEnd          int // hour of day, exclusive
	Window               time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.CallVolumePerMinute <= 0 {
		t.CallVolumePerMinute = 1000
	}
	if t.FailedLoginCount <= 0 {
		t.FailedLoginCount = 25
	}
	if t.PrivilegedCallCount <= 0 {
		t.PrivilegedCallCount = 10
	}
	if t.EgressBytes <= 0 {
		t.EgressBytes = 5 << 30 // 5 GiB
	}
	if t.ConfigWriteCount <= 0 {
		t.ConfigWriteCount = 5
	}
	if t.OffHoursCallsPerMin <= 0 {
		t.OffHoursCallsPerMin = 50
	}
	if t.OffHoursStart == 0 && t.OffHoursEnd == 0 {
		t.OffHoursStart = 22
		t.OffHoursEnd = 6
	}
	if t.Window <= 0 {
		t.Window = 10 * time.Minute
	}
	return t
}

// detector inspects one region's signals and reports zero or one finding.
type detector struct {
	threatType string
	check      func(region string, src SignalSource, th Thresholds, now time.Time) (map[string]string, bool)
}

// Summary aggregates one scan cycle's output.
type Summary struct {
	Total   int                        `json:"total"`
	ByLevel map[domain.ThreatLevel]int `json:"byLevel"`
	ByType  map[string]int             `json:"byType"`
}

type Scanner struct {
	signals   SignalSource
	detectors []detector
	th        Thresholds
	log       Logger
	metrics   Metrics
	now       func() time.Time
}

func New(signals SignalSource, th Thresholds, log Logger, metrics Metrics) *Scanner {
	return &Scanner{
		signals:   signals,
		detectors: defaultDetectors(),
		th:        th.withDefaults(),
		log:       log,
		metrics:   metrics,
		now:       time.Now,
	}
}

// eventID is stable for one (region, type, detection window) bucket, so
// overlapping scan cycles that observe the same ongoing condition emit
// one threat id and collapse into one incident downstream.
func (s *Scanner) eventID(region, threatType string, now time.Time) string {
	bucket := now.UTC().Truncate(s.th.Window).Unix()
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%s|%d", region, threatType, bucket))).String()
}

// RunScanCycle applies every detector to every monitored region and
// returns the concatenated findings. Persisting accepted events is the
// caller's responsibility.
func (s *Scanner) RunScanCycle(ctx context.Context, monitoredRegions []string) ([]domain.ThreatEvent, Summary, error) {
	start := time.Now()
	summary := Summary{
		ByLevel: make(map[domain.ThreatLevel]int),
		ByType:  make(map[string]int),
	}

	var events []domain.ThreatEvent
	for _, region := range monitoredRegions {
		if err := ctx.Err(); err != nil {
			if s.metrics != nil {
				s.metrics.ObserveScanCycle(time.Since(start), err)
			}
			return events, summary, fmt.Errorf("scan cycle interrupted: %w", err)
		}
		for _, d := range s.detectors {
			details, hit := d.check(region, s.signals, s.th, s.now())
			if !hit {
				continue
			}
			level := levelPolicy[d.threatType]
			ev := domain.ThreatEvent{
				ThreatID:    s.eventID(region, d.threatType, s.now()),
				Timestamp:   s.now().UTC(),
				Region:      region,
				Type:        d.threatType,
				ThreatLevel: level,
				Details:     details,
			}
			events = append(events, ev)
			summary.Total++
			summary.ByLevel[level]++
			summary.ByType[d.threatType]++
			if s.metrics != nil {
				s.metrics.RecordThreatEvent(region, d.threatType, string(level))
			}
			s.log.Printf("detected %s in %s (level=%s)", d.threatType, region, level)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveScanCycle(time.Since(start), nil)
	}
	return events, summary, nil
}

func defaultDetectors() []detector {
	return []detector{
		{
			threatType: domain.ThreatAnomalousCallVolume,
			check: func(region string, src SignalSource, th Thresholds, _ time.Time) (map[string]string, bool) {
				calls := src.Sum(region, SignalAPICalls, th.Window)
				perMinute := calls / th.Window.Minutes()
				if perMinute < th.CallVolumePerMinute {
					return nil, false
				}
				return map[string]string{
					"callsPerMinute": fmt.Sprintf("%.0f", perMinute),
					"threshold":      fmt.Sprintf("%.0f", th.CallVolumePerMinute),
				}, true
			},
		},
		{
			threatType: domain.ThreatOffHoursActivity,
			check: func(region string, src SignalSource, th Thresholds, now time.Time) (map[string]string, bool) {
				hour := now.UTC().Hour()
				if !inOffHours(hour, th.OffHoursStart, th.OffHoursEnd) {
					return nil, false
				}
				calls := src.Sum(region, SignalAPICalls, th.Window)
				perMinute := calls / th.Window.Minutes()
				if perMinute < th.OffHoursCallsPerMin {
					return nil, false
				}
				return map[string]string{
					"hourUTC":        fmt.Sprintf("%d", hour),
					"callsPerMinute": fmt.Sprintf("%.0f", perMinute),
				}, true
			},
		},
		{
			threatType: domain.ThreatPrivilegeEscalation,
			check: func(region string, src SignalSource, th Thresholds, _ time.Time) (map[string]string, bool) {
				count := src.Sum(region, SignalPrivilegedCalls, th.Window)
				if count < th.PrivilegedCallCount {
					return nil, false
				}
				return map[string]string{"privilegedCalls": fmt.Sprintf("%.0f", count)}, true
			},
		},
		{
			threatType: domain.ThreatBruteForceAttack,
			check: func(region string, src SignalSource, th Thresholds, _ time.Time) (map[string]string, bool) {
				count := src.Sum(region, SignalFailedLogins, th.Window)
				if count < th.FailedLoginCount {
					return nil, false
				}
				return map[string]string{"failedLogins": fmt.Sprintf("%.0f", count)}, true
			},
		},
		{
			threatType: domain.ThreatDataExfiltration,
			check: func(region string, src SignalSource, th Thresholds, _ time.Time) (map[string]string, bool) {
				bytes := src.Sum(region, SignalEgressBytes, th.Window)
				if bytes < th.EgressBytes {
					return nil, false
				}
				return map[string]string{"egressBytes": fmt.Sprintf("%.0f", bytes)}, true
			},
		},
		{
			threatType: domain.ThreatSuspiciousConfigChange,
			check: func(region string, src SignalSource, th Thresholds, _ time.Time) (map[string]string, bool) {
				count := src.Sum(region, SignalConfigWrites, th.Window)
				if count < th.ConfigWriteCount {
					return nil, false
				}
				return map[string]string{"configWrites": fmt.Sprintf("%.0f", count)}, true
			},
		},
	}
}

// inOffHours handles windows that wrap midnight, e.g. 22..6.
func inOffHours(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
