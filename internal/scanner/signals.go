package scanner

import (
	"sync"
	"time"
)

// Signal kinds fed into the detectors. Values are counts except
// SignalEgressBytes, which accumulates bytes.
const (
	SignalAPICalls        = "api_calls"
	SignalFailedLogins    = "failed_logins"
	SignalPrivilegedCalls = "privileged_calls"
	SignalEgressBytes     = "egress_bytes"
	SignalConfigWrites    = "config_writes"
)

// SignalSource exposes per-region activity counters over a sliding window.
type SignalSource interface {
	Sum(region, kind string, window time.Duration) float64
}

type signalSample struct {
	t time.Time
	v float64
}

// InMemorySignals accumulates signal samples per region and kind, trimming
// anything older than the largest queried window.
type InMemorySignals struct {
	mu      sync.Mutex
	samples map[string][]signalSample
	now     func() time.Time
}

func NewInMemorySignals() *InMemorySignals {
	return &InMemorySignals{
		samples: make(map[string][]signalSample),
		now:     time.Now,
	}
}

func (s *InMemorySignals) key(region, kind string) string {
	return region + "/" + kind
}

// Record adds v to the named signal for the region.
func (s *InMemorySignals) Record(region, kind string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(region, kind)
	s.samples[key] = append(s.samples[key], signalSample{t: s.now(), v: v})
}

// Sum returns the total signal value inside the window, dropping expired
// samples as a side effect.
func (s *InMemorySignals) Sum(region, kind string, window time.Duration) float64 {
	cutoff := s.now().Add(-window)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(region, kind)
	samples := s.samples[key]
	if len(samples) == 0 {
		return 0
	}

	idx := len(samples)
	for i, sample := range samples {
		if sample.t.After(cutoff) {
			idx = i
			break
		}
	}
	samples = samples[idx:]
	if len(samples) == 0 {
		delete(s.samples, key)
		return 0
	}
	s.samples[key] = samples

	var total float64
	for _, sample := range samples {
		total += sample.v
	}
	return total
}
