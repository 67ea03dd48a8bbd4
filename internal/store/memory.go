package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"bastion/internal/domain"
)

// Memory is an in-process record store with the same method set as
// Postgres. Used by tests and local development without a database.
type Memory struct {
	mu          sync.Mutex
	deployments map[string]domain.DeploymentRecord
	phases      map[string][]domain.RolloutPhase
	threats     map[string]memThreat
	incidents   map[string]domain.Incident
	failovers   map[string][]domain.FailoverResult
}

type memThreat struct {
	event     domain.ThreatEvent
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		deployments: make(map[string]domain.DeploymentRecord),
		phases:      make(map[string][]domain.RolloutPhase),
		threats:     make(map[string]memThreat),
		incidents:   make(map[string]domain.Incident),
		failovers:   make(map[string][]domain.FailoverResult),
	}
}

func (m *Memory) Ready(context.Context) error { return nil }

func (m *Memory) InsertDeployment(_ context.Context, rec domain.DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments[rec.DeploymentID] = cloneDeployment(rec)
	return nil
}

func (m *Memory) GetDeployment(_ context.Context, deploymentID string) (domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.deployments[deploymentID]
	if !ok {
		return domain.DeploymentRecord{}, ErrNotFound
	}
	return cloneDeployment(rec), nil
}

func (m *Memory) UpdateDeploymentStatus(_ context.Context, deploymentID string, status domain.DeploymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.deployments[deploymentID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	m.deployments[deploymentID] = rec
	return nil
}

func (m *Memory) ListDeploymentsByStatus(_ context.Context, statuses ...domain.DeploymentStatus) ([]domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[domain.DeploymentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	var out []domain.DeploymentRecord
	for _, rec := range m.deployments {
		if _, ok := wanted[rec.Status]; ok {
			out = append(out, cloneDeployment(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) UpsertPhase(_ context.Context, phase domain.RolloutPhase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	phases := m.phases[phase.DeploymentID]
	for i, existing := range phases {
		if existing.Index == phase.Index {
			phases[i] = clonePhase(phase)
			return nil
		}
	}
	m.phases[phase.DeploymentID] = append(phases, clonePhase(phase))
	return nil
}

func (m *Memory) ListPhases(_ context.Context, deploymentID string) ([]domain.RolloutPhase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phases := m.phases[deploymentID]
	out := make([]domain.RolloutPhase, len(phases))
	for i, p := range phases {
		out[i] = clonePhase(p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) InsertThreatEvent(_ context.Context, ev domain.ThreatEvent, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threats[ev.ThreatID]; ok {
		return nil
	}
	m.threats[ev.ThreatID] = memThreat{event: cloneThreat(ev), expiresAt: expiresAt}
	return nil
}

func (m *Memory) ListThreatEventsSince(_ context.Context, since time.Time) ([]domain.ThreatEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ThreatEvent
	for _, t := range m.threats {
		if !t.event.Timestamp.Before(since) {
			out = append(out, cloneThreat(t.event))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) DeleteExpiredThreatEvents(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, t := range m.threats {
		if !t.expiresAt.After(now) {
			delete(m.threats, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) InsertIncident(_ context.Context, inc domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.IncidentID] = cloneIncident(inc)
	return nil
}

func (m *Memory) UpdateIncident(_ context.Context, inc domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[inc.IncidentID]; !ok {
		return ErrNotFound
	}
	m.incidents[inc.IncidentID] = cloneIncident(inc)
	return nil
}

func (m *Memory) GetIncident(_ context.Context, incidentID string) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[incidentID]
	if !ok {
		return domain.Incident{}, ErrNotFound
	}
	return cloneIncident(inc), nil
}

func (m *Memory) GetIncidentByThreatID(_ context.Context, threatID string) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.incidents {
		if inc.HasEvent(threatID) {
			return cloneIncident(inc), nil
		}
	}
	return domain.Incident{}, ErrNotFound
}

func (m *Memory) ListIncidentsSince(_ context.Context, since time.Time) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if !inc.Timestamp.Before(since) {
			out = append(out, cloneIncident(inc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) ListIncidentsByStatus(_ context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[domain.IncidentStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	var out []domain.Incident
	for _, inc := range m.incidents {
		if _, ok := wanted[inc.Status]; ok {
			out = append(out, cloneIncident(inc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) InsertFailoverAudit(_ context.Context, result domain.FailoverResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failovers[result.DeploymentID] = append(m.failovers[result.DeploymentID], result)
	return nil
}

func (m *Memory) ListFailoverAudits(_ context.Context, deploymentID string) ([]domain.FailoverResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FailoverResult(nil), m.failovers[deploymentID]...), nil
}

func cloneDeployment(rec domain.DeploymentRecord) domain.DeploymentRecord {
	rec.TargetRegions = append([]string(nil), rec.TargetRegions...)
	return rec
}

func clonePhase(p domain.RolloutPhase) domain.RolloutPhase {
	p.Regions = append([]string(nil), p.Regions...)
	return p
}

func cloneThreat(ev domain.ThreatEvent) domain.ThreatEvent {
	if ev.Details != nil {
		details := make(map[string]string, len(ev.Details))
		for k, v := range ev.Details {
			details[k] = v
		}
		ev.Details = details
	}
	return ev
}

func cloneIncident(inc domain.Incident) domain.Incident {
	inc.RelatedEvents = append([]string(nil), inc.RelatedEvents...)
	inc.ResponseActions = append([]domain.ResponseAction(nil), inc.ResponseActions...)
	if inc.ResolvedAt != nil {
		t := *inc.ResolvedAt
		inc.ResolvedAt = &t
	}
	return inc
}
