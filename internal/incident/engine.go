// Package incident turns qualifying threat events into tracked incidents:
// creation, auto-response, escalation, SLA enforcement, and resolution.
package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion/internal/domain"
	"bastion/internal/notify"
	"bastion/internal/store"
)

type incidentStore interface {
	InsertThreatEvent(ctx context.Context, ev domain.ThreatEvent, expiresAt time.Time) error
	InsertIncident(ctx context.Context, inc domain.Incident) error
	UpdateIncident(ctx context.Context, inc domain.Incident) error
	GetIncident(ctx context.Context, incidentID string) (domain.Incident, error)
	GetIncidentByThreatID(ctx context.Context, threatID string) (domain.Incident, error)
	ListIncidentsByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error)
}

type Alerter interface {
	Send(ctx context.Context, alert notify.Alert) error
}

type Logger interface {
	Printf(string, ...any)
}

type Metrics interface {
	RecordIncidentTransition(severity, transition string)
	RecordResponseAction(action, status string)
	RecordSLABreach(severity string)
}

type Config struct {
	SLAMinutes          int
	AutoResponseEnabled bool
	EventTTL            time.Duration
}

// assignments maps incident severity to the owning team.
var assignments = map[domain.ThreatLevel]string{
	domain.LevelCritical: "security-oncall",
	domain.LevelHigh:     "security-engineering",
}

const defaultAssignee = "security-triage"

// escalation types force the urgent path regardless of severity.
var escalationTypes = map[string]struct{}{
	domain.ThreatDataExfiltration:    {},
	domain.ThreatPrivilegeEscalation: {},
}

type Engine struct {
	store      incidentStore
	alerts     Alerter
	responders map[string]Responder
	fallback   Responder
	cfg        Config
	log        Logger
	metrics    Metrics
	now        func() time.Time
	newID      func() string

	// keyed locks serialize incident creation per threat id and
	// response-action appends per incident
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewEngine(st incidentStore, alerts Alerter, responders map[string]Responder, fallback Responder, cfg Config, log Logger, metrics Metrics) *Engine {
	if cfg.SLAMinutes <= 0 {
		cfg.SLAMinutes = 60
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 90 * 24 * time.Hour
	}
	return &Engine{
		store:      st,
		alerts:     alerts,
		responders: responders,
		fallback:   fallback,
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		locks:      make(map[string]*sync.Mutex),
	}
}

// ProcessThreat persists the event and, for CRITICAL/HIGH levels, opens and
// drives an incident through investigation, auto-response, alerting, and
// escalation. Returns nil for levels below HIGH. Re-delivery of an already
// incident-linked threat id returns the existing incident unchanged.
func (e *Engine) ProcessThreat(ctx context.Context, ev domain.ThreatEvent) (*domain.Incident, error) {
	if ev.ThreatID == "" {
		return nil, fmt.Errorf("threat event missing threatId")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}

	if err := e.store.InsertThreatEvent(ctx, ev, ev.Timestamp.Add(e.cfg.EventTTL)); err != nil {
		return nil, fmt.Errorf("persist threat event: %w", err)
	}

	if !ev.ThreatLevel.Actionable() {
		e.log.Printf("threat %s (%s/%s) below incident threshold, persisted only", ev.ThreatID, ev.Type, ev.ThreatLevel)
		return nil, nil
	}

	inc, existing, err := e.openIncident(ctx, ev)
	if err != nil {
		return nil, err
	}
	if existing {
		return &inc, nil
	}

	inc.Status = domain.IncidentInvestigating
	if err := e.store.UpdateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("transition incident %s to investigating: %w", inc.IncidentID, err)
	}
	e.recordTransition(inc.Severity, "investigating")

	if e.cfg.AutoResponseEnabled {
		e.executeAutoResponse(ctx, &inc, ev)
	}

	e.sendIncidentAlert(ctx, inc, notify.UrgencyWarning, "incident opened")

	if e.shouldEscalate(inc) {
		inc.Status = domain.IncidentEscalated
		if err := e.store.UpdateIncident(ctx, inc); err != nil {
			return nil, fmt.Errorf("escalate incident %s: %w", inc.IncidentID, err)
		}
		e.recordTransition(inc.Severity, "escalated")
		e.sendIncidentAlert(ctx, inc, notify.UrgencyCritical, "incident escalated")
	}

	return &inc, nil
}

// openIncident runs the duplicate check and the insert under a per-threat
// lock: a retried or concurrently delivered threat id must not open a
// second incident. Reports existing=true when the threat is already
// tracked, returning that incident unchanged.
func (e *Engine) openIncident(ctx context.Context, ev domain.ThreatEvent) (inc domain.Incident, existing bool, err error) {
	lock := e.lockFor("threat/" + ev.ThreatID)
	lock.Lock()
	defer lock.Unlock()

	if tracked, err := e.store.GetIncidentByThreatID(ctx, ev.ThreatID); err == nil {
		e.log.Printf("threat %s already tracked by incident %s, suppressing duplicate", ev.ThreatID, tracked.IncidentID)
		return tracked, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Incident{}, false, fmt.Errorf("duplicate check for threat %s: %w", ev.ThreatID, err)
	}

	created := e.now().UTC()
	inc = domain.Incident{
		IncidentID:    e.newID(),
		Timestamp:     created,
		Status:        domain.IncidentOpen,
		Severity:      ev.ThreatLevel,
		Type:          ev.Type,
		Region:        ev.Region,
		RelatedEvents: []string{ev.ThreatID},
		AssignedTo:    assigneeFor(ev.ThreatLevel),
		SLADeadline:   created.Add(time.Duration(e.cfg.SLAMinutes) * time.Minute),
	}
	if err := e.store.InsertIncident(ctx, inc); err != nil {
		return domain.Incident{}, false, fmt.Errorf("persist incident: %w", err)
	}
	e.recordTransition(inc.Severity, "opened")
	return inc, false, nil
}

// executeAutoResponse dispatches to the responder registered for the
// threat type. Failures become failed actions on the incident, never
// errors for the caller.
func (e *Engine) executeAutoResponse(ctx context.Context, inc *domain.Incident, ev domain.ThreatEvent) {
	responder := e.fallback
	if r, ok := e.responders[ev.Type]; ok {
		responder = r
	}
	if responder == nil {
		return
	}

	outcome, err := responder(ctx, ev)
	action := domain.ResponseAction{
		Action:    outcome.Action,
		Target:    outcome.Target,
		Status:    domain.ActionCompleted,
		Timestamp: e.now().UTC(),
		Details:   outcome.Details,
	}
	if err != nil {
		action.Status = domain.ActionFailed
		action.Details = err.Error()
		e.log.Printf("auto-response %s for incident %s failed: %v", outcome.Action, inc.IncidentID, err)
	}
	if e.metrics != nil {
		e.metrics.RecordResponseAction(action.Action, string(action.Status))
	}
	if err := e.appendAction(ctx, inc, action); err != nil {
		e.log.Printf("recording response action for incident %s: %v", inc.IncidentID, err)
	}
}

// appendAction serializes response-action writes per incident.
func (e *Engine) appendAction(ctx context.Context, inc *domain.Incident, action domain.ResponseAction) error {
	lock := e.lockFor(inc.IncidentID)
	lock.Lock()
	defer lock.Unlock()
	inc.ResponseActions = append(inc.ResponseActions, action)
	return e.store.UpdateIncident(ctx, *inc)
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

func (e *Engine) shouldEscalate(inc domain.Incident) bool {
	if inc.Severity == domain.LevelCritical {
		return true
	}
	_, ok := escalationTypes[inc.Type]
	return ok
}

// ResolveIncident marks an active incident resolved with the given note.
func (e *Engine) ResolveIncident(ctx context.Context, incidentID, resolution string) (domain.Incident, error) {
	inc, err := e.store.GetIncident(ctx, incidentID)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("load incident %s: %w", incidentID, err)
	}
	switch inc.Status {
	case domain.IncidentOpen, domain.IncidentInvestigating, domain.IncidentContained, domain.IncidentEscalated:
	default:
		return domain.Incident{}, fmt.Errorf("incident %s cannot be resolved from status %s", incidentID, inc.Status)
	}
	resolvedAt := e.now().UTC()
	inc.Status = domain.IncidentResolved
	inc.ResolvedAt = &resolvedAt
	inc.Resolution = resolution
	if err := e.store.UpdateIncident(ctx, inc); err != nil {
		return domain.Incident{}, fmt.Errorf("resolve incident %s: %w", incidentID, err)
	}
	e.recordTransition(inc.Severity, "resolved")
	return inc, nil
}

// CloseIncident closes a resolved incident. Incidents are never deleted.
func (e *Engine) CloseIncident(ctx context.Context, incidentID string) (domain.Incident, error) {
	inc, err := e.store.GetIncident(ctx, incidentID)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("load incident %s: %w", incidentID, err)
	}
	if inc.Status != domain.IncidentResolved {
		return domain.Incident{}, fmt.Errorf("incident %s cannot be closed from status %s", incidentID, inc.Status)
	}
	inc.Status = domain.IncidentClosed
	if err := e.store.UpdateIncident(ctx, inc); err != nil {
		return domain.Incident{}, fmt.Errorf("close incident %s: %w", incidentID, err)
	}
	e.recordTransition(inc.Severity, "closed")
	return inc, nil
}

// CheckSLA alerts on every active incident past its deadline. Runs on a
// schedule; a breached incident alerts once per sweep until resolved.
func (e *Engine) CheckSLA(ctx context.Context) (int, error) {
	active, err := e.store.ListIncidentsByStatus(ctx, domain.IncidentOpen, domain.IncidentInvestigating, domain.IncidentEscalated)
	if err != nil {
		return 0, fmt.Errorf("list active incidents: %w", err)
	}
	now := e.now().UTC()
	breached := 0
	for _, inc := range active {
		if !now.After(inc.SLADeadline) {
			continue
		}
		breached++
		if e.metrics != nil {
			e.metrics.RecordSLABreach(string(inc.Severity))
		}
		e.sendIncidentAlert(ctx, inc, notify.UrgencyCritical, "incident SLA breached")
	}
	return breached, nil
}

func (e *Engine) sendIncidentAlert(ctx context.Context, inc domain.Incident, urgency notify.Urgency, subject string) {
	alert := notify.Alert{
		Urgency: urgency,
		Subject: fmt.Sprintf("%s: %s in %s", subject, inc.Type, inc.Region),
		Body:    fmt.Sprintf("Incident %s (%s) is %s, assigned to %s.", inc.IncidentID, inc.Severity, inc.Status, inc.AssignedTo),
		Fields: map[string]string{
			"incidentId":  inc.IncidentID,
			"severity":    string(inc.Severity),
			"status":      string(inc.Status),
			"region":      inc.Region,
			"slaDeadline": inc.SLADeadline.Format(time.RFC3339),
		},
	}
	if err := e.alerts.Send(ctx, alert); err != nil {
		e.log.Printf("alert for incident %s: %v", inc.IncidentID, err)
	}
}

func (e *Engine) recordTransition(severity domain.ThreatLevel, transition string) {
	if e.metrics != nil {
		e.metrics.RecordIncidentTransition(string(severity), transition)
	}
}

func assigneeFor(level domain.ThreatLevel) string {
	if team, ok := assignments[level]; ok {
		return team
	}
	return defaultAssignee
}
