// Package rollout drives phased multi-region deployments: strategy-based
// phase partitioning, health-gated promotion, automatic rollback, and
// disaster-recovery failover.
package rollout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion/internal/domain"
	"bastion/internal/notify"
	"bastion/internal/regions"
	"bastion/internal/store"
	"bastion/internal/substrate"
)

const (
	deployHandler   = "deploy-region"
	rollbackHandler = "rollback-region"

	maxInvokeAttempts = 3
)

// InvalidConfigError rejects a malformed rollout request before any state
// is written.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid rollout config: " + e.Reason
}

type rolloutStore interface {
	InsertDeployment(ctx context.Context, rec domain.DeploymentRecord) error
	GetDeployment(ctx context.Context, deploymentID string) (domain.DeploymentRecord, error)
	UpdateDeploymentStatus(ctx context.Context, deploymentID string, status domain.DeploymentStatus) error
	ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.DeploymentRecord, error)
	UpsertPhase(ctx context.Context, phase domain.RolloutPhase) error
	ListPhases(ctx context.Context, deploymentID string) ([]domain.RolloutPhase, error)
	InsertFailoverAudit(ctx context.Context, result domain.FailoverResult) error
}

type healthProbe interface {
	Check(ctx context.Context, region string) (float64, error)
}

type trafficSteering interface {
	PointTo(ctx context.Context, domainName, targetRegion string, allRegions []string) error
}

type Alerter interface {
	Send(ctx context.Context, alert notify.Alert) error
}

type Logger interface {
	Printf(string, ...any)
}

type Metrics interface {
	RecordDeploymentStarted(strategy string)
	SetDeploymentStatus(deploymentID, status string)
	RecordPhase(strategy, outcome string, deploymentID string, healthScore float64)
	RecordRollback(strategy string)
	RecordFailover(targetRegion string, rtoMet bool)
}

type Config struct {
	// Domain is the public hostname failover repoints.
	Domain string

	// DefaultRollback and DefaultRecovery backfill requests that omit
	// their rollbackConfig or disasterRecovery blocks. A minimal start
	// still runs health-gated with rollback armed.
	DefaultRollback domain.RollbackConfig
	DefaultRecovery domain.DisasterRecovery

	InterPhaseDelay time.Duration
	CanaryDelay     time.Duration

	DeployTimeout time.Duration
	ProbeTimeout  time.Duration

	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.InterPhaseDelay <= 0 {
		c.InterPhaseDelay = 2 * time.Minute
	}
	if c.CanaryDelay <= 0 {
		c.CanaryDelay = 30 * time.Second
	}
	if c.DeployTimeout <= 0 {
		c.DeployTimeout = 5 * time.Minute
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.DefaultRollback == (domain.RollbackConfig{}) {
		c.DefaultRollback = domain.RollbackConfig{Enabled: true, HealthCheckThreshold: 90, RollbackTimeoutMinutes: 15}
	}
	if c.DefaultRecovery == (domain.DisasterRecovery{}) {
		c.DefaultRecovery = domain.DisasterRecovery{Enabled: true, RTOMinutes: 30, RPOMinutes: 5}
	}
	return c
}

// StartRequest carries the caller's rollout parameters. DeploymentID is
// optional; supplying one makes StartDeployment idempotent against retried
// requests.
type StartRequest struct {
	DeploymentID     string                  `json:"deploymentId,omitempty"`
	TargetRegions    []string                `json:"targetRegions"`
	Strategy         domain.Strategy         `json:"strategy"`
	RollbackConfig   domain.RollbackConfig   `json:"rollbackConfig"`
	DisasterRecovery domain.DisasterRecovery `json:"disasterRecovery"`
}

// Status pairs a deployment record with its phase history.
type Status struct {
	Record domain.DeploymentRecord `json:"deployment"`
	Phases []domain.RolloutPhase   `json:"phases"`
}

type activeDeployment struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator owns the deployment state machine. Phases within one
// deployment run strictly in order; independent deployments run
// concurrently, sharing nothing but the record store.
type Orchestrator struct {
	store   rolloutStore
	invoker substrate.Invoker
	probe   healthProbe
	steer   trafficSteering
	catalog *regions.Catalog
	alerts  Alerter
	cfg     Config
	log     Logger
	metrics Metrics

	mu     sync.Mutex
	active map[string]*activeDeployment

	now   func() time.Time
	newID func() string
	delay func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(st rolloutStore, inv substrate.Invoker, hp healthProbe, steer trafficSteering, catalog *regions.Catalog, alerts Alerter, cfg Config, log Logger, metrics Metrics) *Orchestrator {
	return &Orchestrator{
		store:   st,
		invoker: inv,
		probe:   hp,
		steer:   steer,
		catalog: catalog,
		alerts:  alerts,
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: metrics,
		active:  make(map[string]*activeDeployment),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		delay:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) validate(req StartRequest) error {
	if len(req.TargetRegions) == 0 {
		return &InvalidConfigError{Reason: "targetRegions must not be empty"}
	}
	for _, region := range req.TargetRegions {
		if !o.catalog.Contains(region) {
			return &InvalidConfigError{Reason: fmt.Sprintf("unknown region %q", region)}
		}
	}
	if !domain.ValidStrategy(req.Strategy) {
		return &InvalidConfigError{Reason: fmt.Sprintf("unknown strategy %q", req.Strategy)}
	}
	if t := req.RollbackConfig.HealthCheckThreshold; t < 0 || t > 100 {
		return &InvalidConfigError{Reason: fmt.Sprintf("healthCheckThreshold %v outside [0,100]", t)}
	}
	if req.RollbackConfig.Enabled && req.RollbackConfig.RollbackTimeoutMinutes <= 0 {
		return &InvalidConfigError{Reason: "rollbackTimeoutMinutes must be positive when rollback is enabled"}
	}
	if req.DisasterRecovery.Enabled && (req.DisasterRecovery.RTOMinutes <= 0 || req.DisasterRecovery.RPOMinutes <= 0) {
		return &InvalidConfigError{Reason: "rtoMinutes and rpoMinutes must be positive when disaster recovery is enabled"}
	}
	return nil
}

// StartDeployment validates the request, writes the deployment record, and
// launches phase execution in the background. Returns the deployment id.
// If the caller supplied an id that already names a non-terminal deployment
// the existing id is returned and nothing new starts.
func (o *Orchestrator) StartDeployment(ctx context.Context, req StartRequest) (string, error) {
	if req.RollbackConfig == (domain.RollbackConfig{}) {
		req.RollbackConfig = o.cfg.DefaultRollback
	}
	if req.DisasterRecovery == (domain.DisasterRecovery{}) {
		req.DisasterRecovery = o.cfg.DefaultRecovery
	}
	if err := o.validate(req); err != nil {
		return "", err
	}

	if req.DeploymentID != "" {
		existing, err := o.store.GetDeployment(ctx, req.DeploymentID)
		switch {
		case err == nil && !existing.Status.Terminal():
			o.log.Printf("deployment %s already active (%s), treating start as idempotent retry", existing.DeploymentID, existing.Status)
			return existing.DeploymentID, nil
		case err == nil:
			return "", fmt.Errorf("deployment %s already finished with status %s", req.DeploymentID, existing.Status)
		case !errors.Is(err, store.ErrNotFound):
			return "", fmt.Errorf("check existing deployment: %w", err)
		}
	}

	rec := domain.DeploymentRecord{
		DeploymentID:     req.DeploymentID,
		Timestamp:        o.now().UTC(),
		TargetRegions:    req.TargetRegions,
		Strategy:         req.Strategy,
		Status:           domain.DeploymentPending,
		RollbackConfig:   req.RollbackConfig,
		DisasterRecovery: req.DisasterRecovery,
	}
	if rec.DeploymentID == "" {
		rec.DeploymentID = o.newID()
	}
	if err := o.store.InsertDeployment(ctx, rec); err != nil {
		return "", fmt.Errorf("persist deployment: %w", err)
	}
	if err := o.transition(ctx, &rec, domain.DeploymentInProgress); err != nil {
		return "", err
	}
	if o.metrics != nil {
		o.metrics.RecordDeploymentStarted(string(rec.Strategy))
	}
	o.log.Printf("deployment %s started: strategy=%s regions=%v", rec.DeploymentID, rec.Strategy, rec.TargetRegions)

	o.launch(rec, nil)
	return rec.DeploymentID, nil
}

// launch registers the deployment as active and runs its phases in a
// goroutine. donePhases carries already-succeeded phases when resuming.
func (o *Orchestrator) launch(rec domain.DeploymentRecord, donePhases []domain.RolloutPhase) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &activeDeployment{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	o.active[rec.DeploymentID] = handle
	o.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.active, rec.DeploymentID)
			o.mu.Unlock()
			close(handle.done)
		}()
		o.runPhases(runCtx, rec, donePhases)
	}()
}

// Wait blocks until the deployment leaves the active set (terminal status)
// and returns its final record. Deployments unknown to this process return
// whatever the store holds.
func (o *Orchestrator) Wait(ctx context.Context, deploymentID string) (domain.DeploymentRecord, error) {
	o.mu.Lock()
	handle, ok := o.active[deploymentID]
	o.mu.Unlock()
	if ok {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return domain.DeploymentRecord{}, ctx.Err()
		}
	}
	return o.store.GetDeployment(ctx, deploymentID)
}

// Abort cancels a deployment's pending work. The run loop observes the
// cancellation at the next delay or invocation boundary and fails the
// deployment cleanly.
func (o *Orchestrator) Abort(ctx context.Context, deploymentID string) error {
	o.mu.Lock()
	handle, ok := o.active[deploymentID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("deployment %s is not active", deploymentID)
	}
	o.log.Printf("deployment %s abort requested", deploymentID)
	handle.cancel()
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetDeploymentStatus returns the record and its phase history.
func (o *Orchestrator) GetDeploymentStatus(ctx context.Context, deploymentID string) (Status, error) {
	rec, err := o.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return Status{}, err
	}
	phases, err := o.store.ListPhases(ctx, deploymentID)
	if err != nil {
		return Status{}, fmt.Errorf("list phases for %s: %w", deploymentID, err)
	}
	return Status{Record: rec, Phases: phases}, nil
}

// Recover relaunches deployments the process left non-terminal, skipping
// phases that already succeeded. Called once at startup.
func (o *Orchestrator) Recover(ctx context.Context) error {
	pending, err := o.store.ListDeploymentsByStatus(ctx, domain.DeploymentPending, domain.DeploymentInProgress)
	if err != nil {
		return fmt.Errorf("list recoverable deployments: %w", err)
	}
	for _, rec := range pending {
		if rec.Status == domain.DeploymentPending {
			if err := o.transition(ctx, &rec, domain.DeploymentInProgress); err != nil {
				return err
			}
		}
		phases, err := o.store.ListPhases(ctx, rec.DeploymentID)
		if err != nil {
			return fmt.Errorf("list phases for %s: %w", rec.DeploymentID, err)
		}
		var done []domain.RolloutPhase
		for _, p := range phases {
			if p.Outcome == domain.PhaseSuccess {
				done = append(done, p)
			}
		}
		o.log.Printf("resuming deployment %s from phase %d", rec.DeploymentID, len(done))
		o.launch(rec, done)
	}
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, rec domain.DeploymentRecord, donePhases []domain.RolloutPhase) {
	phases := partition(rec.Strategy, rec.TargetRegions)
	threshold := rec.RollbackConfig.HealthCheckThreshold

	var succeeded []string
	for _, p := range donePhases {
		succeeded = append(succeeded, p.Regions...)
	}

	for idx := len(donePhases); idx < len(phases); idx++ {
		if ctx.Err() != nil {
			o.abortActive(rec)
			return
		}
		phaseRegions := phases[idx]
		phase := domain.RolloutPhase{
			DeploymentID: rec.DeploymentID,
			Index:        idx,
			Regions:      phaseRegions,
			StartedAt:    o.now().UTC(),
		}

		score := o.executePhase(ctx, rec, phaseRegions)
		phase.HealthScore = score

		if score >= threshold {
			phase.Outcome = domain.PhaseSuccess
			o.persistPhase(rec, phase)
			succeeded = append(succeeded, phaseRegions...)
			o.log.Printf("deployment %s phase %d healthy: score=%.1f regions=%v", rec.DeploymentID, idx, score, phaseRegions)

			if idx < len(phases)-1 {
				if err := o.delay(ctx, o.phaseDelay(rec.Strategy)); err != nil {
					o.abortActive(rec)
					return
				}
			}
			continue
		}

		phase.Outcome = domain.PhaseFailed
		o.persistPhase(rec, phase)
		o.log.Printf("deployment %s phase %d unhealthy: score=%.1f threshold=%.1f", rec.DeploymentID, idx, score, threshold)

		if rec.RollbackConfig.Enabled {
			o.rollback(ctx, rec, succeeded, phaseRegions, phase)
		} else {
			o.finish(&rec, domain.DeploymentFailed)
			o.sendAlert(notify.UrgencyCritical,
				fmt.Sprintf("deployment failed: %s", rec.DeploymentID),
				fmt.Sprintf("Phase %d health score %.1f below threshold %.1f in regions %v; rollback disabled.", idx, score, threshold, phaseRegions),
				rec)
		}
		return
	}

	o.finish(&rec, domain.DeploymentCompleted)
	o.sendAlert(notify.UrgencyInfo,
		fmt.Sprintf("deployment completed: %s", rec.DeploymentID),
		fmt.Sprintf("All %d phase(s) healthy across regions %v.", len(phases), rec.TargetRegions),
		rec)
}

// executePhase fans deploys out across the phase's regions, then fans
// health probes in and averages the scores. A failed deploy or probe error
// contributes a zero score.
func (o *Orchestrator) executePhase(ctx context.Context, rec domain.DeploymentRecord, phaseRegions []string) float64 {
	var wg sync.WaitGroup
	scores := make([]float64, len(phaseRegions))

	for i, region := range phaseRegions {
		wg.Add(1)
		go func(i int, region string) {
			defer wg.Done()
			scores[i] = o.deployAndProbe(ctx, rec, region)
		}(i, region)
	}
	wg.Wait()

	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(phaseRegions))
}

func (o *Orchestrator) deployAndProbe(ctx context.Context, rec domain.DeploymentRecord, region string) float64 {
	payload, _ := json.Marshal(map[string]string{
		"deploymentId": rec.DeploymentID,
		"region":       region,
		"strategy":     string(rec.Strategy),
	})

	deployCtx, cancel := context.WithTimeout(ctx, o.cfg.DeployTimeout)
	err := o.invokeWithRetry(deployCtx, deployHandler, payload)
	cancel()
	if err != nil {
		o.log.Printf("deployment %s region %s deploy failed: %v", rec.DeploymentID, region, err)
		return 0
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.cfg.ProbeTimeout)
	score, err := o.probe.Check(probeCtx, region)
	cancel()
	if err != nil {
		// A probe error is indistinguishable from an unhealthy region.
		o.log.Printf("deployment %s region %s health probe error, scoring 0: %v", rec.DeploymentID, region, err)
		return 0
	}
	return score
}

// invokeWithRetry retries transient substrate failures with exponential
// backoff. Permanent failures surface immediately.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, handlerID string, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < maxInvokeAttempts; attempt++ {
		if attempt > 0 {
			if err := o.delay(ctx, time.Duration(1<<attempt)*o.cfg.RetryBase); err != nil {
				return err
			}
		}
		_, err := o.invoker.InvokeNow(ctx, handlerID, payload)
		if err == nil {
			return nil
		}
		var transient *substrate.TransientError
		if !errors.As(err, &transient) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%s failed after %d attempts: %w", handlerID, maxInvokeAttempts, lastErr)
}

// rollback reverts the failed phase's regions plus every region that
// succeeded earlier in this deployment, then lands the record in
// ROLLED_BACK. Runs on a detached context so an abort cannot leave the
// deployment half reverted.
func (o *Orchestrator) rollback(ctx context.Context, rec domain.DeploymentRecord, succeeded, failedPhase []string, phase domain.RolloutPhase) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		time.Duration(rec.RollbackConfig.RollbackTimeoutMinutes)*time.Minute)
	defer cancel()

	if err := o.transition(rbCtx, &rec, domain.DeploymentRollingBack); err != nil {
		o.log.Printf("deployment %s: %v", rec.DeploymentID, err)
	}
	if o.metrics != nil {
		o.metrics.RecordRollback(string(rec.Strategy))
	}

	targets := append(append([]string{}, succeeded...), failedPhase...)
	var wg sync.WaitGroup
	for _, region := range targets {
		wg.Add(1)
		go func(region string) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]string{
				"deploymentId": rec.DeploymentID,
				"region":       region,
			})
			if err := o.invokeWithRetry(rbCtx, rollbackHandler, payload); err != nil {
				o.log.Printf("deployment %s region %s rollback failed: %v", rec.DeploymentID, region, err)
			}
		}(region)
	}
	wg.Wait()

	o.finish(&rec, domain.DeploymentRolledBack)
	o.sendAlert(notify.UrgencyCritical,
		fmt.Sprintf("deployment rolled back: %s", rec.DeploymentID),
		fmt.Sprintf("Phase %d health score %.1f below threshold %.1f; reverted regions %v.", phase.Index, phase.HealthScore, rec.RollbackConfig.HealthCheckThreshold, targets),
		rec)
}

func (o *Orchestrator) abortActive(rec domain.DeploymentRecord) {
	o.finish(&rec, domain.DeploymentFailed)
	o.sendAlert(notify.UrgencyWarning,
		fmt.Sprintf("deployment aborted: %s", rec.DeploymentID),
		fmt.Sprintf("Deployment %s was cancelled before completing; regions already deployed were left in place.", rec.DeploymentID),
		rec)
}

// Failover repoints traffic at targetRegion for a completed deployment,
// measures the redirect against the RTO, and records an audit entry.
func (o *Orchestrator) Failover(ctx context.Context, deploymentID, targetRegion string) (domain.FailoverResult, error) {
	rec, err := o.store.GetDeployment(ctx, deploymentID)
	if err != nil {
		return domain.FailoverResult{}, err
	}
	if rec.Status != domain.DeploymentCompleted {
		return domain.FailoverResult{}, fmt.Errorf("deployment %s is %s; failover requires COMPLETED", deploymentID, rec.Status)
	}
	if !contains(rec.TargetRegions, targetRegion) {
		return domain.FailoverResult{}, &InvalidConfigError{Reason: fmt.Sprintf("region %q is not part of deployment %s", targetRegion, deploymentID)}
	}

	started := o.now().UTC()
	steerErr := o.steer.PointTo(ctx, o.cfg.Domain, targetRegion, rec.TargetRegions)
	completed := o.now().UTC()

	result := domain.FailoverResult{
		DeploymentID: deploymentID,
		TargetRegion: targetRegion,
		StartedAt:    started,
		CompletedAt:  completed,
	}
	if steerErr != nil {
		o.sendAlert(notify.UrgencyCritical,
			fmt.Sprintf("failover failed: %s", deploymentID),
			fmt.Sprintf("Redirect to %s failed: %v", targetRegion, steerErr), rec)
		return result, fmt.Errorf("failover redirect to %s: %w", targetRegion, steerErr)
	}

	rto := time.Duration(rec.DisasterRecovery.RTOMinutes) * time.Minute
	result.RTOMet = rec.DisasterRecovery.RTOMinutes <= 0 || completed.Sub(started) <= rto

	if err := o.store.InsertFailoverAudit(ctx, result); err != nil {
		o.log.Printf("deployment %s failover audit write failed: %v", deploymentID, err)
	}
	if o.metrics != nil {
		o.metrics.RecordFailover(targetRegion, result.RTOMet)
	}

	urgency := notify.UrgencyWarning
	subject := fmt.Sprintf("failover completed: %s -> %s", deploymentID, targetRegion)
	body := fmt.Sprintf("Traffic for %s now points at %s; redirect took %s.", o.cfg.Domain, targetRegion, completed.Sub(started))
	if !result.RTOMet {
		urgency = notify.UrgencyCritical
		subject = fmt.Sprintf("failover RTO breached: %s -> %s", deploymentID, targetRegion)
		body = fmt.Sprintf("Redirect took %s, exceeding the %d minute RTO.", completed.Sub(started), rec.DisasterRecovery.RTOMinutes)
	}
	o.sendAlert(urgency, subject, body, rec)

	o.log.Printf("deployment %s failover to %s done: rtoMet=%v", deploymentID, targetRegion, result.RTOMet)
	return result, nil
}

func (o *Orchestrator) transition(ctx context.Context, rec *domain.DeploymentRecord, next domain.DeploymentStatus) error {
	if !rec.Status.CanTransition(next) {
		return fmt.Errorf("deployment %s cannot transition %s -> %s", rec.DeploymentID, rec.Status, next)
	}
	if err := o.store.UpdateDeploymentStatus(ctx, rec.DeploymentID, next); err != nil {
		return fmt.Errorf("transition deployment %s to %s: %w", rec.DeploymentID, next, err)
	}
	rec.Status = next
	if o.metrics != nil {
		o.metrics.SetDeploymentStatus(rec.DeploymentID, string(next))
	}
	return nil
}

// finish lands the record in a terminal status. Store writes here use a
// fresh context: the run context may already be cancelled.
func (o *Orchestrator) finish(rec *domain.DeploymentRecord, status domain.DeploymentStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.transition(ctx, rec, status); err != nil {
		o.log.Printf("deployment %s: %v", rec.DeploymentID, err)
	}
}

func (o *Orchestrator) persistPhase(rec domain.DeploymentRecord, phase domain.RolloutPhase) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.UpsertPhase(ctx, phase); err != nil {
		o.log.Printf("deployment %s phase %d persist failed: %v", rec.DeploymentID, phase.Index, err)
	}
	if o.metrics != nil {
		o.metrics.RecordPhase(string(rec.Strategy), string(phase.Outcome), rec.DeploymentID, phase.HealthScore)
	}
}

func (o *Orchestrator) sendAlert(urgency notify.Urgency, subject, body string, rec domain.DeploymentRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	alert := notify.Alert{
		Urgency: urgency,
		Subject: subject,
		Body:    body,
		Fields: map[string]string{
			"deploymentId": rec.DeploymentID,
			"strategy":     string(rec.Strategy),
			"status":       string(rec.Status),
		},
	}
	if err := o.alerts.Send(ctx, alert); err != nil {
		o.log.Printf("deployment %s alert failed: %v", rec.DeploymentID, err)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
