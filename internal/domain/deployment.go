package domain

import "time"

type Strategy string

const (
	StrategyBlueGreen Strategy = "BLUE_GREEN"
	StrategyCanary    Strategy = "CANARY"
	StrategyRolling   Strategy = "ROLLING"
)

// ValidStrategy reports whether s is one of the recognized rollout strategies.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyBlueGreen, StrategyCanary, StrategyRolling:
		return true
	}
	return false
}

type DeploymentStatus string

const (
	DeploymentPending     DeploymentStatus = "PENDING"
	DeploymentInProgress  DeploymentStatus = "IN_PROGRESS"
	DeploymentCompleted   DeploymentStatus = "COMPLETED"
	DeploymentFailed      DeploymentStatus = "FAILED"
	DeploymentRollingBack DeploymentStatus = "ROLLING_BACK"
	DeploymentRolledBack  DeploymentStatus = "ROLLED_BACK"
)

// Terminal reports whether the status admits no further transitions.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentCompleted, DeploymentFailed, DeploymentRolledBack:
		return true
	}
	return false
}

// CanTransition enforces the deployment state machine:
// PENDING -> IN_PROGRESS -> {COMPLETED | FAILED}
// IN_PROGRESS -> ROLLING_BACK -> ROLLED_BACK.
func (s DeploymentStatus) CanTransition(next DeploymentStatus) bool {
	switch s {
	case DeploymentPending:
		return next == DeploymentInProgress
	case DeploymentInProgress:
		return next == DeploymentCompleted || next == DeploymentFailed || next == DeploymentRollingBack
	case DeploymentRollingBack:
		return next == DeploymentRolledBack
	}
	return false
}

type RollbackConfig struct {
	Enabled                bool    `json:"enabled"`
	HealthCheckThreshold   float64 `json:"healthCheckThreshold"`
	RollbackTimeoutMinutes int     `json:"rollbackTimeoutMinutes"`
}

type DisasterRecovery struct {
	Enabled    bool `json:"enabled"`
	RTOMinutes int  `json:"rtoMinutes"`
	RPOMinutes int  `json:"rpoMinutes"`
}

type DeploymentRecord struct {
	DeploymentID     string           `json:"deploymentId"`
	Timestamp        time.Time        `json:"timestamp"`
	TargetRegions    []string         `json:"targetRegions"`
	Strategy         Strategy         `json:"strategy"`
	Status           DeploymentStatus `json:"status"`
	RollbackConfig   RollbackConfig   `json:"rollbackConfig"`
	DisasterRecovery DisasterRecovery `json:"disasterRecovery"`
}

type PhaseOutcome string

const (
	PhaseSuccess PhaseOutcome = "SUCCESS"
	PhaseFailed  PhaseOutcome = "FAILED"
	PhaseSkipped PhaseOutcome = "SKIPPED"
)

// RolloutPhase is a batch of regions deployed and health-checked together.
// Phases are owned by their parent deployment and carry no identity of
// their own beyond (deploymentId, index).
type RolloutPhase struct {
	DeploymentID string       `json:"deploymentId"`
	Index        int          `json:"index"`
	Regions      []string     `json:"regions"`
	StartedAt    time.Time    `json:"startedAt"`
	HealthScore  float64      `json:"healthScore"`
	Outcome      PhaseOutcome `json:"outcome"`
}

// FailoverResult records the outcome of a disaster-recovery failover.
type FailoverResult struct {
	DeploymentID string    `json:"deploymentId"`
	TargetRegion string    `json:"targetRegion"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	RTOMet       bool      `json:"rtoMet"`
}
