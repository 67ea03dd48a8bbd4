package rollout

import (
	"time"

	"bastion/internal/domain"
)

// partition groups the ordered target regions into rollout phases.
//
// BLUE_GREEN deploys everything at once behind the inactive color, so one
// phase carries all regions. CANARY isolates the first region as the canary
// and widens to the remainder. ROLLING walks the regions one at a time in
// the caller's order.
func partition(strategy domain.Strategy, targetRegions []string) [][]string {
	switch strategy {
	case domain.StrategyCanary:
		if len(targetRegions) <= 1 {
			return [][]string{targetRegions}
		}
		return [][]string{targetRegions[:1], targetRegions[1:]}
	case domain.StrategyRolling:
		phases := make([][]string, 0, len(targetRegions))
		for _, region := range targetRegions {
			phases = append(phases, []string{region})
		}
		return phases
	default:
		return [][]string{targetRegions}
	}
}

// phaseDelay returns the inter-phase wait for a strategy. The canary bake
// window is deliberately shorter so a healthy canary widens quickly.
func (o *Orchestrator) phaseDelay(strategy domain.Strategy) time.Duration {
	if strategy == domain.StrategyCanary {
		return o.cfg.CanaryDelay
	}
	return o.cfg.InterPhaseDelay
}
