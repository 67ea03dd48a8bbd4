package incident

import (
	"context"
	"encoding/json"
	"fmt"

	"bastion/internal/domain"
	"bastion/internal/substrate"
)

// Outcome describes what a responder did (or tried to do).
type Outcome struct {
	Action  string
	Target  string
	Details string
}

// Responder executes one containment action for a threat event.
type Responder func(ctx context.Context, ev domain.ThreatEvent) (Outcome, error)

// Containment handler ids on the execution substrate.
const (
	handlerBlockSourceIP      = "block-source-ip"
	handlerSuspendUser        = "suspend-user"
	handlerBlockDataAccess    = "block-data-access"
	handlerRevertConfig       = "revert-config"
	handlerEnhancedMonitoring = "enable-enhanced-monitoring"
)

// DefaultResponders builds the threat-type dispatch table. The table is
// resolved once at startup; unknown types fall through to
// GenericResponder.
func DefaultResponders(inv substrate.Invoker) map[string]Responder {
	return map[string]Responder{
		domain.ThreatBruteForceAttack:       invokeResponder(inv, handlerBlockSourceIP, "sourceIp"),
		domain.ThreatPrivilegeEscalation:    invokeResponder(inv, handlerSuspendUser, "user"),
		domain.ThreatDataExfiltration:       invokeResponder(inv, handlerBlockDataAccess, "resource"),
		domain.ThreatSuspiciousConfigChange: invokeResponder(inv, handlerRevertConfig, "configItem"),
	}
}

// GenericResponder enables enhanced monitoring for the affected region.
func GenericResponder(inv substrate.Invoker) Responder {
	return invokeResponder(inv, handlerEnhancedMonitoring, "")
}

// invokeResponder runs the named handler with the threat's target. The
// target comes from the event detail under targetKey, falling back to the
// region.
func invokeResponder(inv substrate.Invoker, handlerID, targetKey string) Responder {
	return func(ctx context.Context, ev domain.ThreatEvent) (Outcome, error) {
		target := ev.Region
		if targetKey != "" {
			if v, ok := ev.Details[targetKey]; ok && v != "" {
				target = v
			}
		}
		out := Outcome{Action: handlerID, Target: target}

		payload, err := json.Marshal(map[string]string{
			"threatId": ev.ThreatID,
			"region":   ev.Region,
			"target":   target,
		})
		if err != nil {
			return out, fmt.Errorf("marshal %s payload: %w", handlerID, err)
		}
		result, err := inv.InvokeNow(ctx, handlerID, payload)
		if err != nil {
			return out, fmt.Errorf("%s for %s: %w", handlerID, target, err)
		}
		out.Details = string(result)
		return out, nil
	}
}
