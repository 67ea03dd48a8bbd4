package domain

import "time"

type ThreatLevel string

const (
	LevelCritical ThreatLevel = "CRITICAL"
	LevelHigh     ThreatLevel = "HIGH"
	LevelMedium   ThreatLevel = "MEDIUM"
	LevelLow      ThreatLevel = "LOW"
	LevelInfo     ThreatLevel = "INFO"
)

// Actionable reports whether events at this level open incidents.
func (l ThreatLevel) Actionable() bool {
	return l == LevelCritical || l == LevelHigh
}

// Threat type tags produced by the scanner's detectors. The set is open:
// events arriving over the API may carry tags the scanner never emits.
const (
	ThreatAnomalousCallVolume    = "ANOMALOUS_CALL_VOLUME"
	ThreatOffHoursActivity       = "OFF_HOURS_ACTIVITY"
	ThreatPrivilegeEscalation    = "PRIVILEGE_ESCALATION"
	ThreatBruteForceAttack       = "BRUTE_FORCE_ATTACK"
	ThreatDataExfiltration       = "DATA_EXFILTRATION"
	ThreatSuspiciousConfigChange = "SUSPICIOUS_CONFIG_CHANGE"
)

type ThreatEvent struct {
	ThreatID    string            `json:"threatId"`
	Timestamp   time.Time         `json:"timestamp"`
	Region      string            `json:"region"`
	Type        string            `json:"type"`
	ThreatLevel ThreatLevel       `json:"threatLevel"`
	Details     map[string]string `json:"details"`
}
