package domain

import "time"

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "OPEN"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentContained     IncidentStatus = "CONTAINED"
	IncidentResolved      IncidentStatus = "RESOLVED"
	IncidentClosed        IncidentStatus = "CLOSED"
	IncidentEscalated     IncidentStatus = "ESCALATED"
)

type ActionStatus string

const (
	ActionCompleted ActionStatus = "COMPLETED"
	ActionFailed    ActionStatus = "FAILED"
)

// ResponseAction is one automated containment step taken for an incident.
type ResponseAction struct {
	Action    string       `json:"action"`
	Target    string       `json:"target"`
	Status    ActionStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Details   string       `json:"details,omitempty"`
}

type Incident struct {
	IncidentID      string           `json:"incidentId"`
	Timestamp       time.Time        `json:"timestamp"`
	Status          IncidentStatus   `json:"status"`
	Severity        ThreatLevel      `json:"severity"`
	Type            string           `json:"type"`
	Region          string           `json:"region"`
	RelatedEvents   []string         `json:"relatedEvents"`
	AssignedTo      string           `json:"assignedTo"`
	SLADeadline     time.Time        `json:"slaDeadline"`
	ResponseActions []ResponseAction `json:"responseActions"`
	ResolvedAt      *time.Time       `json:"resolvedAt,omitempty"`
	Resolution      string           `json:"resolution,omitempty"`
}

// HasEvent reports whether threatID is already attached to the incident.
func (i *Incident) HasEvent(threatID string) bool {
	for _, id := range i.RelatedEvents {
		if id == threatID {
			return true
		}
	}
	return false
}
