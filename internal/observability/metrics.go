package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics centralizes Prometheus instrumentation for the control plane.
type Metrics struct {
	registry *prometheus.Registry

	deploymentsStarted *prometheus.CounterVec
	deploymentStatus   *prometheus.GaugeVec
	phaseOutcomes      *prometheus.CounterVec
	phaseHealthScore   *prometheus.GaugeVec
	rollbacks          *prometheus.CounterVec
	failovers          *prometheus.CounterVec

	threatEvents *prometheus.CounterVec
	incidents    *prometheus.CounterVec
	responses    *prometheus.CounterVec
	slaBreaches  *prometheus.CounterVec

	alertPublishes *prometheus.CounterVec

	analyticsDuration *prometheus.HistogramVec
	scanDuration      *prometheus.HistogramVec
}

// NewMetrics builds a metrics container backed by the provided registry. If no
// registry is supplied, a new one is created.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{registry: reg}

	m.deploymentsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_deployments_started_total",
		Help: "Deployments started grouped by strategy",
	}, []string{"strategy"})
	m.deploymentStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bastion_deployment_status",
		Help: "Per-deployment status gauge (1 for the current status)",
	}, []string{"deployment_id", "status"})
	m.phaseOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_rollout_phases_total",
		Help: "Rollout phase outcomes grouped by strategy",
	}, []string{"strategy", "outcome"})
	m.phaseHealthScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bastion_phase_health_score",
		Help: "Most recent averaged phase health score per deployment",
	}, []string{"deployment_id"})
	m.rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_rollbacks_total",
		Help: "Rollbacks executed grouped by strategy",
	}, []string{"strategy"})
	m.failovers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_failovers_total",
		Help: "Disaster-recovery failovers grouped by target region and RTO result",
	}, []string{"target_region", "rto_met"})

	m.threatEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_threat_events_total",
		Help: "Threat events observed grouped by region, type, and level",
	}, []string{"region", "type", "level"})
	m.incidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_incidents_total",
		Help: "Incidents grouped by severity and transition",
	}, []string{"severity", "transition"})
	m.responses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_response_actions_total",
		Help: "Auto-response actions grouped by action and status",
	}, []string{"action", "status"})
	m.slaBreaches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_sla_breaches_total",
		Help: "Incident SLA breaches grouped by severity",
	}, []string{"severity"})

	m.alertPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_alert_publishes_total",
		Help: "Alert publishes grouped by publisher and result",
	}, []string{"publisher", "result"})

	m.analyticsDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bastion_analytics_run_seconds",
		Help:    "Durations of analytics runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "status"})
	m.scanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bastion_scan_cycle_seconds",
		Help:    "Durations of threat scan cycles",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	reg.MustRegister(
		m.deploymentsStarted, m.deploymentStatus, m.phaseOutcomes, m.phaseHealthScore,
		m.rollbacks, m.failovers,
		m.threatEvents, m.incidents, m.responses, m.slaBreaches,
		m.alertPublishes, m.analyticsDuration, m.scanDuration,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordDeploymentStarted(strategy string) {
	m.deploymentsStarted.WithLabelValues(strategy).Inc()
}

func (m *Metrics) SetDeploymentStatus(deploymentID, status string) {
	m.deploymentStatus.DeletePartialMatch(prometheus.Labels{"deployment_id": deploymentID})
	m.deploymentStatus.WithLabelValues(deploymentID, status).Set(1)
}

func (m *Metrics) RecordPhase(strategy, outcome string, deploymentID string, healthScore float64) {
	m.phaseOutcomes.WithLabelValues(strategy, outcome).Inc()
	m.phaseHealthScore.WithLabelValues(deploymentID).Set(healthScore)
}

func (m *Metrics) RecordRollback(strategy string) {
	m.rollbacks.WithLabelValues(strategy).Inc()
}

func (m *Metrics) RecordFailover(targetRegion string, rtoMet bool) {
	m.failovers.WithLabelValues(targetRegion, boolLabel(rtoMet)).Inc()
}

func (m *Metrics) RecordThreatEvent(region, threatType, level string) {
	m.threatEvents.WithLabelValues(region, threatType, level).Inc()
}

func (m *Metrics) RecordIncidentTransition(severity, transition string) {
	m.incidents.WithLabelValues(severity, transition).Inc()
}

func (m *Metrics) RecordResponseAction(action, status string) {
	m.responses.WithLabelValues(action, status).Inc()
}

func (m *Metrics) RecordSLABreach(severity string) {
	m.slaBreaches.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordAlertPublish(publisher string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.alertPublishes.WithLabelValues(publisher, result).Inc()
}

func (m *Metrics) ObserveAnalyticsRun(mode string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.analyticsDuration.WithLabelValues(mode, status).Observe(duration.Seconds())
}

func (m *Metrics) ObserveScanCycle(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.scanDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
