// Package notify formats operator alerts and publishes them through the
// configured notification channels.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Urgency string

const (
	UrgencyInfo     Urgency = "INFO"
	UrgencyWarning  Urgency = "WARNING"
	UrgencyCritical Urgency = "CRITICAL"
)

// Alert is one operator notification.
type Alert struct {
	Urgency Urgency
	Subject string
	Body    string
	Fields  map[string]string
}

// Publisher sends a formatted alert to one channel.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, subject, message string) error
}

type Logger interface {
	Printf(string, ...any)
}

type Metrics interface {
	RecordAlertPublish(publisher string, err error)
}

// Gateway fans an alert out to every configured publisher with a bounded
// per-publisher timeout. Publish failures are logged and counted, never
// returned up the incident or rollout path.
type Gateway struct {
	publishers []Publisher
	log        Logger
	metrics    Metrics
	timeout    time.Duration
}

func NewGateway(log Logger, metrics Metrics, timeout time.Duration, publishers ...Publisher) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{publishers: publishers, log: log, metrics: metrics, timeout: timeout}
}

// Send formats and publishes the alert. The returned error is non-nil only
// when every publisher failed, so callers can treat it as advisory.
func (g *Gateway) Send(ctx context.Context, alert Alert) error {
	subject := formatSubject(alert)
	message := formatBody(alert)

	var failures int
	for _, p := range g.publishers {
		pubCtx, cancel := context.WithTimeout(ctx, g.timeout)
		err := p.Publish(pubCtx, subject, message)
		cancel()
		if g.metrics != nil {
			g.metrics.RecordAlertPublish(p.Name(), err)
		}
		if err != nil {
			failures++
			g.log.Printf("alert publish via %s failed: %v", p.Name(), err)
		}
	}
	if len(g.publishers) > 0 && failures == len(g.publishers) {
		return fmt.Errorf("all %d alert publishers failed", failures)
	}
	return nil
}

func formatSubject(alert Alert) string {
	return fmt.Sprintf("[%s] %s", alert.Urgency, alert.Subject)
}

func formatBody(alert Alert) string {
	var b strings.Builder
	b.WriteString(alert.Body)
	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %s", k, alert.Fields[k])
		}
	}
	return b.String()
}

// NoopPublisher logs alerts instead of delivering them. Used when no
// channel is configured.
type NoopPublisher struct {
	log Logger
}

func NewNoopPublisher(log Logger) *NoopPublisher {
	return &NoopPublisher{log: log}
}

func (p *NoopPublisher) Name() string { return "noop" }

func (p *NoopPublisher) Publish(_ context.Context, subject, message string) error {
	p.log.Printf("noop alert: %s", subject)
	return nil
}
