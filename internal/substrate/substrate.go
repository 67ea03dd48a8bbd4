// Package substrate abstracts the managed compute layer that runs
// short-lived handlers: region deploys, rollbacks, and remediation actions.
package substrate

import (
	"context"
	"fmt"
)

// Invoker runs a handler immediately and returns its raw result payload.
type Invoker interface {
	InvokeNow(ctx context.Context, handlerID string, payload []byte) ([]byte, error)
}

// Scheduler arranges recurring handler invocations.
type Scheduler interface {
	InvokeOnSchedule(ctx context.Context, handlerID string, intervalMinutes int) error
	InvokeOnCron(ctx context.Context, handlerID string, cronExpr string) error
}

type Logger interface {
	Printf(string, ...any)
}

// TransientError marks a substrate call that failed for a retryable reason
// (timeout, throttling, unavailability). Callers retry these with backoff
// before treating the call as failed.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NoopInvoker accepts every invocation and returns an empty payload. Used
// when no substrate is configured (local development, tests).
type NoopInvoker struct {
	log Logger
}

func NewNoopInvoker(log Logger) *NoopInvoker {
	return &NoopInvoker{log: log}
}

func (n *NoopInvoker) InvokeNow(_ context.Context, handlerID string, _ []byte) ([]byte, error) {
	n.log.Printf("noop InvokeNow(%s)", handlerID)
	return nil, nil
}

// NoopScheduler logs schedule registrations without creating them.
type NoopScheduler struct {
	log Logger
}

func NewNoopScheduler(log Logger) *NoopScheduler {
	return &NoopScheduler{log: log}
}

func (n *NoopScheduler) InvokeOnSchedule(_ context.Context, handlerID string, intervalMinutes int) error {
	n.log.Printf("noop InvokeOnSchedule(%s, %dm)", handlerID, intervalMinutes)
	return nil
}

func (n *NoopScheduler) InvokeOnCron(_ context.Context, handlerID, cronExpr string) error {
	n.log.Printf("noop InvokeOnCron(%s, %q)", handlerID, cronExpr)
	return nil
}
