// Package dns steers traffic between regional endpoints during
// disaster-recovery failover.
package dns

import "context"

type Logger interface {
	Printf(string, ...any)
}

// Provider repoints a domain's traffic at a single target region. The
// regions slice lists every region with a record for the domain so
// implementations can zero out the rest.
type Provider interface {
	PointTo(ctx context.Context, domain, targetRegion string, regions []string) error
}

type NoopProvider struct {
	log Logger
}

func NewNoopProvider(log Logger) *NoopProvider {
	return &NoopProvider{log: log}
}

func (p *NoopProvider) PointTo(_ context.Context, domain, targetRegion string, _ []string) error {
	p.log.Printf("noop PointTo(%s, region=%s)", domain, targetRegion)
	return nil
}
