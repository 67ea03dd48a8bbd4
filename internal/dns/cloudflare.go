package dns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cf "github.com/cloudflare/cloudflare-go"
)

// cloudflareAPI captures the subset of the Cloudflare client we use so it
// can be mocked in tests.
type cloudflareAPI interface {
	ListDNSRecords(ctx context.Context, rc *cf.ResourceContainer, params cf.ListDNSRecordsParams) ([]cf.DNSRecord, *cf.ResultInfo, error)
	UpdateDNSRecord(ctx context.Context, rc *cf.ResourceContainer, params cf.UpdateDNSRecordParams) (cf.DNSRecord, error)
}

// CloudflareProvider implements Provider by rewriting the domain's CNAME to
// the target region's origin endpoint ("<region>.origin.<domain>").
type CloudflareProvider struct {
	api    cloudflareAPI
	zoneID string
	log    Logger
}

func NewCloudflareProvider(apiToken, zoneID string, log Logger) (*CloudflareProvider, error) {
	if apiToken == "" {
		return nil, errors.New("cloudflare api token is required")
	}
	api, err := cf.NewWithAPIToken(apiToken)
	if err != nil {
		return nil, fmt.Errorf("init cloudflare client: %w", err)
	}
	return newCloudflareProvider(api, zoneID, log)
}

func newCloudflareProvider(api cloudflareAPI, zoneID string, log Logger) (*CloudflareProvider, error) {
	if zoneID == "" {
		return nil, errors.New("cloudflare zone id is required")
	}
	return &CloudflareProvider{api: api, zoneID: zoneID, log: log}, nil
}

func (p *CloudflareProvider) PointTo(ctx context.Context, domain, targetRegion string, _ []string) error {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return errors.New("domain is required")
	}

	rc := cf.ZoneIdentifier(p.zoneID)
	records, _, err := p.api.ListDNSRecords(ctx, rc, cf.ListDNSRecordsParams{Name: domain, Type: "CNAME"})
	if err != nil {
		return fmt.Errorf("list dns records for %s: %w", domain, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no CNAME record for %s", domain)
	}

	target := fmt.Sprintf("%s.origin.%s", targetRegion, domain)
	record := records[0]
	if record.Content == target {
		p.log.Printf("cloudflare record for %s already points at %s", domain, targetRegion)
		return nil
	}

	_, err = p.api.UpdateDNSRecord(ctx, rc, cf.UpdateDNSRecordParams{
		ID:      record.ID,
		Type:    record.Type,
		Name:    record.Name,
		Content: target,
		TTL:     record.TTL,
		Proxied: record.Proxied,
	})
	if err != nil {
		return fmt.Errorf("update dns record for %s: %w", domain, err)
	}
	return nil
}
