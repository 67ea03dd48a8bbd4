// Package probe issues health checks against deployed regions and maps
// the results to a score in [0,100].
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Logger interface {
	Printf(string, ...any)
}

// Probe reports the health of a region as a score in [0,100].
type Probe interface {
	Check(ctx context.Context, region string) (float64, error)
}

type Config struct {
	// EndpointTemplate is expanded with the region id, e.g.
	// "https://%s.app.example.com/healthz".
	EndpointTemplate string
	Timeout          time.Duration
}

// HTTPProbe checks a per-region health endpoint. Responses may carry an
// optional JSON body {"score": n}; otherwise the status code decides.
type HTTPProbe struct {
	client *http.Client
	cfg    Config
	log    Logger
}

func NewHTTPProbe(cfg Config, log Logger) *HTTPProbe {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
		log:    log,
	}
}

func (p *HTTPProbe) Check(ctx context.Context, region string) (float64, error) {
	url := fmt.Sprintf(p.cfg.EndpointTemplate, region)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request for %s: %w", region, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", region, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 500:
		return 0, nil
	case resp.StatusCode >= 400:
		return 25, nil
	}

	return scoreFromBody(resp.Body), nil
}

func scoreFromBody(body io.Reader) float64 {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		return 100
	}
	var parsed struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Score == nil {
		return 100
	}
	score := *parsed.Score
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
