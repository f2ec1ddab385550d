// Package probe performs the single bounded health check of a monitor run.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/openmined/bridgemon/internal/state"
	"github.com/openmined/bridgemon/internal/version"
)

const (
	DefaultTimeout = 5 * time.Second

	// bodies beyond this are truncated before decoding
	maxBodySize = 1 << 20
)

var ErrNoURL = errors.New("probe: health url missing")

// Prober checks one health endpoint. It never retries.
type Prober struct {
	client  *req.Client
	url     string
	timeout time.Duration
}

func New(url string, timeout time.Duration) (*Prober, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := req.C().
		SetTimeout(timeout).
		SetUserAgent(version.UserAgent()).
		SetCommonHeader("Accept", "application/json").
		DisableAutoReadResponse().
		SetJsonUnmarshal(json.Unmarshal)

	return &Prober{
		client:  client,
		url:     url,
		timeout: timeout,
	}, nil
}

func (p *Prober) URL() string {
	return p.url
}

// Check performs one GET against the health URL, bounded by the timeout.
// Any failure is folded into the returned Observation.
func (p *Prober) Check(ctx context.Context) Observation {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	obs := p.check(ctx)
	obs.Latency = time.Since(start)

	return obs
}

func (p *Prober) check(ctx context.Context) Observation {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(p.url)
	if err != nil {
		return unreachable(fmt.Errorf("probe: GET %s: %w", p.url, err))
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		obs := unreachable(fmt.Errorf("probe: GET %s: unexpected status %s", p.url, resp.Status))
		obs.StatusCode = resp.StatusCode
		return obs
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		// the deadline can fire mid-body
		obs := unreachable(fmt.Errorf("probe: read body: %w", err))
		obs.StatusCode = resp.StatusCode
		return obs
	}

	slog.Debug("health response", "url", p.url, "status", resp.StatusCode, "size", humanize.Bytes(uint64(len(body))))

	obs := classify(body)
	obs.StatusCode = resp.StatusCode
	return obs
}

type healthBody struct {
	Status *string `json:"status"`
}

// classify maps a 2xx body to Healthy or Unhealthy. Anything that is not an
// object with a non-blank string status is Unhealthy("unknown"). The status is
// cleaned once here so the persisted record and the action event agree.
func classify(body []byte) Observation {
	var hb healthBody
	if err := json.Unmarshal(body, &hb); err != nil {
		obs := unhealthy(ReasonUnknown)
		obs.Err = fmt.Errorf("probe: decode body: %w", err)
		return obs
	}

	if hb.Status == nil {
		return unhealthy(ReasonUnknown)
	}

	status := state.CleanReason(*hb.Status)
	switch status {
	case "":
		return unhealthy(ReasonUnknown)
	case ReasonHealthy:
		return healthy()
	}
	return unhealthy(status)
}
