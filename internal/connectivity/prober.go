package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultProbeInterval is used when Prober.Interval is zero.
const DefaultProbeInterval = 15 * time.Second

// Prober is an event source that polls a health endpoint and feeds a Monitor.
// Any HTTP answer below 500 counts as online; transport errors and 5xx count
// as offline.
type Prober struct {
	URL      string
	Interval time.Duration
	Client   *http.Client
	Monitor  *Monitor
}

// Check performs one probe and updates the monitor. Returns the observed state.
func (p *Prober) Check(ctx context.Context) bool {
	online := p.probe(ctx) == nil
	p.Monitor.Set(online)
	return online
}

// Run probes immediately and then every Interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	p.Check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("probe request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("probe failed", "url", p.URL, "error", err)
		return fmt.Errorf("probe: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe: status %d", resp.StatusCode)
	}
	return nil
}
