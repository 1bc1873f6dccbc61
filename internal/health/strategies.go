package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// PingCheck probes an upstream through a ping function such as a Redis PING
// or a Qdrant health call
type PingCheck struct {
	name       string
	capability CapabilityType
	ping       func(ctx context.Context) error
	timeout    time.Duration
}

// NewPingCheck creates a probe that calls ping with its own timeout
func NewPingCheck(capability CapabilityType, name string, timeout time.Duration, ping func(ctx context.Context) error) *PingCheck {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingCheck{name: name, capability: capability, ping: ping, timeout: timeout}
}

func (p *PingCheck) Capability() CapabilityType { return p.capability }
func (p *PingCheck) Name() string               { return p.name }

func (p *PingCheck) Check(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.ping(ctx)
	return int(time.Since(start).Milliseconds()), err
}

// HTTPCheck probes an HTTP endpoint. Any response below 500 other than a quota
// rejection counts as reachable since most upstream root URLs need credentials.
type HTTPCheck struct {
	name       string
	capability CapabilityType
	url        string
	client     *http.Client
}

// NewHTTPCheck creates a connectivity probe for url
func NewHTTPCheck(capability CapabilityType, name, url string, timeout time.Duration) *HTTPCheck {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPCheck{
		name:       name,
		capability: capability,
		url:        url,
		client:     &http.Client{Timeout: timeout},
	}
}

func (h *HTTPCheck) Capability() CapabilityType { return h.capability }
func (h *HTTPCheck) Name() string               { return h.name }

func (h *HTTPCheck) Check(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", h.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return latency, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return latency, fmt.Errorf("rate limit: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return latency, fmt.Errorf("server error: status %d", resp.StatusCode)
	}
	return latency, nil
}
