package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UpstreamError is a non-2xx response from an external API
type UpstreamError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Upstream, e.StatusCode, e.Body)
}

// IsRateLimited reports whether the upstream rejected the call for quota reasons
func (e *UpstreamError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports a 404 from the upstream
func (e *UpstreamError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsUpstreamError unwraps err into an *UpstreamError when possible
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr, true
	}
	return nil, false
}

const maxErrorBody = 2048

// doJSON sends req and decodes a JSON response into out. Non-2xx responses
// become *UpstreamError; the call latency is recorded under upstream.
func doJSON(ctx context.Context, client *http.Client, req *http.Request, upstream string, out any) error {
	start := time.Now()
	err := doJSONRequest(ctx, client, req, upstream, out)
	recordUpstream(upstream, time.Since(start).Seconds(), err)
	return err
}

func doJSONRequest(ctx context.Context, client *http.Client, req *http.Request, upstream string, out any) error {
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", upstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UpstreamError{Upstream: upstream, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", upstream, err)
	}
	return nil
}
