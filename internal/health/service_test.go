package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestService_FailureThreshold(t *testing.T) {
	svc := NewService(2, time.Minute)
	svc.Register(CapabilitySearch, "yelp")

	svc.MarkUnhealthy(CapabilitySearch, "yelp", "connection reset", 0)
	if svc.Overall() != "healthy" {
		t.Error("one failure below threshold should not degrade")
	}

	svc.MarkUnhealthy(CapabilitySearch, "yelp", "connection reset", 0)
	if svc.Overall() != "degraded" {
		t.Error("reaching the threshold should degrade")
	}

	svc.MarkHealthy(CapabilitySearch, "yelp")
	all := svc.GetAll()
	if len(all) != 1 || all[0].Status != StatusHealthy || all[0].FailureCount != 0 {
		t.Errorf("MarkHealthy should reset state, got %+v", all)
	}
}

func TestService_QuotaErrorCooldown(t *testing.T) {
	svc := NewService(3, time.Minute)
	svc.Register(CapabilitySearch, "yelp")

	svc.MarkUnhealthy(CapabilitySearch, "yelp", "too many requests", http.StatusTooManyRequests)

	if !svc.IsInCooldown(CapabilitySearch, "yelp") {
		t.Fatal("429 should put the upstream into cooldown")
	}
	if svc.IsAvailable(CapabilitySearch, "yelp") {
		t.Error("upstream in cooldown should not be available")
	}

	svc.SetCooldown(CapabilitySearch, "yelp", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if !svc.IsAvailable(CapabilitySearch, "yelp") {
		t.Error("expired cooldown should make the upstream available again")
	}
}

func TestService_UnknownUpstreamAvailable(t *testing.T) {
	svc := NewService(0, 0)
	if !svc.IsAvailable(CapabilityGeocode, "google") {
		t.Error("unregistered upstreams should be assumed available")
	}

	var nilSvc *Service
	if !nilSvc.IsAvailable(CapabilityGeocode, "google") {
		t.Error("nil service should report available")
	}
	nilSvc.MarkUnhealthy(CapabilityGeocode, "google", "boom", 500)
}

func TestService_CheckAll(t *testing.T) {
	svc := NewService(1, time.Minute)
	svc.RegisterStrategy(NewPingCheck(CapabilityCache, "redis", time.Second, func(context.Context) error { return nil }))
	svc.RegisterStrategy(NewPingCheck(CapabilityVector, "qdrant", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	}))

	failures := svc.CheckAll(context.Background())
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if _, ok := failures["vector:qdrant"]; !ok {
		t.Errorf("expected vector:qdrant to fail, got %v", failures)
	}

	status := svc.GetStatus()
	if status["total"] != 2 {
		t.Errorf("expected 2 registered upstreams, got %v", status["total"])
	}
	if svc.Overall() != "degraded" {
		t.Error("failing probe should degrade overall status")
	}
}

func TestHTTPCheck(t *testing.T) {
	code := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	defer srv.Close()

	check := NewHTTPCheck(CapabilityGeneration, "openai", srv.URL, time.Second)
	if _, err := check.Check(context.Background()); err != nil {
		t.Errorf("401 should count as reachable, got %v", err)
	}

	code = http.StatusBadGateway
	if _, err := check.Check(context.Background()); err == nil {
		t.Error("502 should fail the probe")
	}

	code = http.StatusTooManyRequests
	_, err := check.Check(context.Background())
	if err == nil || !IsQuotaError(0, err.Error()) {
		t.Errorf("429 should produce a quota error, got %v", err)
	}
}

func TestParseCooldownDuration(t *testing.T) {
	tests := []struct {
		code int
		body string
		want time.Duration
	}{
		{http.StatusTooManyRequests, "", 5 * time.Minute},
		{http.StatusForbidden, "daily limit reached", 24 * time.Hour},
		{http.StatusBadRequest, "something else", time.Hour},
		{http.StatusTooManyRequests, `{"error":{"code":"TOO_MANY_REQUESTS_PER_SECOND"}}`, time.Minute},
		{http.StatusTooManyRequests, `{"error":{"code":"ACCESS_LIMIT_REACHED"}}`, 24 * time.Hour},
		{http.StatusOK, `{"status":"OVER_QUERY_LIMIT"}`, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := ParseCooldownDuration(tt.code, tt.body); got != tt.want {
			t.Errorf("ParseCooldownDuration(%d, %q) = %v, want %v", tt.code, tt.body, got, tt.want)
		}
	}
}

func TestIsQuotaError(t *testing.T) {
	tests := []struct {
		code int
		body string
		want bool
	}{
		{http.StatusTooManyRequests, "", true},
		{http.StatusOK, `{"status":"OVER_QUERY_LIMIT"}`, true},
		{http.StatusForbidden, `{"error":{"code":"ACCESS_LIMIT_REACHED"}}`, true},
		{http.StatusBadRequest, "Quota exceeded for project", true},
		{http.StatusInternalServerError, "upstream timeout", false},
		{http.StatusNotFound, "", false},
	}
	for _, tt := range tests {
		if got := IsQuotaError(tt.code, tt.body); got != tt.want {
			t.Errorf("IsQuotaError(%d, %q) = %v, want %v", tt.code, tt.body, got, tt.want)
		}
	}
}
