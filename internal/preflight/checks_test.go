package preflight

import (
	"context"
	"errors"
	"testing"

	"restaurantrec/internal/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubInitializer struct{ err error }

func (s stubInitializer) EnsureReady(context.Context) error { return s.err }

func validConfig() *config.Config {
	cfg := config.Default()
	cfg.YelpAPIKey = "y"
	cfg.GoogleMapsAPIKey = "g"
	cfg.OpenAIAPIKey = "o"
	return cfg
}

func findResult(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no %q check in results", name)
	return CheckResult{}
}

func TestRunAll_AllPass(t *testing.T) {
	c := NewChecker(validConfig(), stubPinger{}, stubInitializer{}, stubPinger{})
	results := c.RunAll(context.Background())

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != "pass" {
			t.Errorf("%s: status %s (%s)", r.Name, r.Status, r.Message)
		}
	}
	if HasFailures(results) {
		t.Error("no failures expected")
	}
}

func TestRunAll_InvalidConfigFails(t *testing.T) {
	cfg := validConfig()
	cfg.LLMProvider = "unknown"

	results := NewChecker(cfg, stubPinger{}, stubInitializer{}, nil).RunAll(context.Background())
	if r := findResult(t, results, "Configuration"); r.Status != "fail" || r.Error == nil {
		t.Errorf("invalid provider should fail, got %+v", r)
	}
	if !HasFailures(results) {
		t.Error("HasFailures should report the config failure")
	}
}

func TestRunAll_CacheFailureOnlyWarns(t *testing.T) {
	results := NewChecker(validConfig(), stubPinger{err: errors.New("refused")}, stubInitializer{}, nil).RunAll(context.Background())
	if r := findResult(t, results, "Cache"); r.Status != "warning" {
		t.Errorf("cache failure should warn, got %s", r.Status)
	}
	if HasFailures(results) {
		t.Error("cache failure should not abort startup")
	}

	results = NewChecker(validConfig(), nil, stubInitializer{}, nil).RunAll(context.Background())
	if r := findResult(t, results, "Cache"); r.Status != "warning" {
		t.Errorf("missing cache should warn, got %s", r.Status)
	}
}

func TestRunAll_VectorIndexFailureFails(t *testing.T) {
	results := NewChecker(validConfig(), stubPinger{}, stubInitializer{err: errors.New("unavailable")}, nil).RunAll(context.Background())
	if r := findResult(t, results, "Vector Index"); r.Status != "fail" {
		t.Errorf("vector index failure should fail, got %s", r.Status)
	}

	results = NewChecker(validConfig(), stubPinger{}, nil, nil).RunAll(context.Background())
	if !HasFailures(results) {
		t.Error("missing vector index should fail")
	}
}

func TestRunAll_SessionStore(t *testing.T) {
	results := NewChecker(validConfig(), stubPinger{}, stubInitializer{}, nil).RunAll(context.Background())
	if r := findResult(t, results, "Session Store"); r.Status != "pass" {
		t.Errorf("in-memory sessions should pass, got %s", r.Status)
	}

	results = NewChecker(validConfig(), stubPinger{}, stubInitializer{}, stubPinger{err: errors.New("no route")}).RunAll(context.Background())
	if r := findResult(t, results, "Session Store"); r.Status != "fail" {
		t.Errorf("unreachable session database should fail, got %s", r.Status)
	}
}

func TestCheckAPIKeys(t *testing.T) {
	cfg := config.Default()
	r := NewChecker(cfg, nil, nil, nil).checkAPIKeys()
	if r.Status != "warning" {
		t.Errorf("missing keys should warn, got %s", r.Status)
	}

	cfg = validConfig()
	cfg.LLMProvider = "anthropic"
	r = NewChecker(cfg, nil, nil, nil).checkAPIKeys()
	if r.Status != "warning" {
		t.Errorf("missing anthropic key should warn, got %s", r.Status)
	}
}

func TestHasFailures(t *testing.T) {
	tests := []struct {
		results []CheckResult
		want    bool
	}{
		{nil, false},
		{[]CheckResult{{Status: "pass"}, {Status: "warning"}}, false},
		{[]CheckResult{{Status: "pass"}, {Status: "fail"}}, true},
	}
	for _, tt := range tests {
		if got := HasFailures(tt.results); got != tt.want {
			t.Errorf("HasFailures(%v) = %v, want %v", tt.results, got, tt.want)
		}
	}
}
