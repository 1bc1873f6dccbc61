package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"restaurantrec/internal/models"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("connection refused") }
func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestCache() *CacheService {
	return NewCacheService(NewMemoryCacheStore(time.Hour, time.Minute), time.Hour)
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	value := map[string]any{"lat": 37.77, "name": "Tartine"}
	if !c.Set(ctx, "geo:sf", value, 0) {
		t.Fatal("Set should succeed")
	}

	var got map[string]any
	if !c.Get(ctx, "geo:sf", &got) {
		t.Fatal("expected cache hit")
	}
	if got["name"] != "Tartine" || got["lat"] != 37.77 {
		t.Errorf("unexpected cached value: %v", got)
	}

	if !c.Exists(ctx, "geo:sf") {
		t.Error("Exists should report true for stored key")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "short", "value", 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	var got string
	if c.Get(ctx, "short", &got) {
		t.Errorf("expected miss after TTL, got %q", got)
	}
	if c.Exists(ctx, "short") {
		t.Error("expired key should not exist")
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	c.Set(ctx, "k", 1, 0)
	if !c.Delete(ctx, "k") {
		t.Fatal("Delete should succeed")
	}
	var got int
	if c.Get(ctx, "k", &got) {
		t.Error("deleted key should miss")
	}
}

func TestCache_NullIsMiss(t *testing.T) {
	store := NewMemoryCacheStore(time.Hour, time.Minute)
	c := NewCacheService(store, time.Hour)
	ctx := context.Background()

	store.Set(ctx, "null", []byte("null"), time.Minute)

	var got *string
	if c.Get(ctx, "null", &got) {
		t.Error("stored null should be treated as a miss")
	}
}

func TestCache_DisconnectedDegrades(t *testing.T) {
	ctx := context.Background()

	for name, c := range map[string]*CacheService{
		"nil store":     NewCacheService(nil, time.Hour),
		"failing store": NewCacheService(failingStore{}, time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			if c.Set(ctx, "k", "v", 0) {
				t.Error("Set should report false")
			}
			var got string
			if c.Get(ctx, "k", &got) {
				t.Error("Get should miss")
			}
			if c.Delete(ctx, "k") {
				t.Error("Delete should report false")
			}
			if c.Exists(ctx, "k") {
				t.Error("Exists should report false")
			}
		})
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	a := CacheKey("geo:", "geocode", []any{"SF"}, map[string]any{"b": 2, "a": 1})
	b := CacheKey("geo:", "geocode", []any{"SF"}, map[string]any{"a": 1, "b": 2})
	if a != b {
		t.Errorf("keyword order should not change key: %q vs %q", a, b)
	}

	c := CacheKey("geo:", "geocode", []any{"NYC"}, nil)
	if a == c {
		t.Error("different args should produce different keys")
	}

	d := CacheKey("geo:", "reverse", []any{"SF"}, map[string]any{"a": 1, "b": 2})
	if a == d {
		t.Error("different function names should produce different keys")
	}
}

func TestMemoize_CallsProducerOnce(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	var calls int32
	produce := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "San Francisco, CA", nil
	}

	for i := 0; i < 3; i++ {
		got, err := Memoize(ctx, c, "geo:sf", time.Minute, produce)
		if err != nil {
			t.Fatalf("Memoize returned error: %v", err)
		}
		if got != "San Francisco, CA" {
			t.Errorf("unexpected value %q", got)
		}
	}

	if calls != 1 {
		t.Errorf("expected producer to run once, ran %d times", calls)
	}
}

func TestMemoize_ConcurrentMissesShareProducer(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	produce := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := Memoize(ctx, c, "shared", time.Minute, produce); err != nil || v != 42 {
				t.Errorf("Memoize = %d, %v", v, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected a single producer call, got %d", calls)
	}
}

func TestMemoize_ErrorsNotCached(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	var calls int
	produce := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("upstream unavailable")
		}
		return "ok", nil
	}

	if _, err := Memoize(ctx, c, "flaky", time.Minute, produce); err == nil {
		t.Fatal("expected first call to fail")
	}
	got, err := Memoize(ctx, c, "flaky", time.Minute, produce)
	if err != nil || got != "ok" {
		t.Fatalf("second call = %q, %v", got, err)
	}
	if calls != 2 {
		t.Errorf("expected producer to run twice, ran %d times", calls)
	}
}

func TestMemoize_WithoutStoreCallsThrough(t *testing.T) {
	c := NewCacheService(nil, time.Hour)
	var calls int
	produce := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	Memoize(context.Background(), c, "k", time.Minute, produce)
	Memoize(context.Background(), c, "k", time.Minute, produce)

	if calls != 2 {
		t.Errorf("expected every call to reach the producer, got %d", calls)
	}
}

func TestMemoize_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := newTestCache()

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	var producerErr error
	produce := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		producerErr = ctx.Err()
		return 42, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := Memoize(ctxA, c, "geocode", time.Minute, produce)
		errA <- err
	}()
	<-started

	type outcome struct {
		v   int
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		v, err := Memoize(context.Background(), c, "geocode", time.Minute, produce)
		resB <- outcome{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller should see context.Canceled, got %v", err)
	}

	close(release)
	got := <-resB
	if got.err != nil || got.v != 42 {
		t.Fatalf("live caller = %d, %v, want 42", got.v, got.err)
	}
	if producerErr != nil {
		t.Errorf("shared producer should not inherit a caller's cancellation, got %v", producerErr)
	}
	if calls != 1 {
		t.Errorf("expected a single producer call, got %d", calls)
	}

	var cached int
	if !c.Get(context.Background(), "geocode", &cached) || cached != 42 {
		t.Error("result should be cached after the cancelled caller left")
	}
}

func TestMemoize_SharedCallersGetCopies(t *testing.T) {
	c := newTestCache()

	release := make(chan struct{})
	produce := func(context.Context) (*models.Restaurant, error) {
		<-release
		return &models.Restaurant{ID: "sushi-zen", Name: "Sushi Zen"}, nil
	}

	const callers = 4
	results := make([]*models.Restaurant, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := Memoize(context.Background(), c, "business", time.Minute, produce)
			if err != nil {
				t.Errorf("Memoize: %v", err)
				return
			}
			r.Reviews = []models.Review{{ID: string(rune('a' + i))}}
			results[i] = r
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, r := range results {
		if r == nil {
			t.Fatalf("caller %d got no result", i)
		}
		if r.Name != "Sushi Zen" {
			t.Errorf("caller %d got %+v", i, r)
		}
		if len(r.Reviews) != 1 || r.Reviews[0].ID != string(rune('a'+i)) {
			t.Errorf("caller %d sees another caller's reviews: %+v", i, r.Reviews)
		}
		for j := i + 1; j < callers; j++ {
			if results[j] == r {
				t.Errorf("callers %d and %d share one value", i, j)
			}
		}
	}
}
