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

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("unknown session should be absent without error, got found=%v err=%v", found, err)
	}

	lat, lng := 37.77, -122.41
	session := models.NewChatSession("s1", &models.Preferences{Cuisine: "thai"}, &models.UserLocation{Latitude: &lat, Longitude: &lng})
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, session); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate create should fail with ErrSessionExists, got %v", err)
	}

	updated, err := store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "hi"), models.NewMessage(models.RoleAssistant, "hello"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(updated.Messages))
	}
	if !updated.UpdatedAt.After(session.CreatedAt) && !updated.UpdatedAt.Equal(session.CreatedAt) {
		t.Error("updated_at should not move backwards")
	}

	if _, err := store.Append(ctx, "nope", models.NewMessage(models.RoleUser, "x")); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("append to unknown session should fail, got %v", err)
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	deleted, err := store.Delete(ctx, "s1")
	if err != nil || !deleted {
		t.Fatalf("delete should report true, got %v %v", deleted, err)
	}
	if deleted, _ := store.Delete(ctx, "s1"); deleted {
		t.Error("deleting an unknown session should report false")
	}
}

func TestMemorySessionStore_ReturnsCopies(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	lat := 1.0
	original := models.NewChatSession("s1", &models.Preferences{Cuisine: "thai"}, &models.UserLocation{Latitude: &lat})
	if err := store.Create(ctx, original); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	original.UserPreferences.Cuisine = "changed"
	*original.Location.Latitude = 99

	got, _, _ := store.Get(ctx, "s1")
	if got.UserPreferences.Cuisine != "thai" || *got.Location.Latitude != 1.0 {
		t.Error("store should not share state with the created session")
	}

	got.Messages = append(got.Messages, models.NewMessage(models.RoleUser, "sneaky"))
	got.UserPreferences.Cuisine = "mutated"

	again, _, _ := store.Get(ctx, "s1")
	if len(again.Messages) != 0 || again.UserPreferences.Cuisine != "thai" {
		t.Error("mutating a returned session should not affect the store")
	}
}

func TestMemorySessionStore_ConcurrentAppends(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	store.Create(ctx, models.NewChatSession("s1", nil, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "m"))
		}()
	}
	wg.Wait()

	session, _, _ := store.Get(ctx, "s1")
	if len(session.Messages) != 50 {
		t.Errorf("expected 50 messages, got %d", len(session.Messages))
	}
}

func TestKeyedMutex(t *testing.T) {
	locks := newKeyedMutex()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("same")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("same key should be held by one goroutine at a time, saw %d", maxActive)
	}
	if locks.size() != 0 {
		t.Errorf("entries should be released, %d left", locks.size())
	}
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different key should not block")
	}
}
