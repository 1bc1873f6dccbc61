package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"restaurantrec/internal/models"
)

type fakeChatServer struct {
	mu       sync.Mutex
	requests []models.ChatRequest
	deleted  []string
}

func (f *fakeChatServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		if req.Message == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Failed to process chat request"})
			return
		}
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = "session-1"
		}
		json.NewEncoder(w).Encode(models.ChatResponse{
			Message:   "Try Sushi Zen",
			SessionID: sessionID,
			Restaurants: []models.Restaurant{{
				ID: "sushi-zen", Name: "Sushi Zen", Rating: 4.5, ReviewCount: 120, Price: "$$",
				Categories: []models.Category{{Title: "Sushi Bars"}},
			}},
			Suggestions: []string{"Show me vegetarian options"},
		})
	})
	mux.HandleFunc("DELETE /api/v1/chat/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"message": "Session cleared successfully"})
	})
	return mux
}

func TestChatLoop(t *testing.T) {
	fake := &fakeChatServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := newAPIClient(srv.URL+"/", 5*time.Second)
	in := strings.NewReader("sushi please\n\nmore options\nfail\n/reset\nagain\nexit\nnever sent\n")
	var out bytes.Buffer

	if err := chatLoop(context.Background(), client, in, &out); err != nil {
		t.Fatalf("chatLoop failed: %v", err)
	}

	if len(fake.requests) != 4 {
		t.Fatalf("expected 4 chat requests, got %d", len(fake.requests))
	}
	if fake.requests[0].SessionID != "" {
		t.Errorf("first message should start a session, got %q", fake.requests[0].SessionID)
	}
	if fake.requests[1].SessionID != "session-1" {
		t.Errorf("follow-up should reuse the session, got %q", fake.requests[1].SessionID)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "session-1" {
		t.Errorf("/reset should clear the session, got %v", fake.deleted)
	}
	if fake.requests[3].SessionID != "" {
		t.Errorf("message after /reset should start a new session, got %q", fake.requests[3].SessionID)
	}

	output := out.String()
	for _, want := range []string{"Try Sushi Zen", "Sushi Zen", "Sushi Bars", "Failed to process chat request"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestAPIClient_ErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL, time.Second).Chat(context.Background(), models.ChatRequest{Message: "hi"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestFormatRestaurantLine(t *testing.T) {
	line := formatRestaurantLine(models.Restaurant{
		Rating: 4.5, ReviewCount: 12, Price: "$$",
		Categories: []models.Category{{Title: "Thai"}, {Title: "Noodles"}},
	})
	if line != "4.5★ (12 reviews) · $$ · Thai, Noodles" {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestReadRestaurantsFile(t *testing.T) {
	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "array.json")
	os.WriteFile(arrayPath, []byte(`[{"id":"a","name":"A"},{"id":"b","name":"B","categories":["Thai"]}]`), 0o644)

	restaurants, err := readRestaurantsFile(arrayPath)
	if err != nil {
		t.Fatalf("read array: %v", err)
	}
	if len(restaurants) != 2 || restaurants[1].Categories[0].Title != "Thai" {
		t.Errorf("unexpected restaurants: %+v", restaurants)
	}

	responsePath := filepath.Join(dir, "response.json")
	os.WriteFile(responsePath, []byte(`  {"businesses":[{"id":"c","name":"C"}],"total":1}`), 0o644)

	restaurants, err = readRestaurantsFile(responsePath)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(restaurants) != 1 || restaurants[0].ID != "c" {
		t.Errorf("unexpected restaurants: %+v", restaurants)
	}

	badPath := filepath.Join(dir, "bad.json")
	os.WriteFile(badPath, []byte(`{not json`), 0o644)
	if _, err := readRestaurantsFile(badPath); err == nil {
		t.Error("expected decode error")
	}
}
