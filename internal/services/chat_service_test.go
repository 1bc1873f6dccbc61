package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"restaurantrec/internal/models"
)

type stubRetriever struct {
	mu      sync.Mutex
	results []models.Restaurant
	err     error
	convs   []*models.ConversationContext
}

func (s *stubRetriever) RetrieveRestaurants(_ context.Context, conv *models.ConversationContext) ([]models.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = append(s.convs, conv)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	windows [][]models.Message
}

func (s *stubGenerator) Generate(_ context.Context, systemPrompt string, messages []models.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, systemPrompt)
	window := make([]models.Message, len(messages))
	copy(window, messages)
	s.windows = append(s.windows, window)
	if s.err != nil {
		return "", s.err
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return fmt.Sprintf("reply %d", len(s.windows)), nil
}

func newTestChatService(retriever *stubRetriever, generator *stubGenerator) (*ChatService, *MemorySessionStore) {
	store := NewMemorySessionStore()
	return NewChatService(retriever, generator, store), store
}

func TestProcessMessage_NewSession(t *testing.T) {
	retriever := &stubRetriever{results: []models.Restaurant{restaurant("a", 4.5, 10)}}
	generator := &stubGenerator{reply: "Try A!"}
	svc, store := newTestChatService(retriever, generator)

	resp, err := svc.ProcessMessage(context.Background(), models.ChatRequest{Message: "italian food"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("a session id should be minted")
	}
	if resp.Message != "Try A!" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Metadata.TotalRestaurantsFound != 1 || len(resp.Restaurants) != 1 {
		t.Errorf("unexpected restaurants: %+v", resp.Metadata)
	}

	session, found, _ := store.Get(context.Background(), resp.SessionID)
	if !found {
		t.Fatal("session should be stored")
	}
	if len(session.Messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(session.Messages))
	}
	if session.Messages[0].Role != models.RoleUser || session.Messages[0].Content != "italian food" {
		t.Errorf("first message should be the raw user text, got %+v", session.Messages[0])
	}
	if session.Messages[1].Role != models.RoleAssistant || session.Messages[1].Content != "Try A!" {
		t.Errorf("second message should be the reply, got %+v", session.Messages[1])
	}
}

func TestProcessMessage_UnknownSessionIDIsReplaced(t *testing.T) {
	svc, store := newTestChatService(&stubRetriever{}, &stubGenerator{})

	resp, err := svc.ProcessMessage(context.Background(), models.ChatRequest{Message: "hi", SessionID: "made-up"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if resp.SessionID == "made-up" {
		t.Error("caller-chosen unknown ids must not be adopted")
	}
	if _, found, _ := store.Get(context.Background(), "made-up"); found {
		t.Error("no session should exist under the unknown id")
	}
}

func TestProcessMessage_ReusesSessionAndWindowsHistory(t *testing.T) {
	retriever := &stubRetriever{}
	generator := &stubGenerator{}
	svc, _ := newTestChatService(retriever, generator)
	ctx := context.Background()

	first, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: "turn 1"})
	if err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	for i := 2; i <= 4; i++ {
		resp, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: fmt.Sprintf("turn %d", i), SessionID: first.SessionID})
		if err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
		if resp.SessionID != first.SessionID {
			t.Fatalf("turn %d switched session", i)
		}
	}

	session, _, _ := svc.GetSession(ctx, first.SessionID)
	if len(session.Messages) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(session.Messages))
	}

	last := generator.windows[len(generator.windows)-1]
	if len(last) != historyWindow+1 {
		t.Fatalf("window should hold %d prior messages plus the prompt, got %d", historyWindow, len(last))
	}
	// Prior 6 messages: u1 a1 u2 a2 u3 a3; the window keeps a2 u3 a3
	if last[0].Content != "reply 2" || last[1].Content != "turn 3" || last[2].Content != "reply 3" {
		t.Errorf("unexpected window: %+v", last[:3])
	}
	if !strings.HasSuffix(last[3].Content, "\n\nturn 4") {
		t.Errorf("last message should end with the user text, got %q", last[3].Content)
	}

	conv := retriever.convs[len(retriever.convs)-1]
	if len(conv.ChatHistory) != 6 {
		t.Errorf("retrieval should see the full prior history, got %d", len(conv.ChatHistory))
	}
}

func TestProcessMessage_PromptFormat(t *testing.T) {
	retriever := &stubRetriever{results: []models.Restaurant{{
		ID: "zen", Name: "Sushi Zen", Rating: 4.5, ReviewCount: 120, Price: "$$",
		Categories: []models.Category{{Title: "Sushi Bars"}},
		Location:   &models.Location{Address1: "1 Main St", City: "San Francisco"},
	}}}
	generator := &stubGenerator{}
	svc, _ := newTestChatService(retriever, generator)

	if _, err := svc.ProcessMessage(context.Background(), models.ChatRequest{Message: "sushi please"}); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	if generator.prompts[0] != svc.SystemPrompt() {
		t.Error("the fixed system prompt should be sent")
	}
	window := generator.windows[0]
	if len(window) != 1 || window[0].Role != models.RoleUser {
		t.Fatalf("first turn should send a single user message, got %+v", window)
	}
	content := window[0].Content
	for _, want := range []string{
		"User Query: sushi please",
		"1. Sushi Zen",
		"Rating: 4.5 (120 reviews)",
		"Cuisine: Sushi Bars",
		"Location: 1 Main St, San Francisco",
		"Price: $$",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("prompt missing %q:\n%s", want, content)
		}
	}
}

func TestProcessMessage_FallsBackToSessionLocation(t *testing.T) {
	retriever := &stubRetriever{}
	svc, _ := newTestChatService(retriever, &stubGenerator{})
	ctx := context.Background()

	first, err := svc.ProcessMessage(ctx, models.ChatRequest{
		Message:     "hello",
		Location:    &models.UserLocation{Address: "Oakland, CA"},
		Preferences: &models.Preferences{Cuisine: "thai"},
	})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}
	if _, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: "more", SessionID: first.SessionID}); err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	conv := retriever.convs[1]
	if !conv.Location.HasAddress() || conv.Location.Address != "Oakland, CA" {
		t.Errorf("session location should be used, got %+v", conv.Location)
	}
	if conv.Preferences == nil || conv.Preferences.Cuisine != "thai" {
		t.Errorf("session preferences should be used, got %+v", conv.Preferences)
	}
}

func TestProcessMessage_Failures(t *testing.T) {
	ctx := context.Background()

	svc, store := newTestChatService(&stubRetriever{}, &stubGenerator{err: errors.New("model overloaded")})
	_, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: "hi"})
	if !errors.Is(err, ErrProcessingFailed) {
		t.Errorf("generation failure should wrap ErrProcessingFailed, got %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("session with the user message should remain, count=%d", n)
	}

	svc, _ = newTestChatService(&stubRetriever{err: ErrVectorIndexUnavailable}, &stubGenerator{})
	_, err = svc.ProcessMessage(ctx, models.ChatRequest{Message: "hi"})
	if !errors.Is(err, ErrProcessingFailed) || !errors.Is(err, ErrVectorIndexUnavailable) {
		t.Errorf("retrieval failure should keep its cause, got %v", err)
	}
}

func TestProcessMessage_ConcurrentTurnsSerialize(t *testing.T) {
	svc, _ := newTestChatService(&stubRetriever{}, &stubGenerator{})
	ctx := context.Background()

	first, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: "start"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc.ProcessMessage(ctx, models.ChatRequest{Message: fmt.Sprintf("m%d", i), SessionID: first.SessionID})
		}(i)
	}
	wg.Wait()

	session, _, _ := svc.GetSession(ctx, first.SessionID)
	if len(session.Messages) != 22 {
		t.Fatalf("expected 22 messages, got %d", len(session.Messages))
	}
	for i := 0; i < len(session.Messages); i += 2 {
		if session.Messages[i].Role != models.RoleUser || session.Messages[i+1].Role != models.RoleAssistant {
			t.Fatalf("turns interleaved at %d", i)
		}
	}
	if svc.locks.size() != 0 {
		t.Errorf("session locks should be released, %d left", svc.locks.size())
	}
}

func TestDeleteSession(t *testing.T) {
	svc, _ := newTestChatService(&stubRetriever{}, &stubGenerator{})
	ctx := context.Background()

	resp, err := svc.ProcessMessage(ctx, models.ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("ProcessMessage failed: %v", err)
	}

	deleted, err := svc.DeleteSession(ctx, resp.SessionID)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got %v %v", deleted, err)
	}
	if _, found, _ := svc.GetSession(ctx, resp.SessionID); found {
		t.Error("session should be gone")
	}
	if deleted, _ := svc.DeleteSession(ctx, resp.SessionID); deleted {
		t.Error("second delete should report false")
	}
}

func TestGenerateSuggestions(t *testing.T) {
	tests := []struct {
		query   string
		results int
		want    []string
	}{
		{"italian tonight", 3, []string{"Show me Mediterranean restaurants nearby"}},
		{"italian tonight", 0, defaultSuggestions},
		{"cheap sushi", 2, []string{"Any good Korean restaurants?", "What about mid-range options?"}},
		{"fine dining japanese", 1, []string{"Any good Korean restaurants?", "Show me more affordable alternatives"}},
		{"somewhere to eat", 5, defaultSuggestions},
	}

	for _, tt := range tests {
		got := GenerateSuggestions(tt.query, tt.results)
		if len(got) > maxSuggestions {
			t.Errorf("%q: more than %d suggestions", tt.query, maxSuggestions)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("GenerateSuggestions(%q, %d) = %v, want %v", tt.query, tt.results, got, tt.want)
		}
	}
}
