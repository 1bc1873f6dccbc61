package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurantrec/internal/logging"
	"restaurantrec/internal/models"
)

// ErrProcessingFailed wraps every failure that prevents a chat reply
var ErrProcessingFailed = errors.New("failed to process chat message")

const (
	historyWindow  = 3
	maxSuggestions = 3
)

const systemPrompt = `You are a helpful restaurant recommendation assistant. Your role is to:
1. Help users find restaurants based on their preferences, location, and dietary needs
2. Provide detailed, personalized recommendations
3. Answer questions about restaurants, menus, reviews, and locations
4. Be conversational, friendly, and informative

When recommending restaurants:
- Consider the user's location, cuisine preferences, price range, and dietary restrictions
- Highlight key features like ratings, reviews, popular dishes, and ambiance
- Provide context from real reviews when available
- Suggest alternatives if the user's criteria are too restrictive
- Ask clarifying questions if the request is ambiguous

Format your responses in a natural, conversational way. When listing restaurants, be enthusiastic but honest about pros and cons.`

var defaultSuggestions = []string{
	"Tell me more about the first restaurant",
	"Any vegetarian-friendly options?",
	"Show me restaurants with outdoor seating",
}

// Retriever produces ranked candidates for a conversation turn
type Retriever interface {
	RetrieveRestaurants(ctx context.Context, conv *models.ConversationContext) ([]models.Restaurant, error)
}

// ChatService orchestrates a conversation turn: session bookkeeping,
// retrieval, grounded generation and follow-up suggestions
type ChatService struct {
	retriever Retriever
	generator Generator
	store     SessionStore
	locks     *keyedMutex
	prompt    string
}

// NewChatService creates a conversation orchestrator
func NewChatService(retriever Retriever, generator Generator, store SessionStore) *ChatService {
	return &ChatService{
		retriever: retriever,
		generator: generator,
		store:     store,
		locks:     newKeyedMutex(),
		prompt:    systemPrompt,
	}
}

// SystemPrompt returns the fixed instruction sent with every generation call
func (s *ChatService) SystemPrompt() string {
	return s.prompt
}

// ProcessMessage handles one user message. Turns on the same session are serialized.
func (s *ChatService) ProcessMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	start := time.Now()
	if m := GetMetrics(); m != nil {
		m.RecordChatRequest()
		defer func() { m.RecordChatLatency(time.Since(start).Seconds()) }()
	}

	resp, err := s.processMessage(ctx, req)
	if err != nil {
		if m := GetMetrics(); m != nil {
			m.RecordChatError(classifyChatError(err))
		}
		return nil, err
	}
	return resp, nil
}

func (s *ChatService) processMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	unlock := s.locks.Lock(sessionID)
	defer func() { unlock() }()

	session, found, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	if !found {
		if req.SessionID != "" {
			// Unknown IDs are never adopted; a fresh one is minted
			unlock()
			sessionID = uuid.New().String()
			unlock = s.locks.Lock(sessionID)
		}
		session = models.NewChatSession(sessionID, req.Preferences, req.Location)
		if err := s.store.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
		}
	}

	logger := logging.WithSession(sessionID)
	logger.Info("processing chat message", "new_session", !found, "history", len(session.Messages))

	session, err = s.store.Append(ctx, sessionID, models.NewMessage(models.RoleUser, req.Message))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	history := session.Messages[:len(session.Messages)-1]
	conv := &models.ConversationContext{
		Query:       req.Message,
		ChatHistory: history,
		Location:    req.Location,
		Preferences: req.Preferences,
	}
	if !conv.Location.HasAddress() && !conv.Location.HasCoordinates() {
		conv.Location = session.Location
	}
	if conv.Preferences.IsZero() {
		conv.Preferences = session.UserPreferences
	}

	restaurants, err := s.retriever.RetrieveRestaurants(ctx, conv)
	if err != nil {
		logger.Error("retrieval failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}
	conv.RetrievedContext = restaurants

	restaurantContext := BuildRestaurantContext(restaurants, req.Message)
	window := buildMessageWindow(history, restaurantContext+"\n\n"+req.Message)

	reply, err := s.generator.Generate(ctx, s.prompt, window)
	if err != nil {
		logger.Error("generation failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	if _, err := s.store.Append(ctx, sessionID, models.NewMessage(models.RoleAssistant, reply)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	if len(restaurants) > maxEnrichedResults {
		restaurants = restaurants[:maxEnrichedResults]
	}
	if restaurants == nil {
		restaurants = []models.Restaurant{}
	}

	log.Printf("💬 [CHAT] Session %s: replied with %d restaurants", sessionID, len(restaurants))

	return &models.ChatResponse{
		Message:     reply,
		SessionID:   sessionID,
		Restaurants: restaurants,
		Suggestions: GenerateSuggestions(req.Message, len(restaurants)),
		Metadata: models.ChatMetadata{
			TotalRestaurantsFound: len(restaurants),
			Location:              conv.Location,
		},
	}, nil
}

// buildMessageWindow keeps the last prior messages and appends the grounded prompt
func buildMessageWindow(history []models.Message, prompt string) []models.Message {
	start := len(history) - historyWindow
	if start < 0 {
		start = 0
	}
	window := make([]models.Message, 0, len(history)-start+1)
	window = append(window, history[start:]...)
	window = append(window, models.NewMessage(models.RoleUser, prompt))
	return window
}

// GenerateSuggestions maps the query to follow-up prompts. Cuisine and price
// rules fire independently; the defaults apply only when neither does.
func GenerateSuggestions(query string, resultCount int) []string {
	lower := strings.ToLower(query)
	var suggestions []string

	switch {
	case strings.Contains(lower, "italian") && resultCount > 0:
		suggestions = append(suggestions, "Show me Mediterranean restaurants nearby")
	case strings.Contains(lower, "sushi") || strings.Contains(lower, "japanese"):
		suggestions = append(suggestions, "Any good Korean restaurants?")
	}

	switch {
	case strings.Contains(lower, "cheap") || strings.Contains(lower, "affordable"):
		suggestions = append(suggestions, "What about mid-range options?")
	case strings.Contains(lower, "expensive") || strings.Contains(lower, "fine dining"):
		suggestions = append(suggestions, "Show me more affordable alternatives")
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, defaultSuggestions...)
	}
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// GetSession returns a copy of the session, or (nil, false, nil) when unknown
func (s *ChatService) GetSession(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	return s.store.Get(ctx, id)
}

// DeleteSession removes a session and reports whether it existed
func (s *ChatService) DeleteSession(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	return s.store.Delete(ctx, id)
}

func classifyChatError(err error) string {
	switch {
	case errors.Is(err, ErrVectorIndexUnavailable):
		return "vector_index"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		if _, ok := AsUpstreamError(err); ok {
			return "upstream"
		}
		return "processing"
	}
}
