package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"restaurantrec/internal/config"
	"restaurantrec/internal/models"
)

// Generator produces an assistant reply from a system prompt and a message window
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error)
}

// GenerationOptions are the sampling settings shared by every provider
type GenerationOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewGenerator builds the generator selected by configuration
func NewGenerator(cfg *config.Config) (Generator, error) {
	opts := GenerationOptions{
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}

	switch cfg.LLMProvider {
	case "openai", "":
		return NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, opts, cfg.LLMTimeout), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, opts, cfg.LLMTimeout), nil
	case "ollama":
		return NewOllamaGenerator(cfg.OllamaHost, opts, cfg.LLMTimeout)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint
type OpenAIGenerator struct {
	baseURL    string
	apiKey     string
	opts       GenerationOptions
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator for an OpenAI-compatible API
func NewOpenAIGenerator(baseURL, apiKey string, opts GenerationOptions, timeout time.Duration) *OpenAIGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error) {
	formatted := make([]map[string]interface{}, 0, len(messages)+1)
	if systemPrompt != "" {
		formatted = append(formatted, map[string]interface{}{"role": "system", "content": systemPrompt})
	}
	for _, msg := range messages {
		formatted = append(formatted, map[string]interface{}{"role": msg.Role, "content": msg.Content})
	}

	reqBody := map[string]interface{}{
		"model":       g.opts.Model,
		"messages":    formatted,
		"temperature": g.opts.Temperature,
		"max_tokens":  g.opts.MaxTokens,
		"stream":      false,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := doJSON(ctx, g.httpClient, req, "openai", &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := result.Choices[0].Message.Content
	log.Printf("📡 [LLM] OpenAI completion: %d chars", len(content))
	return content, nil
}

// AnthropicGenerator calls the Anthropic messages API
type AnthropicGenerator struct {
	baseURL    string
	apiKey     string
	opts       GenerationOptions
	httpClient *http.Client
}

const anthropicVersion = "2023-06-01"

// NewAnthropicGenerator creates a generator for the Anthropic API
func NewAnthropicGenerator(baseURL, apiKey string, opts GenerationOptions, timeout time.Duration) *AnthropicGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicGenerator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *AnthropicGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error) {
	// The system prompt is a top-level field; system messages are not allowed in the list
	formatted := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		formatted = append(formatted, map[string]interface{}{"role": msg.Role, "content": msg.Content})
	}

	reqBody := map[string]interface{}{
		"model":       g.opts.Model,
		"system":      systemPrompt,
		"messages":    formatted,
		"temperature": g.opts.Temperature,
		"max_tokens":  g.opts.MaxTokens,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/messages", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := doJSON(ctx, g.httpClient, req, "anthropic", &result); err != nil {
		return "", err
	}

	for _, block := range result.Content {
		if block.Type == "text" || block.Type == "" {
			log.Printf("📡 [LLM] Anthropic completion: %d chars", len(block.Text))
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// OllamaGenerator uses a local Ollama server for chat
type OllamaGenerator struct {
	client *api.Client
	opts   GenerationOptions
}

// NewOllamaGenerator creates a generator backed by Ollama
func NewOllamaGenerator(host string, opts GenerationOptions, timeout time.Duration) (*OllamaGenerator, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaGenerator{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		opts:   opts,
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error) {
	chat := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		chat = append(chat, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		chat = append(chat, api.Message{Role: msg.Role, Content: msg.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    g.opts.Model,
		Messages: chat,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": g.opts.Temperature,
			"num_predict": g.opts.MaxTokens,
		},
	}

	var out strings.Builder
	start := time.Now()
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	recordUpstream("ollama", time.Since(start).Seconds(), err)
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	log.Printf("📡 [LLM] Ollama completion: %d chars", out.Len())
	return out.String(), nil
}

const (
	maxContextRestaurants = 10
	maxContextReviews     = 2
	reviewExcerptLength   = 150
)

// BuildRestaurantContext renders the retrieved restaurants as the grounding block sent to the model
func BuildRestaurantContext(restaurants []models.Restaurant, query string) string {
	var b strings.Builder
	b.WriteString("User Query: " + query)
	b.WriteString("\nTop Restaurant Recommendations:\n")

	for i, r := range restaurants {
		if i >= maxContextRestaurants {
			break
		}

		name := r.Name
		if name == "" {
			name = "Unknown"
		}
		rating := "N/A"
		if r.Rating > 0 {
			rating = fmt.Sprintf("%g", r.Rating)
		}
		price := r.Price
		if price == "" {
			price = "N/A"
		}
		var address, city string
		if r.Location != nil {
			address, city = r.Location.Address1, r.Location.City
		}

		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   Rating: %s (%d reviews)\n", rating, r.ReviewCount)
		fmt.Fprintf(&b, "   Price: %s\n", price)
		fmt.Fprintf(&b, "   Cuisine: %s\n", strings.Join(r.CategoryTitles(), ", "))
		fmt.Fprintf(&b, "   Location: %s, %s\n", address, city)

		if len(r.Reviews) > 0 {
			b.WriteString("   Recent Reviews:\n")
			for j, review := range r.Reviews {
				if j >= maxContextReviews {
					break
				}
				fmt.Fprintf(&b, "   - %s...\n", truncateRunes(review.Text, reviewExcerptLength))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
