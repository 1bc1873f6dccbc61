package models

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversational turn. Messages are never mutated after creation.
type Message struct {
	Role      string         `json:"role" bson:"role"`
	Content   string         `json:"content" bson:"content"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewMessage creates a message stamped with the current UTC time
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Preferences are explicit caller-supplied search preferences
type Preferences struct {
	Cuisine    string `json:"cuisine,omitempty" bson:"cuisine,omitempty"`
	PriceRange string `json:"price_range,omitempty" bson:"price_range,omitempty"`
	Dietary    string `json:"dietary,omitempty" bson:"dietary,omitempty"`
}

// IsZero reports whether no preference is set
func (p *Preferences) IsZero() bool {
	return p == nil || (p.Cuisine == "" && p.PriceRange == "" && p.Dietary == "")
}

// UserLocation is either a free-text address or a coordinate pair
type UserLocation struct {
	Latitude  *float64 `json:"latitude,omitempty" bson:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty" bson:"longitude,omitempty"`
	Address   string   `json:"address,omitempty" bson:"address,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set
func (l *UserLocation) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// HasAddress reports whether a free-text address is set
func (l *UserLocation) HasAddress() bool {
	return l != nil && l.Address != ""
}

// ChatSession is a conversation thread owned by the session store
type ChatSession struct {
	SessionID       string        `json:"session_id" bson:"_id"`
	Messages        []Message     `json:"messages" bson:"messages"`
	UserPreferences *Preferences  `json:"user_preferences,omitempty" bson:"user_preferences,omitempty"`
	Location        *UserLocation `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

// NewChatSession creates an empty session seeded with preferences and location
func NewChatSession(sessionID string, preferences *Preferences, location *UserLocation) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		SessionID:       sessionID,
		Messages:        []Message{},
		UserPreferences: preferences,
		Location:        location,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a copy that shares no slices or pointers with the receiver
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.UserPreferences != nil {
		p := *s.UserPreferences
		out.UserPreferences = &p
	}
	if s.Location != nil {
		l := *s.Location
		if s.Location.Latitude != nil {
			lat := *s.Location.Latitude
			l.Latitude = &lat
		}
		if s.Location.Longitude != nil {
			lng := *s.Location.Longitude
			l.Longitude = &lng
		}
		out.Location = &l
	}
	return &out
}

// ConversationContext is built per request and handed to retrieval
type ConversationContext struct {
	Query            string
	ChatHistory      []Message
	Location         *UserLocation
	Preferences      *Preferences
	RetrievedContext []Restaurant
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message     string        `json:"message"`
	SessionID   string        `json:"session_id,omitempty"`
	Location    *UserLocation `json:"location,omitempty"`
	Preferences *Preferences  `json:"preferences,omitempty"`
}

// ChatMetadata describes how a reply was produced
type ChatMetadata struct {
	TotalRestaurantsFound int           `json:"total_restaurants_found"`
	Location              *UserLocation `json:"location"`
}

// ChatResponse is the composed reply of a processed message
type ChatResponse struct {
	Message     string       `json:"message"`
	SessionID   string       `json:"session_id"`
	Restaurants []Restaurant `json:"restaurants"`
	Suggestions []string     `json:"suggestions"`
	Metadata    ChatMetadata `json:"metadata"`
}
