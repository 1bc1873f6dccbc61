package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"restaurantrec/internal/models"
)

// ErrSessionNotFound is returned when appending to a session that does not exist
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when creating a session whose ID is taken
var ErrSessionExists = errors.New("session already exists")

// SessionStore owns chat sessions. Every operation is atomic and returned
// sessions are copies the caller may keep.
type SessionStore interface {
	// Get returns (nil, false, nil) when the session does not exist
	Get(ctx context.Context, id string) (*models.ChatSession, bool, error)
	Create(ctx context.Context, session *models.ChatSession) error
	Append(ctx context.Context, id string, messages ...models.Message) (*models.ChatSession, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// MemorySessionStore keeps sessions in process memory behind a single lock
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

// NewMemorySessionStore creates an empty in-memory store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*models.ChatSession)}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.ChatSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	return session.Clone(), true, nil
}

func (s *MemorySessionStore) Create(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return ErrSessionExists
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

func (s *MemorySessionStore) Append(_ context.Context, id string, messages ...models.Message) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Messages = append(session.Messages, messages...)
	session.UpdatedAt = time.Now().UTC()
	return session.Clone(), nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (s *MemorySessionStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sessions)), nil
}

// MongoSessionStore persists sessions in MongoDB, one document per session
type MongoSessionStore struct {
	collection *mongo.Collection
}

// NewMongoSessionStore creates a store over collection
func NewMongoSessionStore(collection *mongo.Collection) *MongoSessionStore {
	log.Printf("💾 [SESSION] Using MongoDB session store (%s)", collection.Name())
	return &MongoSessionStore{collection: collection}
}

func (s *MongoSessionStore) Get(ctx context.Context, id string) (*models.ChatSession, bool, error) {
	var session models.ChatSession
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []models.Message{}
	}
	return &session, true, nil
}

func (s *MongoSessionStore) Create(ctx context.Context, session *models.ChatSession) error {
	if session.Messages == nil {
		session.Messages = []models.Message{}
	}
	_, err := s.collection.InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *MongoSessionStore) Append(ctx context.Context, id string, messages ...models.Message) (*models.ChatSession, error) {
	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": messages}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session models.ChatSession
	err := s.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append messages: %w", err)
	}
	return &session, nil
}

func (s *MongoSessionStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoSessionStore) Count(ctx context.Context) (int64, error) {
	return s.collection.EstimatedDocumentCount(ctx)
}
