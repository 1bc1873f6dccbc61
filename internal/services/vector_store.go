package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"restaurantrec/internal/models"
)

// ErrVectorIndexUnavailable is returned when the collection cannot be initialized
var ErrVectorIndexUnavailable = errors.New("vector index unavailable")

// pointNamespace derives stable point IDs from record IDs
var pointNamespace = uuid.MustParse("6f1c7c1e-6a51-4c43-9d6e-3f2f6b1f0a9d")

// PointID returns the vector index point ID for a record ID
func PointID(recordID string) string {
	if _, err := uuid.Parse(recordID); err == nil {
		return recordID
	}
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// vectorBackend is the subset of the vector database the store needs
type vectorBackend interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string, dimension int) error
	Upsert(ctx context.Context, collection string, records []models.VectorRecord) error
	Query(ctx context.Context, collection string, vector []float32, limit int, filter models.VectorFilter) ([]models.VectorMatch, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Info(ctx context.Context, collection string) (models.CollectionStats, error)
	Close() error
}

type indexState int

const (
	indexUninitialized indexState = iota
	indexInitializing
	indexReady
)

// VectorStore manages the restaurant embedding collection.
// Initialization is lazy and idempotent; a failed attempt leaves the store
// uninitialized so the next call retries.
type VectorStore struct {
	backend    vectorBackend
	collection string
	dimension  int

	mu    sync.Mutex
	state indexState
	ready chan struct{}
	err   error
}

// NewVectorStore creates a store over backend
func NewVectorStore(backend vectorBackend, collection string, dimension int) *VectorStore {
	return &VectorStore{
		backend:    backend,
		collection: collection,
		dimension:  dimension,
	}
}

// Collection returns the collection name
func (s *VectorStore) Collection() string {
	return s.collection
}

// Dimension returns the configured vector dimension
func (s *VectorStore) Dimension() int {
	return s.dimension
}

// EnsureReady creates the collection if missing. Concurrent callers share one attempt.
func (s *VectorStore) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case indexReady:
		s.mu.Unlock()
		return nil
	case indexInitializing:
		wait := s.ready
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrVectorIndexUnavailable, ctx.Err())
		}
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		return err
	}

	s.state = indexInitializing
	s.ready = make(chan struct{})
	done := s.ready
	s.mu.Unlock()

	err := s.initialize(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = indexUninitialized
		s.err = fmt.Errorf("%w: %v", ErrVectorIndexUnavailable, err)
	} else {
		s.state = indexReady
		s.err = nil
	}
	err = s.err
	close(done)
	s.mu.Unlock()

	return err
}

func (s *VectorStore) initialize(ctx context.Context) error {
	if s.backend == nil {
		return errors.New("vector backend not configured")
	}

	exists, err := s.backend.CollectionExists(ctx, s.collection)
	if err != nil {
		log.Printf("❌ [VECTOR] Failed to initialize vector store: %v", err)
		return err
	}

	if !exists {
		log.Printf("📦 [VECTOR] Creating collection: %s (dimension %d, cosine)", s.collection, s.dimension)
		if err := s.backend.CreateCollection(ctx, s.collection, s.dimension); err != nil {
			log.Printf("❌ [VECTOR] Failed to create collection %s: %v", s.collection, err)
			return err
		}
	}

	log.Printf("✅ [VECTOR] Vector store initialized (collection %s)", s.collection)
	return nil
}

// Upsert stores records, replacing any with the same ID. It reports false
// when the batch was rejected; only initialization failures are errors.
func (s *VectorStore) Upsert(ctx context.Context, records []models.VectorRecord) (bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return false, err
	}
	if len(records) == 0 {
		return true, nil
	}

	for _, r := range records {
		if r.ID == "" {
			log.Printf("⚠️  [VECTOR] Rejecting batch: record with empty ID")
			return false, nil
		}
		if len(r.Vector) != s.dimension {
			log.Printf("⚠️  [VECTOR] Rejecting batch: record %s has dimension %d, collection expects %d", r.ID, len(r.Vector), s.dimension)
			return false, nil
		}
	}

	if err := s.backend.Upsert(ctx, s.collection, records); err != nil {
		log.Printf("❌ [VECTOR] Error storing embeddings: %v", err)
		return false, nil
	}

	log.Printf("✅ [VECTOR] Stored %d embeddings", len(records))
	return true, nil
}

// Search returns up to topK matches ordered by descending similarity
func (s *VectorStore) Search(ctx context.Context, vector []float32, topK int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	if len(vector) != s.dimension {
		log.Printf("⚠️  [VECTOR] Query vector has dimension %d, collection expects %d", len(vector), s.dimension)
		return []models.VectorMatch{}, nil
	}

	matches, err := s.backend.Query(ctx, s.collection, vector, topK, filter)
	if err != nil {
		log.Printf("❌ [VECTOR] Error searching vectors: %v", err)
		return []models.VectorMatch{}, nil
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes records by ID
func (s *VectorStore) Delete(ctx context.Context, ids []string) (bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return true, nil
	}

	if err := s.backend.Delete(ctx, s.collection, ids); err != nil {
		log.Printf("❌ [VECTOR] Error deleting embeddings: %v", err)
		return false, nil
	}
	log.Printf("🗑️  [VECTOR] Deleted %d embeddings", len(ids))
	return true, nil
}

// Stats reports collection counts; a zero value means the stats could not be read
func (s *VectorStore) Stats(ctx context.Context) (models.CollectionStats, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return models.CollectionStats{}, err
	}

	stats, err := s.backend.Info(ctx, s.collection)
	if err != nil {
		log.Printf("❌ [VECTOR] Error getting collection stats: %v", err)
		return models.CollectionStats{}, nil
	}
	return stats, nil
}

// Recreate drops the collection when the backend supports it and initializes a fresh one
func (s *VectorStore) Recreate(ctx context.Context) error {
	dropper, ok := s.backend.(interface {
		DeleteCollection(ctx context.Context, collection string) error
	})
	if !ok {
		return errors.New("vector backend cannot drop collections")
	}

	exists, err := s.backend.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVectorIndexUnavailable, err)
	}
	if exists {
		log.Printf("🗑️  [VECTOR] Dropping collection %s", s.collection)
		if err := dropper.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", s.collection, err)
		}
	}

	s.mu.Lock()
	if s.state == indexReady {
		s.state = indexUninitialized
	}
	s.mu.Unlock()

	return s.EnsureReady(ctx)
}

// Close releases the backend connection
func (s *VectorStore) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
