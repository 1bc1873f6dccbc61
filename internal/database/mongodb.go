package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultDBName = "restaurantrec"

// CollectionChatSessions holds one document per conversation
const CollectionChatSessions = "chat_sessions"

const sessionExpiryIndex = "session_expiry"

// MongoDB is the durable session database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB connects and pings the primary. The database name is taken from
// the URI path and defaults to "restaurantrec".
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName(defaultDBName).
		SetMaxPoolSize(20).
		SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := databaseName(uri)
	log.Printf("✅ Connected to MongoDB database: %s", name)

	return &MongoDB{client: client, database: client.Database(name)}, nil
}

// databaseName returns the path component of a MongoDB URI:
// mongodb://localhost:27017/restaurantrec?authSource=admin -> restaurantrec
func databaseName(uri string) string {
	_, rest, found := strings.Cut(uri, "://")
	if !found {
		rest = uri
	}
	rest, _, _ = strings.Cut(rest, "?")

	_, path, found := strings.Cut(rest, "/")
	if name := strings.Trim(path, "/"); found && name != "" {
		return name
	}
	return defaultDBName
}

// Initialize prepares the session collection. With a positive sessionTTL,
// sessions untouched for that long are removed by MongoDB's TTL monitor.
func (m *MongoDB) Initialize(ctx context.Context, sessionTTL time.Duration) error {
	indexes := m.database.Collection(CollectionChatSessions).Indexes()

	// The TTL index replaces the plain updated_at index, so an existing one
	// with a different expiry has to go first.
	if _, err := indexes.DropOne(ctx, sessionExpiryIndex); err != nil && !isIndexNotFound(err) {
		return fmt.Errorf("failed to drop session expiry index: %w", err)
	}

	idx := options.Index().SetName(sessionExpiryIndex)
	if sessionTTL > 0 {
		idx.SetExpireAfterSeconds(int32(sessionTTL / time.Second))
	}
	if _, err := indexes.CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: idx,
	}); err != nil {
		return fmt.Errorf("failed to create session expiry index: %w", err)
	}

	if sessionTTL > 0 {
		log.Printf("✅ MongoDB sessions expire after %s idle", sessionTTL)
	} else {
		log.Println("✅ MongoDB sessions kept until deleted")
	}
	return nil
}

func isIndexNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// IndexNotFound, NamespaceNotFound
		return cmdErr.Code == 27 || cmdErr.Code == 26
	}
	return false
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Name returns the database name
func (m *MongoDB) Name() string {
	return m.database.Name()
}

// Close disconnects the client
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks the primary is reachable
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
