package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"restaurantrec/internal/config"
	"restaurantrec/internal/models"
)

// QdrantBackend talks to Qdrant over gRPC
type QdrantBackend struct {
	client *qdrant.Client
}

// NewQdrantBackend connects to the configured Qdrant instance
func NewQdrantBackend(cfg *config.Config) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantUseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	log.Printf("✅ [VECTOR] Qdrant client configured for %s:%d", cfg.QdrantHost, cfg.QdrantPort)
	return &QdrantBackend{client: client}, nil
}

// HealthCheck pings the Qdrant server
func (b *QdrantBackend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HealthCheck(ctx)
	return err
}

func (b *QdrantBackend) CollectionExists(ctx context.Context, collection string) (bool, error) {
	return b.client.CollectionExists(ctx, collection)
}

func (b *QdrantBackend) CreateCollection(ctx context.Context, collection string, dimension int) error {
	return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (b *QdrantBackend) DeleteCollection(ctx context.Context, collection string) error {
	return b.client.DeleteCollection(ctx, collection)
}

func (b *QdrantBackend) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload, err := toQdrantPayload(r.ID, r.Metadata)
		if err != nil {
			return fmt.Errorf("invalid metadata for %s: %w", r.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: payload,
		})
	}

	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

func (b *QdrantBackend) Query(ctx context.Context, collection string, vector []float32, limit int, filter models.VectorFilter) ([]models.VectorMatch, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if f := buildQdrantFilter(filter); f != nil {
		req.Filter = f
	}

	points, err := b.client.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	matches := make([]models.VectorMatch, 0, len(points))
	for _, p := range points {
		metadata := fromQdrantPayload(p.GetPayload())
		id, _ := metadata["id"].(string)
		if id == "" {
			id = p.GetId().GetUuid()
		}
		matches = append(matches, models.VectorMatch{
			ID:       id,
			Score:    p.GetScore(),
			Metadata: metadata,
		})
	}
	return matches, nil
}

func (b *QdrantBackend) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(PointID(id)))
	}
	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

func (b *QdrantBackend) Info(ctx context.Context, collection string) (models.CollectionStats, error) {
	info, err := b.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return models.CollectionStats{}, err
	}
	return models.CollectionStats{
		VectorCount: info.GetIndexedVectorsCount(),
		PointCount:  info.GetPointsCount(),
		Status:      strings.ToLower(info.GetStatus().String()),
	}, nil
}

func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// buildQdrantFilter turns field conditions into a conjunctive filter
func buildQdrantFilter(filter models.VectorFilter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter))
	for field, cond := range filter {
		if cond.Range != nil {
			if cond.Range.Gte == nil && cond.Range.Lte == nil {
				continue
			}
			conditions = append(conditions, qdrant.NewRange(field, &qdrant.Range{
				Gte: cond.Range.Gte,
				Lte: cond.Range.Lte,
			}))
			continue
		}

		switch v := cond.Match.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(field, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(field, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(field, v))
		case float64:
			// Qdrant has no float equality match; a closed range is equivalent
			conditions = append(conditions, qdrant.NewRange(field, &qdrant.Range{Gte: &v, Lte: &v}))
		default:
			log.Printf("⚠️  [VECTOR] Ignoring filter on %s: unsupported match type %T", field, cond.Match)
		}
	}

	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// toQdrantPayload normalizes metadata to JSON types and stores the record ID under "id"
func toQdrantPayload(id string, metadata map[string]any) (map[string]*qdrant.Value, error) {
	normalized := map[string]any{}
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		normalized = normalizeNumbers(raw).(map[string]any)
	}
	normalized["id"] = id
	return qdrant.TryValueMap(normalized)
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeNumbers(val)
		}
		return t
	default:
		return v
	}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = fromQdrantValue(item)
		}
		return list
	default:
		return nil
	}
}
