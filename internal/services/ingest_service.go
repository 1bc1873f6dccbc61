package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"restaurantrec/internal/models"
)

// DefaultIngestLocations are fetched when ingest is run without explicit locations
var DefaultIngestLocations = []string{
	"San Francisco, CA",
	"New York, NY",
	"Los Angeles, CA",
	"Chicago, IL",
	"Austin, TX",
}

// VectorWriter is the write side of the vector index
type VectorWriter interface {
	Upsert(ctx context.Context, records []models.VectorRecord) (bool, error)
}

// IngestReport summarises one ingestion run
type IngestReport struct {
	Fetched  int `json:"fetched"`
	Skipped  int `json:"skipped"`
	Stored   int `json:"stored"`
	Rejected int `json:"rejected"`
}

// Ingester loads restaurants into the vector index
type Ingester struct {
	searcher  BusinessSearcher
	embedder  Embedder
	index     VectorWriter
	batchSize int
}

// NewIngester creates an ingester. searcher may be nil when only pre-fetched
// restaurants are ingested.
func NewIngester(searcher BusinessSearcher, embedder Embedder, index VectorWriter, batchSize int) *Ingester {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Ingester{searcher: searcher, embedder: embedder, index: index, batchSize: batchSize}
}

// FetchLocations searches each location for restaurants. A failing location is
// logged and skipped; the call only fails when every location fails.
func (i *Ingester) FetchLocations(ctx context.Context, locations []string, perLocation int) ([]models.Restaurant, error) {
	if i.searcher == nil {
		return nil, errors.New("no business searcher configured")
	}
	if perLocation <= 0 || perLocation > 50 {
		perLocation = 50
	}

	var (
		mu       sync.Mutex
		all      []models.Restaurant
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for _, location := range locations {
		g.Go(func() error {
			result, err := i.searcher.Search(gctx, models.SearchParams{
				Location:   location,
				Limit:      perLocation,
				Categories: "restaurants",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("⚠️  [INGEST] Error fetching from %s: %v", location, err)
				failures++
				return nil
			}
			log.Printf("📥 [INGEST] Found %d restaurants in %s", len(result.Businesses), location)
			all = append(all, result.Businesses...)
			return nil
		})
	}
	_ = g.Wait()

	if len(locations) > 0 && failures == len(locations) {
		return nil, fmt.Errorf("all %d locations failed", failures)
	}
	return all, nil
}

// Ingest embeds and stores restaurants in batches. Restaurants without an ID
// and duplicates are skipped.
func (i *Ingester) Ingest(ctx context.Context, restaurants []models.Restaurant) (IngestReport, error) {
	report := IngestReport{Fetched: len(restaurants)}

	seen := make(map[string]bool, len(restaurants))
	usable := make([]models.Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		if r.ID == "" || seen[r.ID] {
			report.Skipped++
			continue
		}
		seen[r.ID] = true
		usable = append(usable, r)
	}

	for start := 0; start < len(usable); start += i.batchSize {
		end := min(start+i.batchSize, len(usable))
		batch := usable[start:end]

		texts := make([]string, len(batch))
		for j := range batch {
			texts[j] = PrepareRestaurantText(&batch[j])
		}

		vectors, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return report, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}

		records := make([]models.VectorRecord, len(batch))
		for j := range batch {
			records[j] = models.VectorRecord{
				ID:       batch[j].ID,
				Vector:   vectors[j],
				Metadata: RestaurantMetadata(&batch[j]),
			}
		}

		ok, err := i.index.Upsert(ctx, records)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Rejected += len(records)
			continue
		}
		report.Stored += len(records)
	}

	log.Printf("✅ [INGEST] Stored %d restaurants (%d skipped, %d rejected)", report.Stored, report.Skipped, report.Rejected)
	return report, nil
}

// RestaurantMetadata is the payload stored alongside a restaurant's vector.
// Categories are stored as titles only.
func RestaurantMetadata(r *models.Restaurant) map[string]any {
	md := map[string]any{
		"id":           r.ID,
		"name":         r.Name,
		"rating":       r.Rating,
		"review_count": r.ReviewCount,
		"price":        r.Price,
		"categories":   r.CategoryTitles(),
		"source":       "yelp",
	}
	if r.Location != nil {
		md["location"] = r.Location
	}
	if r.Coordinates != nil {
		md["coordinates"] = r.Coordinates
	}
	if r.URL != "" {
		md["url"] = r.URL
	}
	if r.ImageURL != "" {
		md["image_url"] = r.ImageURL
	}
	return md
}
