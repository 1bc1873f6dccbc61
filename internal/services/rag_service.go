package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurantrec/internal/health"
	"restaurantrec/internal/models"
)

// Keyword order matters: the first match wins.
var cuisineKeywords = []string{
	"italian", "chinese", "japanese", "mexican", "thai", "indian",
	"french", "korean", "vietnamese", "mediterranean", "american",
	"pizza", "sushi", "burgers", "tacos", "pasta", "seafood",
}

var priceKeywords = []struct {
	phrase string
	tier   string
}{
	{"cheap", "1"},
	{"affordable", "1,2"},
	{"moderate", "2"},
	{"expensive", "3,4"},
	{"fine dining", "4"},
}

var ratingPattern = regexp.MustCompile(`(\d\.?\d*)\s*star`)

const (
	maxEnrichedResults = 10
	reviewsPerResult   = 3
	vectorTopK         = 20
)

// VectorSearcher is the read side of the vector index
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter models.VectorFilter) ([]models.VectorMatch, error)
}

// RAGOptions tunes retrieval. Zero values use the defaults.
type RAGOptions struct {
	SearchLimit   int
	SearchRadius  int
	SourceTimeout time.Duration
}

// RAGService runs hybrid retrieval: structured search and vector similarity,
// merged, ranked and enriched with reviews
type RAGService struct {
	geocoder Geocoder
	searcher BusinessSearcher
	embedder Embedder
	index    VectorSearcher
	health   *health.Service
	opts     RAGOptions
}

// NewRAGService creates a retrieval orchestrator. geocoder and healthSvc may be nil.
func NewRAGService(geocoder Geocoder, searcher BusinessSearcher, embedder Embedder, index VectorSearcher, healthSvc *health.Service, opts RAGOptions) *RAGService {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 20
	}
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = 5000
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 30 * time.Second
	}
	return &RAGService{
		geocoder: geocoder,
		searcher: searcher,
		embedder: embedder,
		index:    index,
		health:   healthSvc,
		opts:     opts,
	}
}

// ExtractSearchParams derives structured search parameters from free text and explicit preferences
func ExtractSearchParams(query string, prefs *models.Preferences) models.SearchParams {
	lower := strings.ToLower(query)
	var params models.SearchParams

	for _, cuisine := range cuisineKeywords {
		if strings.Contains(lower, cuisine) {
			params.Term = cuisine
			params.Categories = "restaurants"
			break
		}
	}

	for _, p := range priceKeywords {
		if strings.Contains(lower, p.phrase) {
			params.Price = p.tier
			break
		}
	}

	if m := ratingPattern.FindStringSubmatch(lower); m != nil {
		if rating, err := strconv.ParseFloat(m[1], 64); err == nil {
			params.MinRating = &rating
		}
	}

	if prefs != nil {
		if prefs.Cuisine != "" {
			params.Term = prefs.Cuisine
		}
		if prefs.PriceRange != "" {
			params.Price = prefs.PriceRange
		}
		if prefs.Dietary != "" {
			if params.Term != "" {
				params.Term += " " + prefs.Dietary
			} else {
				params.Term = prefs.Dietary
			}
		}
	}

	return params
}

// MergeResults deduplicates by ID with structured results taking priority, then
// stable-sorts by rating and review count descending
func MergeResults(structured, vector []models.Restaurant) []models.Restaurant {
	seen := make(map[string]struct{}, len(structured)+len(vector))
	merged := make([]models.Restaurant, 0, len(structured)+len(vector))

	for _, r := range structured {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range vector {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Rating != merged[j].Rating {
			return merged[i].Rating > merged[j].Rating
		}
		return merged[i].ReviewCount > merged[j].ReviewCount
	})
	return merged
}

// RetrieveRestaurants runs the full pipeline. Only embedding and vector index
// initialization failures are returned as errors; every other failure degrades
// the affected source to empty.
func (s *RAGService) RetrieveRestaurants(ctx context.Context, conv *models.ConversationContext) ([]models.Restaurant, error) {
	params := ExtractSearchParams(conv.Query, conv.Preferences)
	s.resolveLocation(ctx, conv.Location, &params)

	var structured, vector []models.Restaurant
	var vectorErr error

	// Each branch degrades on its own; neither cancels the other
	var g errgroup.Group
	g.Go(func() error {
		structured = s.searchStructured(ctx, params)
		return nil
	})
	g.Go(func() error {
		vector, vectorErr = s.searchVector(ctx, conv.Query)
		return nil
	})
	g.Wait()

	if vectorErr != nil {
		return nil, vectorErr
	}

	merged := MergeResults(structured, vector)
	if len(merged) > maxEnrichedResults {
		merged = merged[:maxEnrichedResults]
	}

	s.enrichWithReviews(ctx, merged)
	log.Printf("🍽️  [RAG] Retrieved %d restaurants (structured=%d, vector=%d)", len(merged), len(structured), len(vector))
	return merged, nil
}

// resolveLocation fills the search location from the conversation location.
// An address that cannot be geocoded is passed through as free text.
func (s *RAGService) resolveLocation(ctx context.Context, loc *models.UserLocation, params *models.SearchParams) {
	switch {
	case loc.HasAddress():
		if s.geocoder != nil {
			ctx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
			defer cancel()

			geo, err := s.geocoder.Geocode(ctx, loc.Address)
			if err == nil {
				lat, lng := geo.Latitude, geo.Longitude
				params.Latitude, params.Longitude = &lat, &lng
				s.health.MarkHealthy(health.CapabilityGeocode, googleUpstream)
				return
			}
			log.Printf("⚠️  [RAG] Geocoding %q failed, searching by address text: %v", loc.Address, err)
			if !errors.Is(err, ErrLocationNotFound) {
				s.markFailure(health.CapabilityGeocode, googleUpstream, err)
			}
		}
		params.Location = loc.Address
	case loc.HasCoordinates():
		lat, lng := *loc.Latitude, *loc.Longitude
		params.Latitude, params.Longitude = &lat, &lng
	}
}

func (s *RAGService) searchStructured(ctx context.Context, params models.SearchParams) []models.Restaurant {
	if s.searcher == nil {
		return []models.Restaurant{}
	}
	if !params.HasCoordinates() && params.Location == "" {
		log.Printf("📍 [RAG] No location available, skipping structured search")
		return []models.Restaurant{}
	}
	if !s.health.IsAvailable(health.CapabilitySearch, yelpUpstream) {
		log.Printf("⏸️  [RAG] Structured search in cooldown, skipping")
		recordSource(structuredSource, 0, true)
		return []models.Restaurant{}
	}

	params.Limit = s.opts.SearchLimit
	params.Radius = s.opts.SearchRadius
	params.SortBy = defaultSortBy

	ctx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()

	result, err := s.searcher.Search(ctx, params)
	if err != nil {
		log.Printf("⚠️  [RAG] Error searching Yelp: %v", err)
		s.markFailure(health.CapabilitySearch, yelpUpstream, err)
		recordSource(structuredSource, 0, true)
		return []models.Restaurant{}
	}
	s.health.MarkHealthy(health.CapabilitySearch, yelpUpstream)

	businesses := result.Businesses
	if params.MinRating != nil {
		filtered := make([]models.Restaurant, 0, len(businesses))
		for _, b := range businesses {
			if b.Rating >= *params.MinRating {
				filtered = append(filtered, b)
			}
		}
		businesses = filtered
	}

	recordSource(structuredSource, len(businesses), false)
	return businesses
}

// searchVector returns an error only for failures the pipeline cannot serve without
func (s *RAGService) searchVector(ctx context.Context, query string) ([]models.Restaurant, error) {
	if s.embedder == nil || s.index == nil {
		return []models.Restaurant{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.markFailure(health.CapabilityEmbedding, "embedder", err)
		recordSource(vectorSource, 0, true)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Vector results are intentionally not filtered by the extracted minimum rating
	matches, err := s.index.Search(ctx, embedding, vectorTopK, nil)
	if err != nil {
		recordSource(vectorSource, 0, true)
		if errors.Is(err, ErrVectorIndexUnavailable) {
			s.markFailure(health.CapabilityVector, "qdrant", err)
			return nil, err
		}
		log.Printf("⚠️  [RAG] Error searching vector DB: %v", err)
		return []models.Restaurant{}, nil
	}

	restaurants := make([]models.Restaurant, 0, len(matches))
	for _, m := range matches {
		r, ok := models.RestaurantFromMetadata(m.Metadata)
		if !ok {
			continue
		}
		r.Source = vectorSource
		r.Reviews = nil
		restaurants = append(restaurants, r)
	}

	recordSource(vectorSource, len(restaurants), false)
	return restaurants, nil
}

// enrichWithReviews attaches up to three reviews to each restaurant in place.
// Order and length never change; a failed fetch leaves an empty list.
func (s *RAGService) enrichWithReviews(ctx context.Context, restaurants []models.Restaurant) {
	var g errgroup.Group
	g.SetLimit(maxEnrichedResults)

	for i := range restaurants {
		restaurants[i].Reviews = []models.Review{}
		if s.searcher == nil || restaurants[i].ID == "" {
			continue
		}

		i := i
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
			defer cancel()

			reviews, err := s.searcher.GetReviews(ctx, restaurants[i].ID, reviewsPerResult)
			if err != nil {
				log.Printf("⚠️  [RAG] Failed to get reviews for %s: %v", restaurants[i].ID, err)
				s.markFailure(health.CapabilityReviews, yelpUpstream, err)
				return nil
			}
			if len(reviews) > reviewsPerResult {
				reviews = reviews[:reviewsPerResult]
			}
			if reviews != nil {
				restaurants[i].Reviews = reviews
			}
			return nil
		})
	}
	g.Wait()
}

func (s *RAGService) markFailure(capability health.CapabilityType, name string, err error) {
	code := 0
	if upErr, ok := AsUpstreamError(err); ok {
		code = upErr.StatusCode
	}
	s.health.MarkUnhealthy(capability, name, err.Error(), code)
}
