package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"restaurantrec/internal/models"
)

const (
	yelpUpstream     = "yelp"
	yelpMaxLimit     = 50
	yelpMaxRadius    = 40000
	yelpMaxReviews   = 3
	reviewsCacheTTL  = time.Hour
	detailsCacheTTL  = time.Hour
	defaultSortBy    = "best_match"
	structuredSource = "yelp"
	vectorSource     = "vector"
)

// ErrLocationRequired is returned when a search has neither an address nor coordinates
var ErrLocationRequired = errors.New("either location or latitude/longitude must be provided")

// BusinessSearcher is the structured business search upstream
type BusinessSearcher interface {
	Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error)
	GetBusiness(ctx context.Context, id string) (*models.Restaurant, error)
	GetReviews(ctx context.Context, id string, limit int) ([]models.Review, error)
	Autocomplete(ctx context.Context, text string, latitude, longitude float64) (*models.AutocompleteResult, error)
}

// YelpService is a Yelp Fusion API client
type YelpService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *UpstreamRateLimiter
	cache      *CacheService
}

// NewYelpService creates a Yelp client. limiter and cache may be nil.
func NewYelpService(baseURL, apiKey string, timeout time.Duration, limiter *UpstreamRateLimiter, cache *CacheService) *YelpService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YelpService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		cache:      cache,
	}
}

// Search queries /businesses/search. Limit and radius are capped at the API maximums.
func (s *YelpService) Search(ctx context.Context, params models.SearchParams) (*models.SearchResult, error) {
	q := url.Values{}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	radius := params.Radius
	if radius <= 0 {
		radius = 5000
	}
	sortBy := params.SortBy
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	q.Set("limit", strconv.Itoa(min(limit, yelpMaxLimit)))
	q.Set("radius", strconv.Itoa(min(radius, yelpMaxRadius)))
	q.Set("sort_by", sortBy)

	switch {
	case params.HasCoordinates():
		q.Set("latitude", strconv.FormatFloat(*params.Latitude, 'f', -1, 64))
		q.Set("longitude", strconv.FormatFloat(*params.Longitude, 'f', -1, 64))
	case params.Location != "":
		q.Set("location", params.Location)
	default:
		return nil, ErrLocationRequired
	}

	if params.Term != "" {
		q.Set("term", params.Term)
	}
	if params.Categories != "" {
		q.Set("categories", params.Categories)
	}
	if params.Price != "" {
		q.Set("price", params.Price)
	}
	if params.OpenNow {
		q.Set("open_now", "true")
	}

	var result models.SearchResult
	if err := s.get(ctx, "/businesses/search", q, &result); err != nil {
		return nil, err
	}
	if result.Businesses == nil {
		result.Businesses = []models.Restaurant{}
	}
	for i := range result.Businesses {
		result.Businesses[i].Source = structuredSource
	}

	log.Printf("🔍 [YELP] Found %d businesses (returned %d)", result.Total, len(result.Businesses))
	return &result, nil
}

// GetBusiness returns business details, cached for a day
func (s *YelpService) GetBusiness(ctx context.Context, id string) (*models.Restaurant, error) {
	key := CacheKey("yelp_business:", "get_business", []any{id}, nil)
	return Memoize(ctx, s.cache, key, detailsCacheTTL, func(ctx context.Context) (*models.Restaurant, error) {
		var r models.Restaurant
		if err := s.get(ctx, "/businesses/"+url.PathEscape(id), nil, &r); err != nil {
			return nil, err
		}
		r.Source = structuredSource
		return &r, nil
	})
}

type yelpReview struct {
	ID          string  `json:"id"`
	Rating      float64 `json:"rating"`
	Text        string  `json:"text"`
	TimeCreated string  `json:"time_created"`
	URL         string  `json:"url"`
	User        struct {
		Name string `json:"name"`
	} `json:"user"`
}

// GetReviews returns up to three reviews for a business, cached for an hour
func (s *YelpService) GetReviews(ctx context.Context, id string, limit int) ([]models.Review, error) {
	if limit <= 0 || limit > yelpMaxReviews {
		limit = yelpMaxReviews
	}

	key := CacheKey("yelp_reviews:", "get_reviews", []any{id, limit}, nil)
	return Memoize(ctx, s.cache, key, reviewsCacheTTL, func(ctx context.Context) ([]models.Review, error) {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))

		var resp struct {
			Reviews []yelpReview `json:"reviews"`
			Total   int          `json:"total"`
		}
		if err := s.get(ctx, "/businesses/"+url.PathEscape(id)+"/reviews", q, &resp); err != nil {
			return nil, err
		}

		reviews := make([]models.Review, 0, len(resp.Reviews))
		for _, r := range resp.Reviews {
			reviews = append(reviews, models.Review{
				ID:          r.ID,
				Rating:      r.Rating,
				Text:        r.Text,
				TimeCreated: r.TimeCreated,
				UserName:    r.User.Name,
				URL:         r.URL,
			})
		}
		if len(reviews) > limit {
			reviews = reviews[:limit]
		}
		return reviews, nil
	})
}

// Autocomplete returns search-as-you-type suggestions near a point
func (s *YelpService) Autocomplete(ctx context.Context, text string, latitude, longitude float64) (*models.AutocompleteResult, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))

	var resp struct {
		Terms []struct {
			Text string `json:"text"`
		} `json:"terms"`
		Businesses []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"businesses"`
		Categories []models.Category `json:"categories"`
	}
	if err := s.get(ctx, "/autocomplete", q, &resp); err != nil {
		return nil, err
	}

	result := &models.AutocompleteResult{
		Terms:      make([]string, 0, len(resp.Terms)),
		Businesses: make([]string, 0, len(resp.Businesses)),
		Categories: resp.Categories,
	}
	for _, t := range resp.Terms {
		result.Terms = append(result.Terms, t.Text)
	}
	for _, b := range resp.Businesses {
		result.Businesses = append(result.Businesses, b.Name)
	}
	if result.Categories == nil {
		result.Categories = []models.Category{}
	}
	return result, nil
}

func (s *YelpService) get(ctx context.Context, path string, query url.Values, out any) error {
	if s.apiKey == "" {
		return errors.New("yelp API key not configured")
	}
	if err := s.limiter.Wait(ctx, yelpUpstream); err != nil {
		return fmt.Errorf("yelp rate limiter: %w", err)
	}

	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	if err := doJSON(ctx, s.httpClient, req, yelpUpstream, out); err != nil {
		if upErr, ok := AsUpstreamError(err); ok {
			log.Printf("⚠️  [YELP] API error: %d - %s", upErr.StatusCode, upErr.Body)
		}
		return err
	}
	return nil
}
