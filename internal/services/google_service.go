package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"restaurantrec/internal/models"
)

const (
	googleUpstream  = "google"
	geocodeCacheTTL = 24 * time.Hour
	placesCacheTTL  = time.Hour
	earthRadiusM    = 6371000.0
)

// ErrLocationNotFound is returned when an address or point cannot be resolved
var ErrLocationNotFound = errors.New("location not found")

// Geocoder resolves addresses and searches places
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*models.GeocodeResult, error)
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (*models.ReverseGeocodeResult, error)
}

// GoogleMapsService is a Google Geocoding and Places API client
type GoogleMapsService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *UpstreamRateLimiter
	cache      *CacheService
}

// NewGoogleMapsService creates a Google Maps client. limiter and cache may be nil.
func NewGoogleMapsService(baseURL, apiKey string, timeout time.Duration, limiter *UpstreamRateLimiter, cache *CacheService) *GoogleMapsService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleMapsService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		cache:      cache,
	}
}

type googleLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress  string `json:"formatted_address"`
		PlaceID           string `json:"place_id"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		Geometry struct {
			Location googleLatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode converts an address to coordinates, cached for a day
func (s *GoogleMapsService) Geocode(ctx context.Context, address string) (*models.GeocodeResult, error) {
	key := CacheKey("geo:", "geocode", []any{address}, nil)
	return Memoize(ctx, s.cache, key, geocodeCacheTTL, func(ctx context.Context) (*models.GeocodeResult, error) {
		q := url.Values{}
		q.Set("address", address)

		var resp googleGeocodeResponse
		if err := s.get(ctx, "/geocode/json", q, &resp); err != nil {
			return nil, err
		}
		if resp.Status != "OK" || len(resp.Results) == 0 {
			log.Printf("⚠️  [GEO] Geocoding failed for address %q: %s", address, resp.Status)
			return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, address)
		}

		result := resp.Results[0]
		return &models.GeocodeResult{
			Latitude:         result.Geometry.Location.Lat,
			Longitude:        result.Geometry.Location.Lng,
			FormattedAddress: result.FormattedAddress,
			PlaceID:          result.PlaceID,
		}, nil
	})
}

// ReverseGeocode converts coordinates to an address, cached for a day
func (s *GoogleMapsService) ReverseGeocode(ctx context.Context, latitude, longitude float64) (*models.ReverseGeocodeResult, error) {
	key := CacheKey("reverse_geo:", "reverse_geocode", []any{latitude, longitude}, nil)
	return Memoize(ctx, s.cache, key, geocodeCacheTTL, func(ctx context.Context) (*models.ReverseGeocodeResult, error) {
		q := url.Values{}
		q.Set("latlng", fmt.Sprintf("%s,%s", formatCoord(latitude), formatCoord(longitude)))

		var resp googleGeocodeResponse
		if err := s.get(ctx, "/geocode/json", q, &resp); err != nil {
			return nil, err
		}
		if resp.Status != "OK" || len(resp.Results) == 0 {
			log.Printf("⚠️  [GEO] Reverse geocoding failed for %v, %v: %s", latitude, longitude, resp.Status)
			return nil, fmt.Errorf("%w: %v,%v", ErrLocationNotFound, latitude, longitude)
		}

		result := resp.Results[0]
		out := &models.ReverseGeocodeResult{
			FormattedAddress: result.FormattedAddress,
			PlaceID:          result.PlaceID,
		}
		for _, c := range result.AddressComponents {
			switch {
			case hasType(c.Types, "locality"):
				out.City = c.LongName
			case hasType(c.Types, "administrative_area_level_1"):
				out.State = c.ShortName
			case hasType(c.Types, "postal_code"):
				out.ZipCode = c.LongName
			case hasType(c.Types, "country"):
				out.Country = c.ShortName
			}
		}
		return out, nil
	})
}

type googlePlace struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Vicinity         string   `json:"vicinity"`
	Rating           float64  `json:"rating"`
	UserRatingsTotal int      `json:"user_ratings_total"`
	PriceLevel       int      `json:"price_level"`
	Types            []string `json:"types"`
	Geometry         struct {
		Location googleLatLng `json:"location"`
	} `json:"geometry"`
}

type googlePlacesResponse struct {
	Status  string        `json:"status"`
	Results []googlePlace `json:"results"`
}

// SearchPlaces runs a Places text search, optionally biased to a point
func (s *GoogleMapsService) SearchPlaces(ctx context.Context, query string, near *models.Coordinates, radius int) ([]models.Place, error) {
	var args []any
	if near != nil {
		args = []any{query, near.Latitude, near.Longitude, radius}
	} else {
		args = []any{query}
	}
	key := CacheKey("places_search:", "search_places", args, nil)

	return Memoize(ctx, s.cache, key, placesCacheTTL, func(ctx context.Context) ([]models.Place, error) {
		q := url.Values{}
		q.Set("query", query)
		if near != nil {
			q.Set("location", formatCoord(near.Latitude)+","+formatCoord(near.Longitude))
			q.Set("radius", strconv.Itoa(radius))
		}
		return s.places(ctx, "/place/textsearch/json", q)
	})
}

// SearchNearby lists places around a point, optionally restricted to a place type
func (s *GoogleMapsService) SearchNearby(ctx context.Context, latitude, longitude float64, radius int, placeType string) ([]models.Place, error) {
	key := CacheKey("nearby_search:", "search_nearby", []any{latitude, longitude, radius, placeType}, nil)
	return Memoize(ctx, s.cache, key, placesCacheTTL, func(ctx context.Context) ([]models.Place, error) {
		q := url.Values{}
		q.Set("location", formatCoord(latitude)+","+formatCoord(longitude))
		q.Set("radius", strconv.Itoa(radius))
		if placeType != "" {
			q.Set("type", placeType)
		}
		return s.places(ctx, "/place/nearbysearch/json", q)
	})
}

func (s *GoogleMapsService) places(ctx context.Context, path string, q url.Values) ([]models.Place, error) {
	var resp googlePlacesResponse
	if err := s.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []models.Place{}, nil
	default:
		log.Printf("⚠️  [GEO] Places search failed: %s", resp.Status)
		return nil, fmt.Errorf("places search failed: %s", resp.Status)
	}

	out := make([]models.Place, 0, len(resp.Results))
	for _, p := range resp.Results {
		out = append(out, models.Place{
			PlaceID:          p.PlaceID,
			Name:             p.Name,
			FormattedAddress: p.FormattedAddress,
			Vicinity:         p.Vicinity,
			Rating:           p.Rating,
			UserRatingsTotal: p.UserRatingsTotal,
			PriceLevel:       p.PriceLevel,
			Types:            p.Types,
			Location:         &models.Coordinates{Latitude: p.Geometry.Location.Lat, Longitude: p.Geometry.Location.Lng},
		})
	}
	return out, nil
}

func (s *GoogleMapsService) get(ctx context.Context, path string, q url.Values, out any) error {
	if s.apiKey == "" {
		return errors.New("google maps API key not configured")
	}
	if err := s.limiter.Wait(ctx, googleUpstream); err != nil {
		return fmt.Errorf("google rate limiter: %w", err)
	}

	q.Set("key", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return doJSON(ctx, s.httpClient, req, googleUpstream, out)
}

// HaversineDistance returns the great-circle distance in meters between two points
func HaversineDistance(originLat, originLng, destLat, destLng float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	lat1, lng1 := toRad(originLat), toRad(originLng)
	lat2, lng2 := toRad(destLat), toRad(destLng)

	dlat := lat2 - lat1
	dlng := lng2 - lng1
	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlng/2), 2)
	return 2 * math.Asin(math.Sqrt(a)) * earthRadiusM
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
