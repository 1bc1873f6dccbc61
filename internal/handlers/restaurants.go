package handlers

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"restaurantrec/internal/models"
	"restaurantrec/internal/services"
)

// PlacesSearcher is the place search side of the maps upstream
type PlacesSearcher interface {
	services.Geocoder
	SearchPlaces(ctx context.Context, query string, near *models.Coordinates, radius int) ([]models.Place, error)
}

// RestaurantHandler handles direct search, details and location lookups
type RestaurantHandler struct {
	businesses services.BusinessSearcher
	places     PlacesSearcher
	timeout    time.Duration
}

// NewRestaurantHandler creates a new restaurant handler. places may be nil.
func NewRestaurantHandler(businesses services.BusinessSearcher, places PlacesSearcher, timeout time.Duration) *RestaurantHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RestaurantHandler{businesses: businesses, places: places, timeout: timeout}
}

// Search runs a structured search
// POST /api/v1/restaurants/search
func (h *RestaurantHandler) Search(c *fiber.Ctx) error {
	var req models.RestaurantSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	params := models.SearchParams{
		Location:   req.Location,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Term:       req.Query,
		Categories: req.Categories,
		Price:      req.Price,
		Radius:     req.Radius,
		Limit:      req.Limit,
		SortBy:     req.SortBy,
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.businesses.Search(ctx, params)
	if err != nil {
		if errors.Is(err, services.ErrLocationRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Either location or latitude/longitude is required",
			})
		}
		log.Printf("❌ [RESTAURANT-API] Error searching restaurants: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search restaurants",
		})
	}

	return c.JSON(models.RestaurantSearchResponse{
		Restaurants: result.Businesses,
		Total:       result.Total,
		Query:       req.Query,
	})
}

// Nearby lists restaurants around a point
// GET /api/v1/restaurants/nearby?latitude=&longitude=&radius=5000&limit=20
func (h *RestaurantHandler) Nearby(c *fiber.Ctx) error {
	lat, lng, ok := parseCoordinates(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "latitude and longitude are required",
		})
	}

	radius := c.QueryInt("radius", 5000)
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 50 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 50",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.businesses.Search(ctx, models.SearchParams{
		Latitude:   &lat,
		Longitude:  &lng,
		Radius:     radius,
		Limit:      limit,
		Categories: "restaurants",
	})
	if err != nil {
		log.Printf("❌ [RESTAURANT-API] Error getting nearby restaurants: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get nearby restaurants",
		})
	}

	return c.JSON(fiber.Map{
		"restaurants": result.Businesses,
		"total":       result.Total,
	})
}

// Details returns one restaurant, with up to three reviews unless include_reviews=false
// GET /api/v1/restaurants/:id
func (h *RestaurantHandler) Details(c *fiber.Ctx) error {
	id := c.Params("id")
	includeReviews := c.QueryBool("include_reviews", true)

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	business, err := h.businesses.GetBusiness(ctx, id)
	if err != nil {
		if upErr, ok := services.AsUpstreamError(err); ok && upErr.IsNotFound() {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Restaurant not found",
			})
		}
		log.Printf("❌ [RESTAURANT-API] Error getting restaurant details: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get restaurant details",
		})
	}

	business.Reviews = []models.Review{}
	if includeReviews {
		reviews, err := h.businesses.GetReviews(ctx, id, 3)
		if err != nil {
			log.Printf("⚠️  [RESTAURANT-API] Failed to get reviews for %s: %v", id, err)
		} else if reviews != nil {
			business.Reviews = reviews
		}
	}
	return c.JSON(business)
}

// Autocomplete returns search-as-you-type suggestions
// GET /api/v1/restaurants/autocomplete?text=&latitude=&longitude=
func (h *RestaurantHandler) Autocomplete(c *fiber.Ctx) error {
	text := c.Query("text")
	lat, lng, ok := parseCoordinates(c)
	if text == "" || !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text, latitude and longitude are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.businesses.Autocomplete(ctx, text, lat, lng)
	if err != nil {
		log.Printf("❌ [RESTAURANT-API] Autocomplete failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get suggestions",
		})
	}
	return c.JSON(result)
}

type placeResult struct {
	models.Place
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// Places runs a free-text place search. With coordinates, results carry their
// distance and are ordered nearest first.
// GET /api/v1/restaurants/places?query=&latitude=&longitude=&radius=5000
func (h *RestaurantHandler) Places(c *fiber.Ctx) error {
	if h.places == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Place search is not configured",
		})
	}
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	var near *models.Coordinates
	if lat, lng, ok := parseCoordinates(c); ok {
		near = &models.Coordinates{Latitude: lat, Longitude: lng}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	places, err := h.places.SearchPlaces(ctx, query, near, c.QueryInt("radius", 5000))
	if err != nil {
		log.Printf("❌ [RESTAURANT-API] Place search failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search places",
		})
	}

	results := make([]placeResult, len(places))
	for i, p := range places {
		results[i] = placeResult{Place: p}
		if near != nil && p.Location != nil {
			d := services.HaversineDistance(near.Latitude, near.Longitude, p.Location.Latitude, p.Location.Longitude)
			results[i].DistanceMeters = &d
		}
	}
	if near != nil {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].DistanceMeters == nil {
				return false
			}
			if results[j].DistanceMeters == nil {
				return true
			}
			return *results[i].DistanceMeters < *results[j].DistanceMeters
		})
	}

	return c.JSON(fiber.Map{
		"places": results,
		"total":  len(results),
	})
}

// Geocode resolves an address to coordinates
// GET /api/v1/location/geocode?address=
func (h *RestaurantHandler) Geocode(c *fiber.Ctx) error {
	if h.places == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Geocoding is not configured",
		})
	}
	address := c.Query("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.places.Geocode(ctx, address)
	if err != nil {
		return locationError(c, err)
	}
	return c.JSON(result)
}

// ReverseGeocode resolves coordinates to an address
// GET /api/v1/location/reverse?latitude=&longitude=
func (h *RestaurantHandler) ReverseGeocode(c *fiber.Ctx) error {
	if h.places == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Geocoding is not configured",
		})
	}
	lat, lng, ok := parseCoordinates(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "latitude and longitude are required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	result, err := h.places.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return locationError(c, err)
	}
	return c.JSON(result)
}

func locationError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrLocationNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Location not found",
		})
	}
	log.Printf("❌ [LOCATION-API] Lookup failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to resolve location",
	})
}

func parseCoordinates(c *fiber.Ctx) (float64, float64, bool) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
