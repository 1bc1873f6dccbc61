package models

import (
	"encoding/json"
	"strings"
)

// Category is a business category as reported by the search API.
// Vector payloads store only the title, so both shapes decode.
type Category struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
}

// UnmarshalJSON accepts either {"alias","title"} or a bare title string
func (c *Category) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		c.Title = title
		c.Alias = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "")
		return nil
	}

	type plain Category
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Category(p)
	return nil
}

// Location is a street address
type Location struct {
	Address1       string   `json:"address1,omitempty" bson:"address1,omitempty"`
	Address2       string   `json:"address2,omitempty" bson:"address2,omitempty"`
	Address3       string   `json:"address3,omitempty" bson:"address3,omitempty"`
	City           string   `json:"city,omitempty" bson:"city,omitempty"`
	State          string   `json:"state,omitempty" bson:"state,omitempty"`
	ZipCode        string   `json:"zip_code,omitempty" bson:"zip_code,omitempty"`
	Country        string   `json:"country,omitempty" bson:"country,omitempty"`
	DisplayAddress []string `json:"display_address,omitempty" bson:"display_address,omitempty"`
}

// Coordinates is a latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Review is a single customer review attached during enrichment
type Review struct {
	ID          string  `json:"id"`
	Rating      float64 `json:"rating"`
	Text        string  `json:"text"`
	TimeCreated string  `json:"time_created"`
	UserName    string  `json:"user_name,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// Restaurant is a candidate entity produced by retrieval.
// Rating and ReviewCount are zero when the upstream omits them.
type Restaurant struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Rating      float64      `json:"rating"`
	ReviewCount int          `json:"review_count"`
	Price       string       `json:"price,omitempty"`
	Categories  []Category   `json:"categories"`
	Location    *Location    `json:"location,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	URL         string       `json:"url,omitempty"`
	IsClosed    bool         `json:"is_closed"`
	Distance    float64      `json:"distance,omitempty"`
	Description string       `json:"description,omitempty"`
	Source      string       `json:"source,omitempty"`
	Reviews     []Review     `json:"reviews"`
}

// CategoryTitles returns the category titles in order
func (r *Restaurant) CategoryTitles() []string {
	titles := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		if c.Title != "" {
			titles = append(titles, c.Title)
		}
	}
	return titles
}

// RestaurantFromMetadata decodes a vector payload into a Restaurant.
// Payloads written by older ingests carry the business ID under "yelp_id".
// ok is false when the payload has no usable identifier.
func RestaurantFromMetadata(metadata map[string]any) (Restaurant, bool) {
	var r Restaurant
	if len(metadata) == 0 {
		return r, false
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return r, false
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, false
	}

	if r.ID == "" {
		if id, ok := metadata["yelp_id"].(string); ok {
			r.ID = id
		}
	}
	if r.ID == "" {
		return r, false
	}
	return r, true
}

// SearchParams are the structured-search inputs extracted from a query
type SearchParams struct {
	Location   string   `json:"location,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Term       string   `json:"term,omitempty"`
	Categories string   `json:"categories,omitempty"`
	Price      string   `json:"price,omitempty"`
	Radius     int      `json:"radius,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
	OpenNow    bool     `json:"open_now,omitempty"`
	MinRating  *float64 `json:"min_rating,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set
func (p *SearchParams) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// SearchResult is the structured-search response
type SearchResult struct {
	Businesses []Restaurant `json:"businesses"`
	Total      int          `json:"total"`
}

// ReviewsResult is the reviews response for a single business
type ReviewsResult struct {
	Reviews []Review `json:"reviews"`
	Total   int      `json:"total"`
}

// GeocodeResult is a resolved address
type GeocodeResult struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
	PlaceID          string  `json:"place_id,omitempty"`
}

// ReverseGeocodeResult is an address resolved from coordinates
type ReverseGeocodeResult struct {
	FormattedAddress string `json:"formatted_address"`
	PlaceID          string `json:"place_id,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	ZipCode          string `json:"zip_code,omitempty"`
	Country          string `json:"country,omitempty"`
}

// Place is a Google Places search hit
type Place struct {
	PlaceID          string       `json:"place_id"`
	Name             string       `json:"name"`
	FormattedAddress string       `json:"formatted_address,omitempty"`
	Vicinity         string       `json:"vicinity,omitempty"`
	Rating           float64      `json:"rating,omitempty"`
	UserRatingsTotal int          `json:"user_ratings_total,omitempty"`
	PriceLevel       int          `json:"price_level,omitempty"`
	Types            []string     `json:"types,omitempty"`
	Location         *Coordinates `json:"location,omitempty"`
}

// AutocompleteResult holds search-as-you-type suggestions
type AutocompleteResult struct {
	Terms      []string   `json:"terms"`
	Businesses []string   `json:"businesses"`
	Categories []Category `json:"categories"`
}

// RestaurantSearchRequest is the body of POST /restaurants/search
type RestaurantSearchRequest struct {
	Query      string   `json:"query,omitempty"`
	Location   string   `json:"location,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Categories string   `json:"categories,omitempty"`
	Price      string   `json:"price,omitempty"`
	Radius     int      `json:"radius,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	SortBy     string   `json:"sort_by,omitempty"`
}

// RestaurantSearchResponse is the response of POST /restaurants/search
type RestaurantSearchResponse struct {
	Restaurants []Restaurant `json:"restaurants"`
	Total       int          `json:"total"`
	Query       string       `json:"query,omitempty"`
}
