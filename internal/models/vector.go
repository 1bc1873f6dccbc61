package models

// VectorRecord is a single point stored in the vector index
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// VectorMatch is a similarity search hit
type VectorMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// RangeFilter bounds a numeric payload field; nil bounds are open
type RangeFilter struct {
	Gte *float64 `json:"gte,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

// FilterCondition is either an exact match or a numeric range
type FilterCondition struct {
	Match any          `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// VectorFilter maps payload fields to conditions. All conditions must hold.
type VectorFilter map[string]FilterCondition

// MatchFilter builds an exact-match condition
func MatchFilter(value any) FilterCondition {
	return FilterCondition{Match: value}
}

// RangeCondition builds a numeric range condition
func RangeCondition(gte, lte *float64) FilterCondition {
	return FilterCondition{Range: &RangeFilter{Gte: gte, Lte: lte}}
}

// CollectionStats summarises the vector collection
type CollectionStats struct {
	VectorCount uint64 `json:"vectors_count"`
	PointCount  uint64 `json:"points_count"`
	Status      string `json:"status"`
}
