package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Queryable entity fields. Stores map these onto their own column names.
const (
	FieldCategory   = "category"
	FieldCity       = "city"
	FieldPrice      = "price"
	FieldAvgRating  = "avgRating"
	FieldNumRatings = "numRatings"
)

// Sort keys accepted by Filters.Sort.
const (
	SortRating = "Rating"
	SortReview = "Review"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Filters is the optional filter configuration of an entity listing.
type Filters struct {
	Category string `json:"category,omitempty"`
	City     string `json:"city,omitempty"`
	Price    string `json:"price,omitempty"` // "$$" or "2"
	Sort     string `json:"sort,omitempty"`
}

// QueryBuilder captures read intent. Q is the concrete builder type so that
// chained calls keep their static type.
type QueryBuilder[Q any] interface {
	Where(field string, value any) Q
	OrderBy(field string, dir Direction) Q
}

type Constraint struct {
	Field string
	Value any
}

type Ordering struct {
	Field string
	Dir   Direction
}

// Query is an immutable equality-only read over the entity collection.
// Constraints are conjunctive.
type Query struct {
	Constraints []Constraint
	Orders      []Ordering
}

func (q Query) Where(field string, value any) Query {
	cs := make([]Constraint, len(q.Constraints), len(q.Constraints)+1)
	copy(cs, q.Constraints)
	q.Constraints = append(cs, Constraint{Field: field, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	os := make([]Ordering, len(q.Orders), len(q.Orders)+1)
	copy(os, q.Orders)
	q.Orders = append(os, Ordering{Field: field, Dir: dir})
	return q
}

// MaxPriceTier is the most expensive tier.
const MaxPriceTier = 4

// ParsePriceTier decodes a price filter. The listing UI historically sent the
// tier as a run of currency symbols whose length is the tier ("$$$" = 3);
// a plain digit is accepted as well.
func ParsePriceTier(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty price", ErrInvalidFilter)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > MaxPriceTier {
			return 0, fmt.Errorf("%w: price tier %d out of range", ErrInvalidFilter, n)
		}
		return n, nil
	}
	r := []rune(s)
	for _, c := range r[1:] {
		if c != r[0] {
			return 0, fmt.Errorf("%w: price %q is not a repeated symbol", ErrInvalidFilter, s)
		}
	}
	if len(r) > MaxPriceTier {
		return 0, fmt.Errorf("%w: price tier %d out of range", ErrInvalidFilter, len(r))
	}
	return len(r), nil
}
