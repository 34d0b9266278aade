package domain

import (
	"io"
	"time"
)

// Entity is a rateable listing (restaurant, travel package).
// NumRatings/SumRating are nil when the store has never aggregated a review.
type Entity struct {
	ID         string
	Name       string
	Category   string
	City       string
	Price      int // tier 1..4
	Photo      string
	NumRatings *int
	SumRating  *float64
	AvgRating  float64
	CreatedAt  time.Time
}

// Ratings returns the aggregate counters, treating missing values as zero.
func (e Entity) Ratings() (num int, sum float64) {
	if e.NumRatings != nil {
		num = *e.NumRatings
	}
	if e.SumRating != nil {
		sum = *e.SumRating
	}
	return num, sum
}

type Review struct {
	ID        string
	EntityID  string
	Rating    int
	Text      string
	UserID    string
	CreatedAt time.Time // assigned by the store on insert
}

// ReviewInput is what a user submits. Any client timestamp is ignored.
type ReviewInput struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Text   string `json:"text" validate:"max=4000"`
	UserID string `json:"userId" validate:"required"`
}

// Image is an upload payload; Name is the original file name.
type Image struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Rating is a new aggregate after one more review.
type Rating struct {
	NumRatings int
	SumRating  float64
	AvgRating  float64
}

// Next advances the aggregate by exactly one review.
func Next(num int, sum float64, rating int) Rating {
	n := num + 1
	s := sum + float64(rating)
	return Rating{NumRatings: n, SumRating: s, AvgRating: s / float64(n)}
}
