package app

import (
	"time"

	"friendly_eats/internal/domain"
)

// toEntityView flattens store records into plain data. Timestamps are
// normalized to UTC wall-clock values.
func toEntityView(e domain.Entity) domain.EntityView {
	num, sum := e.Ratings()
	avg := e.AvgRating
	if num == 0 {
		avg = 0
	}
	return domain.EntityView{
		ID:         e.ID,
		Name:       e.Name,
		Category:   e.Category,
		City:       e.City,
		Price:      e.Price,
		Photo:      e.Photo,
		NumRatings: num,
		SumRating:  sum,
		AvgRating:  avg,
		Timestamp:  plainTime(e.CreatedAt),
	}
}

func toEntityViews(es []domain.Entity) []domain.EntityView {
	out := make([]domain.EntityView, 0, len(es))
	for _, e := range es {
		out = append(out, toEntityView(e))
	}
	return out
}

func toReviewView(r domain.Review) domain.ReviewView {
	return domain.ReviewView{
		ID:        r.ID,
		EntityID:  r.EntityID,
		Rating:    r.Rating,
		Text:      r.Text,
		UserID:    r.UserID,
		Timestamp: plainTime(r.CreatedAt),
	}
}

func toReviewViews(rs []domain.Review) []domain.ReviewView {
	out := make([]domain.ReviewView, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReviewView(r))
	}
	return out
}

// plainTime drops the monotonic reading and location so that values survive
// a JSON round trip through the cache unchanged.
func plainTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Round(0)
}
