package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"friendly_eats/internal/domain"
)

type fakeListing struct {
	name, category, city, photo string
	price                       int
}

var fakeListings = []fakeListing{
	{"Bella Cucina", "Italian", "San Francisco", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_1.png", 2},
	{"Spice Route", "Indian", "London", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_2.png", 1},
	{"Taco Norte", "Mexican", "Austin", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_3.png", 1},
	{"Sakura House", "Japanese", "Seattle", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_4.png", 3},
	{"Le Petit Bistro", "French", "New York", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_5.png", 4},
	{"Harbor Grill", "Seafood", "Boston", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_6.png", 3},
	{"Golden Dragon", "Chinese", "San Francisco", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_7.png", 2},
	{"Alpine Escape", "Mountain Package", "Denver", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_8.png", 4},
	{"Island Hopper", "Beach Package", "Honolulu", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_9.png", 3},
	{"Smoke & Oak", "BBQ", "Austin", "https://storage.googleapis.com/firestorequickstarts.appspot.com/food_10.png", 2},
}

var fakeReviews = []struct {
	rating int
	text   string
}{
	{1, "This was awful! Totally inedible."},
	{1, "Disappointing."},
	{2, "Could be better."},
	{3, "Average. Nothing to write home about."},
	{4, "Pretty good, would come back."},
	{5, "Fantastic, the best in town!"},
	{4, "Friendly staff and quick service."},
	{3, "Decent value for the price."},
	{5, "An unforgettable trip."},
	{2, "Too crowded."},
}

const maxFakeReviews = 5

// GenerateFake builds one listing with up to five reviews. Reviews are dated
// after the listing and the listing's aggregate matches its reviews.
func GenerateFake(r *rand.Rand, now time.Time) (domain.Entity, []domain.Review) {
	l := fakeListings[r.IntN(len(fakeListings))]
	created := now.Add(-time.Duration(r.Int64N(int64(365 * 24 * time.Hour))))

	n := r.IntN(maxFakeReviews + 1)
	reviews := make([]domain.Review, 0, n)
	sum := 0.0
	for range n {
		fr := fakeReviews[r.IntN(len(fakeReviews))]
		span := now.Sub(created)
		reviews = append(reviews, domain.Review{
			Rating:    fr.rating,
			Text:      fakeReviews[r.IntN(len(fakeReviews))].text,
			UserID:    fmt.Sprintf("User #%d", r.IntN(1000)),
			CreatedAt: created.Add(time.Duration(r.Int64N(int64(span) + 1))),
		})
		sum += float64(fr.rating)
	}
	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}
	num := n
	return domain.Entity{
		Name:       l.name,
		Category:   l.category,
		City:       l.city,
		Price:      l.price,
		Photo:      l.photo,
		NumRatings: &num,
		SumRating:  &sum,
		AvgRating:  avg,
		CreatedAt:  created,
	}, reviews
}

type SeedService struct {
	store domain.EntityStore
	rnd   *rand.Rand
	now   func() time.Time
	changes
}

func NewSeedService(s domain.EntityStore, cache domain.Cache, b domain.Broker, seed uint64) *SeedService {
	return &SeedService{
		store:   s,
		rnd:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:     time.Now,
		changes: changes{cache: cache, broker: b},
	}
}

// SeedOne writes one fake listing and its reviews atomically and returns the
// new entity id. Not safe for concurrent use; give each worker its own.
func (s *SeedService) SeedOne(ctx context.Context) (string, error) {
	e, reviews := GenerateFake(s.rnd, s.now())

	var id string
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if id, err = tx.CreateEntity(ctx, e); err != nil {
			return err
		}
		for _, r := range reviews {
			r.EntityID = id
			if _, err := tx.AddReview(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	s.entityChanged(ctx, id, true)
	return id, nil
}
