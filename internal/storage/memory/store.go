// Package memory is a process-local EntityStore for development and tests.
// Transactions are serialized by a single lock, so they never conflict.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"friendly_eats/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	entities map[string]domain.Entity
	reviews  map[string][]domain.Review
	now      func() time.Time
}

func New() *Store {
	return &Store{
		entities: map[string]domain.Entity{},
		reviews:  map[string][]domain.Review{},
		now:      time.Now,
	}
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{s: s, staged: map[string]domain.Entity{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, e := range tx.staged {
		s.entities[id] = e
	}
	for _, r := range tx.added {
		s.reviews[r.EntityID] = append(s.reviews[r.EntityID], r)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *Store) get(id string) (domain.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, domain.ErrNotFound
	}
	return clone(e), nil
}

func (s *Store) ListEntities(ctx context.Context, q domain.Query) ([]domain.Entity, error) {
	for _, c := range q.Constraints {
		if _, err := value(domain.Entity{}, c.Field); err != nil {
			return nil, err
		}
	}
	for _, o := range q.Orders {
		if _, err := value(domain.Entity{}, o.Field); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	out := make([]domain.Entity, 0, len(s.entities))
next:
	for _, e := range s.entities {
		for _, c := range q.Constraints {
			v, _ := value(e, c.Field)
			if v != c.Value {
				continue next
			}
		}
		out = append(out, clone(e))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		for _, o := range q.Orders {
			a, _ := value(out[i], o.Field)
			b, _ := value(out[j], o.Field)
			if c := compare(a, b); c != 0 {
				if o.Dir == domain.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListReviews(ctx context.Context, entityID string) ([]domain.Review, error) {
	s.mu.Lock()
	rs := append([]domain.Review(nil), s.reviews[entityID]...)
	s.mu.Unlock()
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
	return rs, nil
}

func (s *Store) UpdatePhoto(ctx context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Photo = url
	s.entities[id] = e
	return nil
}

// Tx stages writes and applies them when the callback returns nil.
type Tx struct {
	s      *Store
	staged map[string]domain.Entity
	added  []domain.Review
}

func (t *Tx) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	if e, ok := t.staged[id]; ok {
		return clone(e), nil
	}
	return t.s.get(id)
}

func (t *Tx) CreateEntity(ctx context.Context, e domain.Entity) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.s.now()
	}
	t.staged[e.ID] = clone(e)
	return e.ID, nil
}

func (t *Tx) UpdateRatings(ctx context.Context, id string, r domain.Rating) error {
	e, err := t.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	num, sum := r.NumRatings, r.SumRating
	e.NumRatings, e.SumRating, e.AvgRating = &num, &sum, r.AvgRating
	t.staged[id] = e
	return nil
}

func (t *Tx) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	if _, err := t.GetEntity(ctx, r.EntityID); err != nil {
		return domain.Review{}, err
	}
	r.ID = uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.s.now()
	}
	t.added = append(t.added, r)
	return r, nil
}

func clone(e domain.Entity) domain.Entity {
	if e.NumRatings != nil {
		n := *e.NumRatings
		e.NumRatings = &n
	}
	if e.SumRating != nil {
		f := *e.SumRating
		e.SumRating = &f
	}
	return e
}

func value(e domain.Entity, field string) (any, error) {
	switch field {
	case domain.FieldCategory:
		return e.Category, nil
	case domain.FieldCity:
		return e.City, nil
	case domain.FieldPrice:
		return e.Price, nil
	case domain.FieldAvgRating:
		return e.AvgRating, nil
	case domain.FieldNumRatings:
		num, _ := e.Ratings()
		return num, nil
	}
	return nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidFilter, field)
}

func compare(a, b any) int {
	switch x := a.(type) {
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

var (
	_ domain.EntityStore = (*Store)(nil)
	_ domain.Tx          = (*Tx)(nil)
)
