package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"friendly_eats/internal/domain"
)

// ---- store ----

// memStore serializes transactions with one lock. conflicts makes the next
// n commits fail as if a concurrent writer won, forcing fn to run again.
type memStore struct {
	mu        sync.Mutex
	entities  map[string]domain.Entity
	reviews   map[string][]domain.Review
	conflicts int
	failWith  error
	runs      int // fn invocations
	seq       int
	now       time.Time

	calls atomic.Int64 // every store method
}

func newMemStore(es ...domain.Entity) *memStore {
	s := &memStore{
		entities: map[string]domain.Entity{},
		reviews:  map[string][]domain.Review{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, e := range es {
		s.entities[e.ID] = e
	}
	return s
}

func (s *memStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for {
		s.runs++
		tx := &memTx{s: s, staged: map[string]domain.Entity{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.conflicts > 0 {
			s.conflicts--
			continue
		}
		for id, e := range tx.staged {
			s.entities[id] = e
		}
		for _, r := range tx.added {
			s.reviews[r.EntityID] = append(s.reviews[r.EntityID], r)
		}
		return nil
	}
}

func (s *memStore) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, domain.ErrNotFound
	}
	return e, nil
}

func field(e domain.Entity, f string) any {
	num, _ := e.Ratings()
	switch f {
	case domain.FieldCategory:
		return e.Category
	case domain.FieldCity:
		return e.City
	case domain.FieldPrice:
		return e.Price
	case domain.FieldAvgRating:
		return e.AvgRating
	case domain.FieldNumRatings:
		return float64(num)
	}
	return nil
}

func (s *memStore) ListEntities(ctx context.Context, q domain.Query) ([]domain.Entity, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Entity
next:
	for _, e := range s.entities {
		for _, c := range q.Constraints {
			if field(e, c.Field) != c.Value {
				continue next
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		for _, o := range q.Orders {
			a, b := field(out[i], o.Field).(float64), field(out[j], o.Field).(float64)
			if a != b {
				if o.Dir == domain.Desc {
					return a > b
				}
				return a < b
			}
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) ListReviews(ctx context.Context, id string) ([]domain.Review, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := append([]domain.Review(nil), s.reviews[id]...)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) })
	return rs, nil
}

func (s *memStore) UpdatePhoto(ctx context.Context, id, url string) error {
	s.calls.Add(1)
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

type memTx struct {
	s      *memStore
	staged map[string]domain.Entity
	added  []domain.Review
}

func (t *memTx) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	if e, ok := t.staged[id]; ok {
		return e, nil
	}
	e, ok := t.s.entities[id]
	if !ok {
		return domain.Entity{}, domain.ErrNotFound
	}
	return e, nil
}

func (t *memTx) CreateEntity(ctx context.Context, e domain.Entity) (string, error) {
	t.s.seq++
	e.ID = fmt.Sprintf("E%d", t.s.seq)
	t.staged[e.ID] = e
	return e.ID, nil
}

func (t *memTx) UpdateRatings(ctx context.Context, id string, r domain.Rating) error {
	e, err := t.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	num, sum := r.NumRatings, r.SumRating
	e.NumRatings, e.SumRating, e.AvgRating = &num, &sum, r.AvgRating
	t.staged[id] = e
	return nil
}

func (t *memTx) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	t.s.seq++
	r.ID = fmt.Sprintf("V%d", t.s.seq)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.s.now.Add(time.Duration(t.s.seq) * time.Second)
	}
	t.added = append(t.added, r)
	return r, nil
}

// ---- cache ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *string:
		*d = v.(string)
	case *domain.EntityView:
		*d = v.(domain.EntityView)
	case *[]domain.ReviewView:
		*d = v.([]domain.ReviewView)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.store, k)
		c.dels = append(c.dels, k)
	}
	return nil
}

// ---- broker ----

type memBroker struct {
	mu        sync.Mutex
	subs      map[string][]*memFeed
	published []string
}

func newMemBroker() *memBroker { return &memBroker{subs: map[string][]*memFeed{}} }

func (b *memBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, topic)
	for _, f := range b.subs[topic] {
		f.send(payload)
	}
	return nil
}

func (b *memBroker) Subscribe(ctx context.Context, topic string) (domain.Feed, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := &memFeed{ch: make(chan []byte, 16), b: b, topic: topic}
	b.subs[topic] = append(b.subs[topic], f)
	return f, nil
}

func (b *memBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

func (b *memBroker) subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

type memFeed struct {
	ch     chan []byte
	b      *memBroker
	topic  string
	closed bool
}

// send runs under the broker lock.
func (f *memFeed) send(p []byte) {
	if f.closed {
		return
	}
	f.ch <- p
}

func (f *memFeed) Messages() <-chan []byte { return f.ch }

func (f *memFeed) Close() error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	subs := f.b.subs[f.topic]
	for i, s := range subs {
		if s == f {
			f.b.subs[f.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(f.ch)
	return nil
}

// ---- object storage ----

type fakeStorage struct {
	paths []string
	err   error
}

func (f *fakeStorage) Upload(ctx context.Context, path string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return "https://cdn.example.com/" + path, nil
}

func ptr[T any](v T) *T { return &v }
