package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/observability"
	"friendly_eats/internal/domain"
)

var errNilCallback = errors.New("the callback parameter is not a function")

// LiveService keeps readers up to date. Every Watch call delivers the current
// snapshot, then a fresh one each time the topic reports a change, until the
// returned Unsubscribe is called or ctx ends.
type LiveService struct {
	q      *QueryService
	broker domain.Broker
}

func NewLiveService(q *QueryService, b domain.Broker) *LiveService {
	return &LiveService{q: q, broker: b}
}

func (s *LiveService) WatchEntities(ctx context.Context, f domain.Filters, cb func([]domain.EntityView)) (domain.Unsubscribe, error) {
	if cb == nil {
		return nil, errNilCallback
	}
	if _, err := ApplyQueryFilters(domain.Query{}, f); err != nil {
		return nil, err
	}
	return s.watch(ctx, domain.TopicEntities, func(ctx context.Context) error {
		es, err := s.q.ListEntities(ctx, f)
		if err != nil {
			return err
		}
		cb(es)
		return nil
	})
}

func (s *LiveService) WatchEntity(ctx context.Context, id string, cb func(domain.EntityView)) (domain.Unsubscribe, error) {
	if id == "" {
		return nil, domain.ErrMissingIdentifier
	}
	if cb == nil {
		return nil, errNilCallback
	}
	return s.watch(ctx, domain.TopicEntity(id), func(ctx context.Context) error {
		e, err := s.q.loadEntity(ctx, id)
		if err != nil {
			return err
		}
		cb(e)
		return nil
	})
}

func (s *LiveService) WatchReviews(ctx context.Context, id string, cb func([]domain.ReviewView)) (domain.Unsubscribe, error) {
	if id == "" {
		return nil, domain.ErrMissingIdentifier
	}
	if cb == nil {
		return nil, errNilCallback
	}
	return s.watch(ctx, domain.TopicReviews(id), func(ctx context.Context) error {
		rs, err := s.q.loadReviews(ctx, id)
		if err != nil {
			return err
		}
		cb(rs)
		return nil
	})
}

// watch subscribes before taking the first snapshot so no change between the
// two is lost. The returned func must not be called from inside refresh.
func (s *LiveService) watch(ctx context.Context, topic string, refresh func(context.Context) error) (domain.Unsubscribe, error) {
	feed, err := s.broker.Subscribe(ctx, topic)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("subscribe failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	observability.LiveSubscriptions.Inc()

	go func() {
		defer close(done)
		defer observability.LiveSubscriptions.Dec()

		deliver := func() {
			if err := refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("topic", topic).Msg("live refresh failed")
			}
		}
		deliver()

		msgs := feed.Messages()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				// one snapshot covers a burst of notifications
				for drained := false; !drained; {
					select {
					case _, ok := <-msgs:
						if !ok {
							drained = true
						}
					default:
						drained = true
					}
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := feed.Close(); err != nil {
				log.Debug().Err(err).Str("topic", topic).Msg("feed close")
			}
			<-done
		})
	}, nil
}
