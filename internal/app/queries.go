package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"friendly_eats/internal/domain"
)

// QueryService serves reads. A nil cache disables caching.
type QueryService struct {
	store    domain.EntityStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(s domain.EntityStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

// Cached reads of an entity live under its current generation. Writers move
// the generation after commit, so a reader that loaded the entity before the
// commit can only store its copy under a generation nobody asks for again.
func generationKey(id string) string   { return "entity:" + id + ":gen" }
func entityKey(id, gen string) string  { return "entity:" + id + "@" + gen }
func reviewsKey(id, gen string) string { return "reviews:" + id + "@" + gen }

const initialGeneration = "0"

// generation returns the entity's cache generation. ok is false when the
// cache is absent or unreadable, in which case reads go to the store.
func generation(ctx context.Context, c domain.Cache, id string) (gen string, ok bool) {
	if c == nil {
		return "", false
	}
	found, err := c.Get(ctx, generationKey(id), &gen)
	if err != nil {
		log.Warn().Err(err).Str("entity_id", id).Msg("cache generation read failed")
		return "", false
	}
	if !found || gen == "" {
		return initialGeneration, true
	}
	return gen, true
}

// ListEntities returns every entity matching f. Listings are not cached: the
// key space is one entry per filter combination and they are invalidated by
// every review.
func (s *QueryService) ListEntities(ctx context.Context, f domain.Filters) ([]domain.EntityView, error) {
	q, err := ApplyQueryFilters(domain.Query{}, f)
	if err != nil {
		return nil, err
	}
	es, err := s.store.ListEntities(ctx, q)
	if err != nil {
		log.Error().Err(err).Interface("filters", f).Msg("list entities failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return toEntityViews(es), nil
}

func (s *QueryService) GetEntity(ctx context.Context, id string) (domain.EntityView, error) {
	if id == "" {
		return domain.EntityView{}, domain.ErrMissingIdentifier
	}
	gen, cached := generation(ctx, s.cache, id)
	var ev domain.EntityView
	if cached {
		if ok, _ := s.cache.Get(ctx, entityKey(id, gen), &ev); ok {
			return ev, nil
		}
	}
	ev, err := s.loadEntity(ctx, id)
	if err != nil {
		return domain.EntityView{}, err
	}
	if cached {
		_ = s.cache.Set(ctx, entityKey(id, gen), ev, int(s.cacheTTL.Seconds()))
	}
	return ev, nil
}

// ListReviews returns an entity's reviews, newest first.
func (s *QueryService) ListReviews(ctx context.Context, id string) ([]domain.ReviewView, error) {
	if id == "" {
		return nil, domain.ErrMissingIdentifier
	}
	gen, cached := generation(ctx, s.cache, id)
	var out []domain.ReviewView
	if cached {
		if ok, _ := s.cache.Get(ctx, reviewsKey(id, gen), &out); ok {
			return out, nil
		}
	}
	out, err := s.loadReviews(ctx, id)
	if err != nil {
		return nil, err
	}
	if cached {
		// The cache may refuse oversized lists; the read still succeeds.
		_ = s.cache.Set(ctx, reviewsKey(id, gen), out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

// loadEntity and loadReviews read the store directly. Live snapshots use
// them so a change event is always answered with committed data.
func (s *QueryService) loadEntity(ctx context.Context, id string) (domain.EntityView, error) {
	e, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return domain.EntityView{}, backendErr(err, id, "get entity failed")
	}
	return toEntityView(e), nil
}

func (s *QueryService) loadReviews(ctx context.Context, id string) ([]domain.ReviewView, error) {
	rs, err := s.store.ListReviews(ctx, id)
	if err != nil {
		return nil, backendErr(err, id, "list reviews failed")
	}
	return toReviewViews(rs), nil
}

// backendErr passes ErrNotFound through and wraps everything else.
func backendErr(err error, id, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	log.Error().Err(err).Str("entity_id", id).Msg(msg)
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
}
