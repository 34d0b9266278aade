package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/observability"
	"friendly_eats/internal/domain"
)

var validate = validator.New()

// changes retires cached reads and tells live subscribers what moved.
// Both are best-effort: callers have already committed.
type changes struct {
	cache  domain.Cache
	broker domain.Broker
}

func (c changes) entityChanged(ctx context.Context, id string, reviews bool) {
	if old, ok := generation(ctx, c.cache, id); ok {
		// A fresh generation hides every copy loaded before this commit.
		if err := c.cache.Set(ctx, generationKey(id), uuid.NewString(), 0); err != nil {
			log.Warn().Err(err).Str("entity_id", id).Msg("cache generation bump failed")
		}
		if err := c.cache.Del(ctx, entityKey(id, old), reviewsKey(id, old)); err != nil {
			log.Warn().Err(err).Str("entity_id", id).Msg("cache invalidation failed")
		}
	}
	if c.broker == nil {
		return
	}
	topics := []string{domain.TopicEntities, domain.TopicEntity(id)}
	if reviews {
		topics = append(topics, domain.TopicReviews(id))
	}
	for _, t := range topics {
		if err := c.broker.Publish(ctx, t, []byte(id)); err != nil {
			log.Warn().Err(err).Str("topic", t).Msg("publish change failed")
		}
	}
}

type RatingService struct {
	store domain.EntityStore
	changes
}

func NewRatingService(s domain.EntityStore, cache domain.Cache, b domain.Broker) *RatingService {
	return &RatingService{store: s, changes: changes{cache: cache, broker: b}}
}

// AddReview stores review under the entity and folds its rating into the
// entity's running count, sum and average in one transaction.
func (s *RatingService) AddReview(ctx context.Context, entityID string, review *domain.ReviewInput) (domain.ReviewView, error) {
	if entityID == "" {
		return domain.ReviewView{}, domain.ErrMissingIdentifier
	}
	if review == nil {
		return domain.ReviewView{}, domain.ErrInvalidReview
	}
	if err := validate.Struct(review); err != nil {
		return domain.ReviewView{}, fmt.Errorf("%w: %w", domain.ErrInvalidReview, err)
	}
	in := *review

	var saved domain.Review
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		e, err := tx.GetEntity(ctx, entityID)
		if err != nil {
			return err
		}
		num, sum := e.Ratings()
		if err := tx.UpdateRatings(ctx, entityID, domain.Next(num, sum, in.Rating)); err != nil {
			return err
		}
		saved, err = tx.AddReview(ctx, domain.Review{
			EntityID: entityID,
			Rating:   in.Rating,
			Text:     in.Text,
			UserID:   in.UserID,
		})
		return err
	})
	if err != nil {
		observability.ObserveAggregation("error")
		log.Error().Err(err).Str("entity_id", entityID).Msg("there was an error adding the rating to the entity")
		return domain.ReviewView{}, fmt.Errorf("%w: %w", domain.ErrAggregationFailed, err)
	}
	observability.ObserveAggregation("ok")

	s.entityChanged(ctx, entityID, true)
	return toReviewView(saved), nil
}

type ImageService struct {
	store   domain.EntityStore
	storage domain.ObjectStorage
	changes
}

func NewImageService(s domain.EntityStore, o domain.ObjectStorage, cache domain.Cache, b domain.Broker) *ImageService {
	return &ImageService{store: s, storage: o, changes: changes{cache: cache, broker: b}}
}

// ImagePath is where an entity's image named fileName is stored. Callers
// pass an id accepted by validSegment and a name whose base is a file.
func ImagePath(entityID, fileName string) string {
	return path.Join("images", entityID, path.Base(fileName))
}

// validSegment reports whether s can be used as one path element without
// path.Join collapsing or splitting it.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\")
}

// UpdateImage uploads img and points the entity's photo at it. Upload and
// photo update are separate writes; a failure between them leaves the blob
// orphaned.
func (s *ImageService) UpdateImage(ctx context.Context, entityID string, img *domain.Image) (string, error) {
	if !validSegment(entityID) {
		return "", domain.ErrMissingIdentifier
	}
	if img == nil || img.Body == nil || !validSegment(path.Base(img.Name)) {
		return "", domain.ErrInvalidImage
	}
	if s.storage == nil {
		return "", fmt.Errorf("%w: object storage is not configured", domain.ErrBackendUnavailable)
	}
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		log.Error().Err(err).Str("entity_id", entityID).Msg("entity lookup before upload failed")
		return "", fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	url, err := s.storage.Upload(ctx, ImagePath(entityID, img.Name), img.Body)
	if err != nil {
		log.Error().Err(err).Str("entity_id", entityID).Msg("image upload failed")
		return "", fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	if err := s.store.UpdatePhoto(ctx, entityID, url); err != nil {
		log.Error().Err(err).Str("entity_id", entityID).Str("url", url).Msg("photo update failed; uploaded blob is orphaned")
		if errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}

	s.entityChanged(ctx, entityID, false)
	return url, nil
}
