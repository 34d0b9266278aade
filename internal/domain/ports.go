package domain

import (
	"context"
	"io"
)

// EntityStore is the document store holding the entity collection and each
// entity's reviews.
type EntityStore interface {
	// RunTransaction runs fn inside one all-or-nothing transaction. The store
	// may run fn more than once when it detects a conflicting write, so fn
	// must only touch state through tx.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Read paths
	GetEntity(ctx context.Context, id string) (Entity, error)
	ListEntities(ctx context.Context, q Query) ([]Entity, error)
	ListReviews(ctx context.Context, entityID string) ([]Review, error)

	// Write paths outside the rating transaction
	UpdatePhoto(ctx context.Context, id, url string) error
}

// Tx is the view of the store available inside RunTransaction.
type Tx interface {
	GetEntity(ctx context.Context, id string) (Entity, error)
	CreateEntity(ctx context.Context, e Entity) (string, error)
	UpdateRatings(ctx context.Context, id string, r Rating) error
	// AddReview stores r under its entity. A zero CreatedAt is replaced by
	// the store's clock; the returned review carries the assigned id and time.
	AddReview(ctx context.Context, r Review) (Review, error)
}

// ObjectStorage holds uploaded blobs.
type ObjectStorage interface {
	// Upload writes body at path and returns a durable public URL.
	Upload(ctx context.Context, path string, body io.Reader) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, keys ...string) error
}

// Broker fans out change notifications between processes.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Feed, error)
}

// Feed is one open subscription on a Broker.
type Feed interface {
	Messages() <-chan []byte
	Close() error
}

// Unsubscribe cancels a live subscription. It is safe to call more than once.
type Unsubscribe func()
