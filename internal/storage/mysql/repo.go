package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/observability"
	"friendly_eats/internal/domain"
)

// queryer is what *sql.DB and *sql.Tx have in common.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

const defaultMaxAttempts = 5

type Repo struct {
	db          *sql.DB
	maxAttempts int
}

func New(db *sql.DB) *Repo { return &Repo{db: db, maxAttempts: defaultMaxAttempts} }

// WithMaxAttempts bounds how many times RunTransaction runs fn.
func (r *Repo) WithMaxAttempts(n int) *Repo {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *Repo) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			observability.ObserveTxRetry()
			if !sleepCtx(ctx, backoff(attempt-1)) {
				return ctx.Err()
			}
		}
		if err = r.runOnce(ctx, fn); err == nil || !retryable(err) {
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("transaction conflict, retrying")
	}
	return err
}

func (r *Repo) runOnce(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(ctx, &Tx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (r *Repo) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return scanEntity(r.db.QueryRowContext(ctx, getEntitySQL, id))
}

func (r *Repo) ListEntities(ctx context.Context, q domain.Query) ([]domain.Entity, error) {
	query, args, err := buildListSQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListReviews(ctx context.Context, entityID string) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.EntityID, &rv.Rating, &rv.Text, &rv.UserID, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdatePhoto(ctx context.Context, id, url string) error {
	res, err := r.db.ExecContext(ctx, updatePhotoSQL, url, id)
	if err != nil {
		return err
	}
	// MySQL reports changed rows, so an unchanged photo looks like a miss.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exists(ctx, r.db, id)
	}
	return nil
}

// Tx is the transactional view handed to RunTransaction callbacks.
type Tx struct{ q queryer }

func (t *Tx) GetEntity(ctx context.Context, id string) (domain.Entity, error) {
	return scanEntity(t.q.QueryRowContext(ctx, getEntityForUpdateSQL, id))
}

func (t *Tx) CreateEntity(ctx context.Context, e domain.Entity) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := t.q.ExecContext(ctx, insertEntitySQL,
		id,
		e.Name,
		e.Category,
		e.City,
		e.Price,
		e.Photo,
		valInt(e.NumRatings),
		valF64(e.SumRating),
		e.AvgRating,
		valTime(e.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (t *Tx) UpdateRatings(ctx context.Context, id string, r domain.Rating) error {
	res, err := t.q.ExecContext(ctx, updateRatingsSQL, r.NumRatings, r.SumRating, r.AvgRating, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exists(ctx, t.q, id)
	}
	return nil
}

func (t *Tx) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	r.ID = uuid.NewString()
	if _, err := t.q.ExecContext(ctx, insertReviewSQL,
		r.ID,
		r.EntityID,
		r.Rating,
		r.Text,
		r.UserID,
		valTime(r.CreatedAt),
	); err != nil {
		return domain.Review{}, err
	}
	if r.CreatedAt.IsZero() {
		if err := t.q.QueryRowContext(ctx, reviewCreatedAtSQL, r.ID).Scan(&r.CreatedAt); err != nil {
			return domain.Review{}, err
		}
	}
	return r, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanEntity(s scanner) (domain.Entity, error) {
	var e domain.Entity
	var num sql.NullInt64
	var sum sql.NullFloat64
	if err := s.Scan(
		&e.ID,
		&e.Name,
		&e.Category,
		&e.City,
		&e.Price,
		&e.Photo,
		&num,
		&sum,
		&e.AvgRating,
		&e.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Entity{}, domain.ErrNotFound
		}
		return domain.Entity{}, err
	}
	if num.Valid {
		n := int(num.Int64)
		e.NumRatings = &n
	}
	if sum.Valid {
		f := sum.Float64
		e.SumRating = &f
	}
	return e, nil
}

func exists(ctx context.Context, q queryer, id string) error {
	var one int
	if err := q.QueryRowContext(ctx, entityExistsSQL, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

var (
	_ domain.EntityStore = (*Repo)(nil)
	_ domain.Tx          = (*Tx)(nil)
)
