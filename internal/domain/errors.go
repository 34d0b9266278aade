package domain

import "errors"

var (
	ErrMissingIdentifier  = errors.New("no entity id has been provided")
	ErrInvalidReview      = errors.New("a valid review has not been provided")
	ErrInvalidImage       = errors.New("a valid image has not been provided")
	ErrInvalidFilter      = errors.New("invalid filter")
	ErrAggregationFailed  = errors.New("rating aggregation failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("not found")
)
