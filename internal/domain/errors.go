package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrMalformed        = errors.New("malformed payload")
	ErrInsufficientData = errors.New("insufficient price data")
	ErrContestFull      = errors.New("contest already has two baskets")
	ErrContestResolved  = errors.New("contest already resolved")
	ErrLockHeld         = errors.New("lock already held")
	ErrContextDone      = errors.New("context cancelled")
)
