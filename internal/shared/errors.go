package shared

import "errors"

var (
	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrSyncDisabled       = errors.New("sender sync disabled")

	// API errors
	ErrAPIRequest  = errors.New("API request failed")
	ErrRateLimited = errors.New("rate limited")

	// Storage errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrCacheStore    = errors.New("cache store failure")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidFlag     = errors.New("invalid flag value")
)
