package ratelimit

import "errors"

var (
	// ErrRedisUnavailable is returned when the underlying Redis call fails.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownCategory is returned for a category with no configured rule.
	ErrUnknownCategory = errors.New("unknown rate limit category")
)
