package rate

import "errors"

var (
	// ErrRateLimited is returned once an identifier exceeds its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
