package rate

import "errors"

var (
	// ErrRateLimited is returned once a key has used its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
