package credential

import "errors"

var (
	// ErrNotFound is returned by Load when no token is stored.
	ErrNotFound = errors.New("credential not found")
	// ErrRedisUnavailable wraps redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrEmptyToken is returned by Save for an empty token.
	ErrEmptyToken = errors.New("empty credential token")
)
