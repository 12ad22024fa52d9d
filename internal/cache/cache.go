package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the non-authoritative key-value store holding snapshots.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// UnavailableError reports a cache backend failure (connectivity, timeout).
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a cache backend failure.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
