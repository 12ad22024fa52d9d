package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ikkim/cart-sync/internal/app/repository"
	"github.com/ikkim/cart-sync/internal/app/snapshot"
	"github.com/ikkim/cart-sync/internal/cache"
	"github.com/ikkim/cart-sync/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingCache counts writes per key and can be switched into a failing backend.
type recordingCache struct {
	cache.Cache

	mu      sync.Mutex
	sets    map[string]int
	deletes map[string]int
	failing bool
}

func newRecordingCache() *recordingCache {
	return &recordingCache{
		Cache:   cache.NewMemoryCache(0),
		sets:    make(map[string]int),
		deletes: make(map[string]int),
	}
}

var errBackendDown = errors.New("connection refused")

func (r *recordingCache) setFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

func (r *recordingCache) isFailing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failing
}

func (r *recordingCache) Get(ctx context.Context, key string) ([]byte, error) {
	if r.isFailing() {
		return nil, &cache.UnavailableError{Op: "get", Key: key, Err: errBackendDown}
	}
	return r.Cache.Get(ctx, key)
}

func (r *recordingCache) Set(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.sets[key]++
	failing := r.failing
	r.mu.Unlock()

	if failing {
		return &cache.UnavailableError{Op: "set", Key: key, Err: errBackendDown}
	}
	return r.Cache.Set(ctx, key, value)
}

func (r *recordingCache) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	for _, k := range keys {
		r.deletes[k]++
	}
	failing := r.failing
	r.mu.Unlock()

	if failing {
		return &cache.UnavailableError{Op: "del", Err: errBackendDown}
	}
	return r.Cache.Delete(ctx, keys...)
}

func (r *recordingCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	if r.isFailing() {
		return nil, &cache.UnavailableError{Op: "scan", Key: prefix, Err: errBackendDown}
	}
	return r.Cache.Keys(ctx, prefix)
}

func (r *recordingCache) setCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[key]
}

func (r *recordingCache) totalSets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.sets {
		n += c
	}
	return n
}

func (r *recordingCache) resetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[string]int)
	r.deletes = make(map[string]int)
}

func (r *recordingCache) has(t *testing.T, key string) bool {
	_, err := r.Cache.Get(context.Background(), key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (r *recordingCache) cart(t *testing.T, key string) *snapshot.Cart {
	data, err := r.Cache.Get(context.Background(), key)
	require.NoError(t, err, key)
	snap, err := snapshot.DecodeCart(data)
	require.NoError(t, err)
	return snap
}

func (r *recordingCache) item(t *testing.T, key string) *snapshot.Item {
	data, err := r.Cache.Get(context.Background(), key)
	require.NoError(t, err, key)
	snap, err := snapshot.DecodeItem(data)
	require.NoError(t, err)
	return snap
}

func (r *recordingCache) wipe(t *testing.T) {
	ctx := context.Background()
	keys, err := r.Cache.Keys(ctx, "")
	require.NoError(t, err)
	require.NoError(t, r.Cache.Delete(ctx, keys...))
}

type serviceFixture struct {
	carts  CartService
	merges MergeService
	cache  *recordingCache
	repo   repository.CartRepository
	db     *gorm.DB
	locks  *CartLocker
}

func setupServiceTest(t *testing.T) *serviceFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := repository.NewCartRepository(testDB)
	rc := newRecordingCache()
	locks := NewCartLocker()
	merges := NewMergeService(repo, rc, locks)
	carts := NewCartService(repo, rc, locks, merges)

	return &serviceFixture{
		carts:  carts,
		merges: merges,
		cache:  rc,
		repo:   repo,
		db:     testDB,
		locks:  locks,
	}
}

func strPtr(s string) *string { return &s }

func opts(pairs ...string) []OptionInput {
	out := make([]OptionInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, OptionInput{Attribute: pairs[i], Value: pairs[i+1]})
	}
	return out
}
