package service

import (
	"context"
	"sort"
	"sync"
)

type heldKeysCtxKey struct{}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// CartLocker serializes mutations per aggregate key.
//
// Lock returns a derived context that remembers the keys it holds, so an operation that
// delegates to another locked operation with that context does not deadlock on itself.
// Keys are acquired in sorted order.
type CartLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func NewCartLocker() *CartLocker {
	return &CartLocker{locks: make(map[string]*lockEntry)}
}

func cartLockKey(cartID string) string {
	return "cart:" + cartID
}

func userLockKey(userID string) string {
	return "user:" + userID
}

func (l *CartLocker) Lock(ctx context.Context, keys ...string) (context.Context, func()) {
	held, _ := ctx.Value(heldKeysCtxKey{}).(map[string]struct{})

	wanted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := held[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		wanted = append(wanted, k)
	}
	if len(wanted) == 0 {
		return ctx, func() {}
	}
	sort.Strings(wanted)

	entries := make([]*lockEntry, 0, len(wanted))
	for _, k := range wanted {
		e := l.acquire(k)
		e.mu.Lock()
		entries = append(entries, e)
	}

	next := make(map[string]struct{}, len(held)+len(wanted))
	for k := range held {
		next[k] = struct{}{}
	}
	for _, k := range wanted {
		next[k] = struct{}{}
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			for i := len(entries) - 1; i >= 0; i-- {
				entries[i].mu.Unlock()
				l.release(wanted[i])
			}
		})
	}
	return context.WithValue(ctx, heldKeysCtxKey{}, next), unlock
}

func (l *CartLocker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *CartLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many keys are currently tracked.
func (l *CartLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
