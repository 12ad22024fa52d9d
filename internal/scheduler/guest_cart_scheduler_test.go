package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	result  int
	err     error
}

func (p *fakePurger) PurgeGuestCarts(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.result, p.err
}

func (p *fakePurger) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestGuestCartScheduler_RunOnceUsesTTL(t *testing.T) {
	purger := &fakePurger{result: 3}
	s := NewGuestCartScheduler(purger, 48*time.Hour, "@hourly")
	fixed := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, fixed.Add(-48*time.Hour), purger.cutoffs[0])
}

func TestGuestCartScheduler_RunOncePropagatesError(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	s := NewGuestCartScheduler(purger, time.Hour, "@hourly")

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestGuestCartScheduler_DisabledWithoutTTL(t *testing.T) {
	purger := &fakePurger{}
	s := NewGuestCartScheduler(purger, 0, "@every 1s")

	require.NoError(t, s.Start())
	s.Stop()

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, purger.calls())
}

func TestGuestCartScheduler_InvalidSchedule(t *testing.T) {
	s := NewGuestCartScheduler(&fakePurger{}, time.Hour, "not a schedule")
	assert.Error(t, s.Start())
}

func TestGuestCartScheduler_RunsOnSchedule(t *testing.T) {
	purger := &fakePurger{}
	s := NewGuestCartScheduler(purger, time.Hour, "@every 1s")

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return purger.calls() > 0 }, 3*time.Second, 50*time.Millisecond)
}
