package scheduler

import (
	"context"
	"time"

	"github.com/ikkim/cart-sync/pkg/logger"
	"github.com/robfig/cron/v3"
)

// GuestCartPurger removes guest carts untouched since cutoff.
type GuestCartPurger interface {
	PurgeGuestCarts(ctx context.Context, cutoff time.Time) (int, error)
}

// GuestCartScheduler retires abandoned guest carts on a cron schedule.
type GuestCartScheduler struct {
	cron     *cron.Cron
	purger   GuestCartPurger
	ttl      time.Duration
	schedule string
	now      func() time.Time
}

func NewGuestCartScheduler(purger GuestCartPurger, ttl time.Duration, schedule string) *GuestCartScheduler {
	return &GuestCartScheduler{
		cron:     cron.New(),
		purger:   purger,
		ttl:      ttl,
		schedule: schedule,
		now:      time.Now,
	}
}

// Start registers the sweep. A non-positive TTL keeps guest carts forever and starts nothing.
func (s *GuestCartScheduler) Start() error {
	if s.ttl <= 0 {
		logger.Info("Guest cart sweeper disabled", map[string]interface{}{
			"ttl": s.ttl.String(),
		})
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Error("Scheduled guest cart sweep failed", err)
		}
	})
	if err != nil {
		logger.Error("Failed to add cron job for guest cart sweep", err, map[string]interface{}{
			"schedule": s.schedule,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Guest cart sweeper started", map[string]interface{}{
		"schedule": s.schedule,
		"ttl":      s.ttl.String(),
	})
	return nil
}

// RunOnce purges every guest cart older than the TTL. It does nothing when the TTL is disabled.
func (s *GuestCartScheduler) RunOnce(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl)
	logger.Info("Starting guest cart sweep", map[string]interface{}{
		"cutoff": cutoff,
	})

	purged, err := s.purger.PurgeGuestCarts(ctx, cutoff)
	if err != nil {
		return purged, err
	}

	logger.Info("Guest cart sweep finished", map[string]interface{}{
		"purged": purged,
	})
	return purged, nil
}

func (s *GuestCartScheduler) Stop() {
	logger.Info("Stopping guest cart sweeper...", nil)
	<-s.cron.Stop().Done()
	logger.Info("Guest cart sweeper stopped", nil)
}
