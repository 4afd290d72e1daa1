package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/infinitelocus/canteen/internal/core/domain"
	"github.com/infinitelocus/canteen/internal/port"
)

// DefaultSweepInterval is how often expired orders are scanned for.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically cancels orders whose expiry deadline has passed.
// Each order is cancelled in its own transaction; one failure never aborts
// the rest of the sweep.
type Sweeper struct {
	store    port.Store
	cache    port.CacheRepository
	orders   *OrderService
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewSweeper(store port.Store, cache port.CacheRepository, orders *OrderService, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		cache:    cache,
		orders:   orders,
		interval: interval,
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one scan-and-cancel cycle and returns how many orders it
// cancelled. Losing a cancellation race to the user is benign and skipped.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ok, err := s.cache.AcquireSweepLock(ctx, s.interval)
	if err != nil {
		// Lock is an optimization against duplicate sweeps across processes;
		// a second sweep is harmless, so proceed.
		s.log.Warn().Err(err).Msg("sweep lock unavailable")
	} else if !ok {
		return 0
	}

	expired, err := s.store.FindExpiredOrders(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("expired order scan failed")
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	cancelled := 0
	for _, order := range expired {
		_, err := s.orders.CancelOrder(ctx, order.ID, "", ActorSweeper)
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, domain.ErrNotCancellable):
			// Concurrently completed or cancelled between scan and act.
			s.log.Debug().Str("order_id", order.ID).Msg("expired order already terminal")
		default:
			s.log.Error().Err(err).Str("order_id", order.ID).Msg("expiry cancellation failed")
		}
	}

	s.log.Info().Int("expired", len(expired)).Int("cancelled", cancelled).Msg("sweep complete")
	return cancelled
}
