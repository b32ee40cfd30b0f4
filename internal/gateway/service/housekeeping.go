package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/store"
)

// Sweeper is anything holding entries that expire, e.g. *cache.Cache.
type Sweeper interface {
	DeleteExpired()
}

// HousekeepingService periodically drops expired refresh tokens, revocations
// and cache entries so nothing grows without bound between reads.
type HousekeepingService struct {
	Store    store.Store
	Caches   []Sweeper
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to 10 minutes.
func NewHousekeepingService(st store.Store, caches []Sweeper, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &HousekeepingService{
		Store:    st,
		Caches:   caches,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to end it.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep performs one pass. Each step is independent of the others.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}
	if err := s.Store.Revocations().DeleteExpiredRevocations(ctx); err != nil {
		s.Logger.Error("failed to delete expired revocations", "error", err)
	}
	for _, c := range s.Caches {
		c.DeleteExpired()
	}
	s.Logger.Debug("housekeeping sweep completed")
}
