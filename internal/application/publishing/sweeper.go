package publishing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot/backend/internal/domain/quota"
)

// SweeperConfig holds configuration for the reservation sweeper
type SweeperConfig struct {
	Interval time.Duration
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: time.Minute}
}

// ReservationSweeper releases quota slots held by reservations that
// outlived their expiry. A crash between claiming an entry and settling it
// leaves the reservation pending; without the sweeper those slots would
// stay consumed forever.
type ReservationSweeper struct {
	ledgers quota.LedgerRepository
	config  SweeperConfig
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReservationSweeper creates a new ReservationSweeper
func NewReservationSweeper(ledgers quota.LedgerRepository, config SweeperConfig, logger *zap.Logger) *ReservationSweeper {
	return &ReservationSweeper{
		ledgers: ledgers,
		config:  config,
		logger:  logger,
	}
}

// Start launches the background sweep loop
func (s *ReservationSweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("reservation sweeper started",
		zap.Duration("interval", s.config.Interval),
	)
	return nil
}

// Stop gracefully stops the sweeper
func (s *ReservationSweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reservation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReservationSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep releases all expired pending reservations once
func (s *ReservationSweeper) Sweep(ctx context.Context) {
	released, err := s.ledgers.ReleaseExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to release expired reservations", zap.Error(err))
		return
	}
	if released > 0 {
		s.logger.Info("released expired reservations", zap.Int("count", released))
	}
}
