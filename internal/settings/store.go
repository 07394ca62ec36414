package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/richxcame/tartanilla-earnings/pkg/redis"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	cacheKey = "settings:organization_percentage"
	cacheTTL = 24 * time.Hour
)

var (
	hundred = decimal.NewFromInt(100)

	// ErrPercentageRange rejects percents outside 0..100.
	ErrPercentageRange = errors.New("percentage must be between 0 and 100")
)

// Source is where the percent is persisted.
type Source interface {
	GetPercentage(ctx context.Context) (decimal.Decimal, bool, error)
	SavePercentage(ctx context.Context, pct decimal.Decimal) error
}

// Store keeps the organization percentage in memory. Reads never leave the
// process; Refresh and Run keep the value current.
type Store struct {
	source   Source
	cache    redis.ClientInterface
	logger   *zap.Logger
	interval time.Duration

	mu      sync.RWMutex
	percent decimal.Decimal
	loaded  bool

	done chan struct{}
	once sync.Once
}

// NewStore starts with defaultPercent until the first successful Refresh.
// cache may be nil.
func NewStore(source Source, cache redis.ClientInterface, defaultPercent decimal.Decimal, interval time.Duration, logger *zap.Logger) *Store {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Store{
		source:   source,
		cache:    cache,
		logger:   logger,
		interval: interval,
		percent:  defaultPercent,
		done:     make(chan struct{}),
	}
}

// OrganizationPercentage returns the admin share as a fraction (0.20).
func (s *Store) OrganizationPercentage() decimal.Decimal {
	return s.Percent().Div(hundred)
}

// Percent returns the admin share as a percent (20).
func (s *Store) Percent() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.percent
}

func (s *Store) set(pct decimal.Decimal) {
	s.mu.Lock()
	s.percent = pct
	s.loaded = true
	s.mu.Unlock()
}

// Refresh reloads the percent from the source and mirrors it to the cache.
// When the source fails before anything was loaded, the cached value is used.
func (s *Store) Refresh(ctx context.Context) error {
	pct, found, err := s.source.GetPercentage(ctx)
	if err != nil {
		s.mu.RLock()
		loaded := s.loaded
		s.mu.RUnlock()
		if !loaded {
			s.seedFromCache(ctx)
		}
		return err
	}
	if !found {
		return nil
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("stored %w: %s", ErrPercentageRange, pct)
	}

	s.set(pct)
	s.mirror(ctx, pct)
	return nil
}

func (s *Store) seedFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	raw, err := s.cache.RetryableGet(ctx, cacheKey)
	if err != nil {
		if !redis.IsMiss(err) {
			s.logger.Warn("organization percentage cache read failed", zap.Error(err))
		}
		return
	}
	pct, err := decimal.NewFromString(raw)
	if err != nil || pct.IsNegative() || pct.GreaterThan(hundred) {
		s.logger.Warn("ignoring cached organization percentage", zap.String("value", raw))
		return
	}
	s.set(pct)
	s.logger.Info("organization percentage seeded from cache", zap.String("percent", pct.String()))
}

func (s *Store) mirror(ctx context.Context, pct decimal.Decimal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.RetryableSet(ctx, cacheKey, pct.String(), cacheTTL); err != nil {
		s.logger.Warn("organization percentage cache write failed", zap.Error(err))
	}
}

// Update validates, persists and applies a new percent.
func (s *Store) Update(ctx context.Context, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return ErrPercentageRange
	}
	if err := s.source.SavePercentage(ctx, pct); err != nil {
		return err
	}
	s.set(pct)
	s.mirror(ctx, pct)
	return nil
}

// Run refreshes on a ticker until ctx is cancelled or Stop is called.
func (s *Store) Run(ctx context.Context) {
	s.logger.Info("organization percentage poller started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("organization percentage poller stopped (context cancelled)")
			return
		case <-s.done:
			s.logger.Info("organization percentage poller stopped")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("organization percentage refresh failed", zap.Error(err))
			}
		}
	}
}

// Stop signals Run to return.
func (s *Store) Stop() {
	s.once.Do(func() { close(s.done) })
}
