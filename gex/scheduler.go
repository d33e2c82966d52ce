package gex

import (
	"context"
	"fmt"
	"log"
	"time"

	"gexflow/database"
	"gexflow/markethours"
)

const (
	// closedMarketSleep is how long the loop idles outside market hours
	closedMarketSleep = 300 * time.Second

	// quoteWindow bounds how stale a chain snapshot may be
	quoteWindow = 4 * time.Hour

	// statsEvery controls the periodic stats log block
	statsEvery = 10

	serviceName = "gex-scheduler"
)

// Store is the persistence surface the scheduler needs
type Store interface {
	LatestContractQuotes(symbol, expiration string, window time.Duration) ([]database.ContractQuote, error)
	LatestUnderlyingClose(symbol string) (float64, error)
	LatestGEXMetric(symbol string) (*database.GEXMetric, error)
	UpsertGEXMetric(metric *database.GEXMetric) error
	InsertUptimeCheck(check *database.ServiceUptimeCheck) error
}

// SpotCache serves fresher spot prices than the database when available
type SpotCache interface {
	GetSpot(ctx context.Context, symbol string) (float64, error)
	PublishGEX(ctx context.Context, symbol string, metric *database.GEXMetric) error
}

// Scheduler runs GEX computation cycles during market hours
type Scheduler struct {
	store            Store
	cache            SpotCache // nil disables the cache path
	symbols          []string
	targetExpiration string
	interval         time.Duration

	cycles    int64
	successes int64
	failures  int64
}

// NewScheduler creates a market-hours GEX scheduler
func NewScheduler(store Store, cache SpotCache, symbols []string, targetExpiration string, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:            store,
		cache:            cache,
		symbols:          symbols,
		targetExpiration: targetExpiration,
		interval:         interval,
	}
}

// Run executes computation cycles until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("🚀 GEX scheduler started (symbols=%v interval=%s)", s.symbols, s.interval)

	for {
		now := time.Now()

		if !markethours.IsOpen(now) {
			log.Printf("💤 Market closed, sleeping %s", closedMarketSleep)
			if !sleepCtx(ctx, closedMarketSleep) {
				return
			}
			continue
		}

		s.runCycle(ctx, now)

		if !sleepCtx(ctx, s.interval) {
			return
		}
	}
}

// runCycle computes and persists one snapshot per symbol
func (s *Scheduler) runCycle(ctx context.Context, now time.Time) {
	s.cycles++
	expiration := markethours.ResolveExpiration(s.targetExpiration, now)

	for _, symbol := range s.symbols {
		spot := s.spotPrice(ctx, symbol)
		if spot <= 0 {
			// No price yet, likely the ingest side has not warmed up
			log.Printf("⚠️  No spot price for %s, skipping", symbol)
			continue
		}

		quotes, err := s.store.LatestContractQuotes(symbol, expiration, quoteWindow)
		if err != nil {
			s.failures++
			log.Printf("⚠️  Chain snapshot query failed for %s: %v", symbol, err)
			continue
		}

		metric, _ := Compute(symbol, expiration, spot, quotes, now)
		if metric == nil {
			log.Printf("⚠️  No usable contracts for %s exp %s", symbol, expiration)
			continue
		}

		if err := s.store.UpsertGEXMetric(metric); err != nil {
			s.failures++
			log.Printf("⚠️  Failed to store GEX metric for %s: %v", symbol, err)
			continue
		}
		s.successes++

		if s.cache != nil {
			if err := s.cache.PublishGEX(ctx, symbol, metric); err != nil {
				log.Printf("⚠️  GEX publish failed for %s: %v", symbol, err)
			}
		}

		log.Printf("✅ %s exp %s: net GEX %.0f (%s regime), flip %s, max pain %.2f",
			symbol, expiration, metric.NetGEX, RegimeOf(metric.NetGEX),
			formatFlip(metric.GammaFlipPoint), metric.MaxPain)
	}

	if err := s.store.InsertUptimeCheck(&database.ServiceUptimeCheck{
		Timestamp:   now.UTC(),
		ServiceName: serviceName,
		IsRunning:   true,
	}); err != nil {
		log.Printf("⚠️  Uptime probe failed: %v", err)
	}

	if s.cycles%statsEvery == 0 {
		s.logStats()
	}
}

// spotPrice resolves the underlying price, preferring the redis mirror
// over the last stored bar.
func (s *Scheduler) spotPrice(ctx context.Context, symbol string) float64 {
	if s.cache != nil {
		if spot, err := s.cache.GetSpot(ctx, symbol); err == nil && spot > 0 {
			return spot
		}
	}

	spot, err := s.store.LatestUnderlyingClose(symbol)
	if err != nil {
		log.Printf("⚠️  Underlying lookup failed for %s: %v", symbol, err)
		return 0
	}
	return spot
}

// logStats prints the periodic stats block: loop counters plus the last
// stored snapshot per symbol.
func (s *Scheduler) logStats() {
	log.Println("📊 ================ GEX scheduler stats ================")
	log.Printf("📊 cycles=%d successes=%d failures=%d", s.cycles, s.successes, s.failures)
	for _, symbol := range s.symbols {
		metric, err := s.store.LatestGEXMetric(symbol)
		if err != nil {
			log.Printf("📊 %s: snapshot lookup failed: %v", symbol, err)
			continue
		}
		if metric == nil {
			log.Printf("📊 %s: no snapshot stored yet", symbol)
			continue
		}
		log.Printf("📊 %s: net GEX %.0f (%s regime), flip %s, max pain %.2f",
			symbol, metric.NetGEX, RegimeOf(metric.NetGEX),
			formatFlip(metric.GammaFlipPoint), metric.MaxPain)
	}
	log.Println("📊 =====================================================")
}

func formatFlip(flip *float64) string {
	if flip == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *flip)
}

// sleepCtx waits for d and reports false when the context ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
