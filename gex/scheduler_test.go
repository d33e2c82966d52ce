package gex

import (
	"context"
	"errors"
	"testing"
	"time"

	"gexflow/database"
)

type schedulerStore struct {
	quotes    []database.ContractQuote
	quotesErr error
	dbSpot    float64

	quoteCalls  int
	latestCalls int
	metrics     []database.GEXMetric
	metricErr   error
	uptimeCalls int
}

func (s *schedulerStore) LatestContractQuotes(symbol, expiration string, window time.Duration) ([]database.ContractQuote, error) {
	s.quoteCalls++
	return s.quotes, s.quotesErr
}

func (s *schedulerStore) LatestUnderlyingClose(symbol string) (float64, error) {
	return s.dbSpot, nil
}

func (s *schedulerStore) LatestGEXMetric(symbol string) (*database.GEXMetric, error) {
	s.latestCalls++
	for i := len(s.metrics) - 1; i >= 0; i-- {
		if s.metrics[i].Symbol == symbol {
			return &s.metrics[i], nil
		}
	}
	return nil, nil
}

func (s *schedulerStore) UpsertGEXMetric(metric *database.GEXMetric) error {
	if s.metricErr != nil {
		return s.metricErr
	}
	s.metrics = append(s.metrics, *metric)
	return nil
}

func (s *schedulerStore) InsertUptimeCheck(check *database.ServiceUptimeCheck) error {
	s.uptimeCalls++
	return nil
}

type fakeSpotCache struct {
	spot      float64
	spotErr   error
	published []string
}

func (c *fakeSpotCache) GetSpot(ctx context.Context, symbol string) (float64, error) {
	return c.spot, c.spotErr
}

func (c *fakeSpotCache) PublishGEX(ctx context.Context, symbol string, metric *database.GEXMetric) error {
	c.published = append(c.published, symbol)
	return nil
}

func testQuotes() []database.ContractQuote {
	return []database.ContractQuote{
		{Strike: 495, OptionType: "call", Gamma: 0.02, OpenInterest: 100},
		{Strike: 500, OptionType: "put", Gamma: 0.03, OpenInterest: 100},
	}
}

func TestRunCycleStoresAndPublishes(t *testing.T) {
	store := &schedulerStore{quotes: testQuotes()}
	spots := &fakeSpotCache{spot: 500}
	s := NewScheduler(store, spots, []string{"SPY"}, "2024-01-05", time.Minute)

	now := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)
	s.runCycle(context.Background(), now)

	if len(store.metrics) != 1 {
		t.Fatalf("stored %d metrics, want 1", len(store.metrics))
	}
	m := store.metrics[0]
	if m.Symbol != "SPY" || m.Expiration != "2024-01-05" || m.UnderlyingPrice != 500 {
		t.Errorf("metric = %+v", m)
	}
	if len(spots.published) != 1 || spots.published[0] != "SPY" {
		t.Errorf("published = %v, want [SPY]", spots.published)
	}
	if store.uptimeCalls != 1 {
		t.Errorf("uptime probes = %d, want 1", store.uptimeCalls)
	}
	if s.successes != 1 || s.failures != 0 {
		t.Errorf("successes/failures = %d/%d, want 1/0", s.successes, s.failures)
	}
}

func TestRunCycleFallsBackToStoredClose(t *testing.T) {
	store := &schedulerStore{quotes: testQuotes(), dbSpot: 498.5}
	spots := &fakeSpotCache{spotErr: errors.New("redis down")}
	s := NewScheduler(store, spots, []string{"SPY"}, "2024-01-05", time.Minute)

	s.runCycle(context.Background(), time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC))

	if len(store.metrics) != 1 {
		t.Fatalf("stored %d metrics, want 1", len(store.metrics))
	}
	if store.metrics[0].UnderlyingPrice != 498.5 {
		t.Errorf("spot = %v, want the database close 498.5", store.metrics[0].UnderlyingPrice)
	}
}

func TestRunCycleSkipsSymbolWithoutSpot(t *testing.T) {
	store := &schedulerStore{quotes: testQuotes()}
	s := NewScheduler(store, nil, []string{"SPY"}, "2024-01-05", time.Minute)

	s.runCycle(context.Background(), time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC))

	if store.quoteCalls != 0 {
		t.Errorf("chain queried %d times for a spotless symbol, want 0", store.quoteCalls)
	}
	if len(store.metrics) != 0 {
		t.Errorf("stored %d metrics, want 0", len(store.metrics))
	}
	if s.failures != 0 {
		t.Errorf("a missing spot is a skip, not a failure (failures = %d)", s.failures)
	}
	// The liveness probe still runs on skipped cycles
	if store.uptimeCalls != 1 {
		t.Errorf("uptime probes = %d, want 1", store.uptimeCalls)
	}
}

func TestRunCycleCountsQueryFailure(t *testing.T) {
	store := &schedulerStore{quotesErr: errors.New("connection reset"), dbSpot: 500}
	s := NewScheduler(store, nil, []string{"SPY"}, "2024-01-05", time.Minute)

	s.runCycle(context.Background(), time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC))

	if s.failures != 1 || s.successes != 0 {
		t.Errorf("successes/failures = %d/%d, want 0/1", s.successes, s.failures)
	}
}

func TestRunCycleResolvesTodayExpiration(t *testing.T) {
	store := &schedulerStore{quotes: testQuotes(), dbSpot: 500}
	s := NewScheduler(store, nil, []string{"SPY"}, "today", time.Minute)

	// Wednesday 10:00 ET
	now := time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)
	s.runCycle(context.Background(), now)

	if len(store.metrics) != 1 {
		t.Fatalf("stored %d metrics, want 1", len(store.metrics))
	}
	if store.metrics[0].Expiration != "2024-01-03" {
		t.Errorf("expiration = %q, want 2024-01-03", store.metrics[0].Expiration)
	}
}

func TestStatsBlockReportsLastSnapshots(t *testing.T) {
	store := &schedulerStore{quotes: testQuotes(), dbSpot: 500}
	s := NewScheduler(store, nil, []string{"SPY"}, "2024-01-05", time.Minute)

	// The next cycle is the tenth, which triggers the stats block
	s.cycles = statsEvery - 1
	s.runCycle(context.Background(), time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC))

	if store.latestCalls != 1 {
		t.Errorf("stats block fetched %d snapshots, want 1 per symbol", store.latestCalls)
	}

	// Off-cycle runs skip the stats block entirely
	store.latestCalls = 0
	s.runCycle(context.Background(), time.Date(2024, 1, 3, 15, 1, 0, 0, time.UTC))
	if store.latestCalls != 0 {
		t.Errorf("stats block ran on cycle %d, want only every %d cycles", s.cycles, statsEvery)
	}
}

func TestFormatFlip(t *testing.T) {
	if got := formatFlip(nil); got != "n/a" {
		t.Errorf("formatFlip(nil) = %q, want n/a", got)
	}
	v := 498.3333
	if got := formatFlip(&v); got != "498.33" {
		t.Errorf("formatFlip = %q, want 498.33", got)
	}
}
