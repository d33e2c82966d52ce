// Package ingestion runs the streaming option chain pipeline: one managed
// stream per symbol, greeks enrichment, batched persistence, flow
// aggregation and heartbeat-supervised reconnects.
package ingestion

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gexflow/cache"
	"gexflow/config"
	"gexflow/database"
	"gexflow/flow"
	"gexflow/greeks"
	"gexflow/markethours"
	"gexflow/tradestation"
)

const (
	// supervisorInterval is how often stream liveness is checked
	supervisorInterval = 30 * time.Second

	// flowFlushInterval drives the periodic flow bucket flusher
	flowFlushInterval = 60 * time.Second

	serviceName = "gex-ingestion"
	sourceName  = "tradestation"
)

// Stream states reported in logs
const (
	StateStarting     = "starting"
	StateRunning      = "running"
	StateReconnecting = "reconnecting"
)

// MarketData is the upstream surface the engine consumes
type MarketData interface {
	StreamOptionChain(ctx context.Context, underlying, expiration string, strikeProximity int) (<-chan tradestation.StreamEvent, error)
	LatestBar(ctx context.Context, symbol string) (*tradestation.Bar, error)
}

// Store is the persistence surface the engine writes to
type Store interface {
	UpsertOptionQuotes(quotes []database.OptionQuote) error
	UpsertUnderlyingQuote(quote *database.UnderlyingQuote) error
	UpsertFlowMetrics(rows []database.OptionFlowMetric) error
	InsertIngestionMetric(metric *database.IngestionMetric) error
	InsertUptimeCheck(check *database.ServiceUptimeCheck) error
}

// streamMetrics carries per-symbol throughput counters between metric
// logger ticks.
type streamMetrics struct {
	mu            sync.Mutex
	ingested      int64
	stored        int64
	errors        int64
	heartbeats    int64
	lastHeartbeat time.Time
	processingMs  int64
}

// symbolStream is the supervision state of one managed chain stream
type symbolStream struct {
	symbol string

	mu           sync.Mutex
	state        string
	lastActivity time.Time
	cancel       context.CancelFunc

	metrics streamMetrics
}

func (s *symbolStream) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *symbolStream) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Engine is the streaming ingestion engine
type Engine struct {
	cfg    *config.Config
	client MarketData
	store  Store
	redis  *cache.RedisClient // nil disables mirroring
	calc   *greeks.Calculator
	agg    *flow.Aggregator

	streams map[string]*symbolStream

	spotMu sync.RWMutex
	spots  map[string]float64

	batchMu sync.Mutex
	batch   []database.OptionQuote
}

// New creates an engine wired to the given upstream and store
func New(cfg *config.Config, client MarketData, store Store, redis *cache.RedisClient) *Engine {
	e := &Engine{
		cfg:     cfg,
		client:  client,
		store:   store,
		redis:   redis,
		calc:    greeks.NewCalculator(cfg.Greeks.RiskFreeRate, cfg.Greeks.DividendYield),
		agg:     flow.NewAggregator(store),
		streams: make(map[string]*symbolStream),
		spots:   make(map[string]float64),
		batch:   make([]database.OptionQuote, 0, cfg.Ingestion.BatchSize),
	}
	for _, symbol := range cfg.Symbols {
		e.streams[symbol] = &symbolStream{symbol: symbol, state: StateStarting, lastActivity: time.Now()}
	}
	return e
}

// Start runs the engine until SIGINT/SIGTERM, then drains buffers with a
// bounded shutdown window.
func (e *Engine) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("🚀 Ingestion engine starting (symbols=%v batch=%d)", e.cfg.Symbols, e.cfg.Ingestion.BatchSize)

	// Prime the spot cache so the first quotes already carry greeks
	e.pollUnderlyings(ctx)

	var wg sync.WaitGroup

	for _, stream := range e.streams {
		wg.Add(1)
		go func(s *symbolStream) {
			defer wg.Done()
			e.runSymbolStream(ctx, s)
		}(stream)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runUnderlyingPoller(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runMetricsLogger(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runHeartbeatSupervisor(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.agg.RunPeriodicFlush(ctx, flowFlushInterval)
	}()

	err := e.gracefulShutdown(cancel, &wg)
	return err
}

// gracefulShutdown waits for an interrupt, then drains with a 10s budget
func (e *Engine) gracefulShutdown(cancel context.CancelFunc, wg *sync.WaitGroup) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		e.drain(wg)
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// drain waits for the workers to stop, then writes everything still
// buffered: the pending quote batch and the final interval's counters.
func (e *Engine) drain(wg *sync.WaitGroup) {
	wg.Wait()

	fmt.Println("📦 Flushing remaining quote batch...")
	e.flushBatch()
	e.logMetrics(time.Now())
}

// runSymbolStream owns the reconnect loop of one chain stream
func (e *Engine) runSymbolStream(ctx context.Context, s *symbolStream) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateStarting)
		expiration := markethours.ResolveExpiration(e.cfg.Ingestion.TargetExpiration, time.Now())
		log.Printf("🔄 [%s] Opening chain stream (exp %s)", s.symbol, expiration)

		streamCtx, streamCancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = streamCancel
		s.mu.Unlock()

		events, err := e.client.StreamOptionChain(streamCtx, s.symbol, expiration, e.cfg.Ingestion.StrikeProximity)
		if err != nil {
			streamCancel()
			log.Printf("⚠️  [%s] Stream connect failed: %v", s.symbol, err)
			s.metrics.addError()
			if !e.waitReconnect(ctx, s) {
				return
			}
			continue
		}

		s.setState(StateRunning)
		s.touch(time.Now())
		log.Printf("✅ [%s] Chain stream connected", s.symbol)

		e.consumeStream(ctx, s, expiration, events)
		streamCancel()

		if !e.waitReconnect(ctx, s) {
			return
		}
	}
}

// waitReconnect pauses before the next connection attempt
func (e *Engine) waitReconnect(ctx context.Context, s *symbolStream) bool {
	s.setState(StateReconnecting)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(e.cfg.Ingestion.ReconnectDelay):
		return true
	}
}

// consumeStream processes events until the stream ends
func (e *Engine) consumeStream(ctx context.Context, s *symbolStream, expiration string, events <-chan tradestation.StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				log.Printf("🔄 [%s] Chain stream closed", s.symbol)
				return
			}

			now := time.Now()
			s.touch(now)

			switch {
			case event.Err != nil:
				log.Printf("⚠️  [%s] Stream error: %v", s.symbol, event.Err)
				s.metrics.addError()
				return
			case event.Heartbeat:
				s.metrics.addHeartbeat(now)
			case event.Quote != nil:
				start := time.Now()
				e.handleQuote(s, expiration, event.Quote, now)
				s.metrics.addProcessing(time.Since(start))
			}
		}
	}
}

// handleQuote enriches one quote frame and queues it for persistence
func (e *Engine) handleQuote(s *symbolStream, expiration string, frame *tradestation.QuoteFrame, now time.Time) {
	quote, ok := e.convertFrame(s.symbol, expiration, frame, now)
	if !ok {
		return
	}
	s.metrics.addIngested()

	e.agg.Add(flow.Quote{
		Symbol:       quote.Symbol,
		OptionType:   quote.OptionType,
		Strike:       quote.Strike,
		Timestamp:    quote.Timestamp,
		Bid:          quote.Bid,
		Ask:          quote.Ask,
		Mid:          quote.Mid,
		Last:         quote.Last,
		Volume:       quote.Volume,
		OpenInterest: quote.OpenInterest,
		Delta:        quote.Delta,
		Gamma:        quote.Gamma,
		Spot:         quote.UnderlyingPrice,
	})

	e.batchMu.Lock()
	e.batch = append(e.batch, quote)
	ready := len(e.batch) >= e.cfg.Ingestion.BatchSize
	e.batchMu.Unlock()

	if ready {
		e.flushBatch()
	}
}

// convertFrame maps a vendor frame onto the storage model, computing
// greeks locally whenever spot and implied vol allow it.
func (e *Engine) convertFrame(symbol, expiration string, frame *tradestation.QuoteFrame, now time.Time) (database.OptionQuote, bool) {
	if len(frame.Legs) == 0 {
		return database.OptionQuote{}, false
	}
	leg := frame.Legs[0]

	optionType := "put"
	if leg.OptionType == "Call" || leg.OptionType == "call" || leg.OptionType == "CALL" {
		optionType = "call"
	}

	if !leg.ExpirationDate.IsZero() {
		expiration = leg.ExpirationDate.Format("2006-01-02")
	}

	quote := database.OptionQuote{
		Timestamp:    now.UTC(),
		Symbol:       symbol,
		Strike:       float64(leg.StrikePrice),
		Expiration:   expiration,
		OptionType:   optionType,
		Bid:          float64(frame.Bid),
		Ask:          float64(frame.Ask),
		Mid:          float64(frame.Mid),
		Last:         float64(frame.Last),
		Volume:       int64(frame.Volume),
		OpenInterest: int64(frame.DailyOpenInterest),
		ImpliedVol:   float64(frame.ImpliedVolatility),
		Source:       sourceName,
	}

	if quote.Mid == 0 && quote.Bid > 0 && quote.Ask > 0 {
		quote.Mid = (quote.Bid + quote.Ask) / 2
	}

	if quote.Bid > 0 && quote.Ask > 0 && quote.Mid > 0 {
		spread := (quote.Ask - quote.Bid) / quote.Mid
		quote.SpreadPct = &spread
	}

	if dte, err := markethours.DaysToExpiry(expiration, now); err == nil {
		quote.DTE = dte
	}

	spot := e.Spot(symbol)
	quote.UnderlyingPrice = spot

	if spot > 0 && quote.ImpliedVol > 0 {
		years, err := greeks.TimeToExpiry(expiration, now)
		if err == nil {
			g := e.calc.Compute(spot, quote.Strike, years, quote.ImpliedVol, optionType == "call")
			quote.Delta = g.Delta
			quote.Gamma = g.Gamma
			quote.Theta = g.Theta
			quote.Vega = g.Vega
			quote.Rho = g.Rho
			quote.IsCalculated = true
		}
	}

	if !quote.IsCalculated {
		quote.Delta = float64(frame.Delta)
		quote.Gamma = float64(frame.Gamma)
		quote.Theta = float64(frame.Theta)
		quote.Vega = float64(frame.Vega)
		quote.Rho = float64(frame.Rho)
	}

	return quote, true
}

// flushBatch detaches the pending batch under the lock and writes it
// outside, so stream handling never blocks on the database.
func (e *Engine) flushBatch() {
	e.batchMu.Lock()
	if len(e.batch) == 0 {
		e.batchMu.Unlock()
		return
	}
	pending := e.batch
	e.batch = make([]database.OptionQuote, 0, e.cfg.Ingestion.BatchSize)
	e.batchMu.Unlock()

	if err := e.store.UpsertOptionQuotes(pending); err != nil {
		log.Printf("⚠️  Batch write of %d quotes failed: %v", len(pending), err)
		for _, q := range pending {
			if s, ok := e.streams[q.Symbol]; ok {
				s.metrics.addError()
			}
		}
		return
	}

	for _, q := range pending {
		if s, ok := e.streams[q.Symbol]; ok {
			s.metrics.addStored()
		}
	}
}

// Spot returns the cached underlying price, 0 when unknown
func (e *Engine) Spot(symbol string) float64 {
	e.spotMu.RLock()
	defer e.spotMu.RUnlock()
	return e.spots[symbol]
}

// setSpot updates the in-process cache and the redis mirror
func (e *Engine) setSpot(ctx context.Context, symbol string, price float64) {
	e.spotMu.Lock()
	e.spots[symbol] = price
	e.spotMu.Unlock()

	if err := e.redis.SetSpot(ctx, symbol, price); err != nil {
		log.Printf("⚠️  Spot mirror failed for %s: %v", symbol, err)
	}
}

// runUnderlyingPoller refreshes underlying bars on a fixed interval
func (e *Engine) runUnderlyingPoller(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Ingestion.UnderlyingUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollUnderlyings(ctx)
		}
	}
}

// pollUnderlyings fetches the latest bar per symbol and persists it
func (e *Engine) pollUnderlyings(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		bar, err := e.client.LatestBar(ctx, symbol)
		if err != nil {
			log.Printf("⚠️  Underlying poll failed for %s: %v", symbol, err)
			continue
		}

		e.setSpot(ctx, symbol, float64(bar.Close))

		quote := &database.UnderlyingQuote{
			Timestamp:   bar.TimeStamp.UTC(),
			Symbol:      symbol,
			Open:        float64(bar.Open),
			Close:       float64(bar.Close),
			High:        float64(bar.High),
			Low:         float64(bar.Low),
			TotalVolume: int64(bar.TotalVolume),
			UpVolume:    int64(bar.UpVolume),
			DownVolume:  int64(bar.DownVolume),
			Source:      sourceName,
		}
		if err := e.store.UpsertUnderlyingQuote(quote); err != nil {
			log.Printf("⚠️  Underlying store failed for %s: %v", symbol, err)
		}
	}
}

// runMetricsLogger periodically snapshots per-symbol counters and writes
// an uptime probe.
func (e *Engine) runMetricsLogger(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Ingestion.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.logMetrics(now)
		}
	}
}

func (e *Engine) logMetrics(now time.Time) {
	for _, s := range e.streams {
		snap := s.metrics.snapshotAndReset()

		metric := &database.IngestionMetric{
			Timestamp:        now.UTC(),
			Source:           sourceName,
			Symbol:           s.symbol,
			RecordsIngested:  snap.ingested,
			RecordsStored:    snap.stored,
			ErrorCount:       snap.errors,
			HeartbeatCount:   snap.heartbeats,
			ProcessingTimeMs: snap.processingMs,
		}
		if !snap.lastHeartbeat.IsZero() {
			hb := snap.lastHeartbeat.UTC()
			metric.LastHeartbeat = &hb
		}

		if err := e.store.InsertIngestionMetric(metric); err != nil {
			log.Printf("⚠️  Metrics write failed for %s: %v", s.symbol, err)
		}

		log.Printf("📊 [%s] ingested=%d stored=%d errors=%d heartbeats=%d",
			s.symbol, snap.ingested, snap.stored, snap.errors, snap.heartbeats)
	}

	if err := e.store.InsertUptimeCheck(&database.ServiceUptimeCheck{
		Timestamp:   now.UTC(),
		ServiceName: serviceName,
		IsRunning:   true,
	}); err != nil {
		log.Printf("⚠️  Uptime probe failed: %v", err)
	}
}

// runHeartbeatSupervisor cancels streams that fall silent so the
// per-symbol loop reconnects them.
func (e *Engine) runHeartbeatSupervisor(ctx context.Context) {
	ticker := time.NewTicker(supervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, s := range e.streams {
				s.mu.Lock()
				silent := s.state == StateRunning && now.Sub(s.lastActivity) > e.cfg.Ingestion.HeartbeatTimeout
				cancel := s.cancel
				s.mu.Unlock()

				if silent && cancel != nil {
					log.Printf("💓 [%s] No activity for over %s, forcing reconnect",
						s.symbol, e.cfg.Ingestion.HeartbeatTimeout)
					cancel()
				}
			}
		}
	}
}

// ----- metrics helpers -----

type metricsSnapshot struct {
	ingested      int64
	stored        int64
	errors        int64
	heartbeats    int64
	lastHeartbeat time.Time
	processingMs  int64
}

func (m *streamMetrics) addIngested() {
	m.mu.Lock()
	m.ingested++
	m.mu.Unlock()
}

func (m *streamMetrics) addStored() {
	m.mu.Lock()
	m.stored++
	m.mu.Unlock()
}

func (m *streamMetrics) addError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *streamMetrics) addHeartbeat(at time.Time) {
	m.mu.Lock()
	m.heartbeats++
	m.lastHeartbeat = at
	m.mu.Unlock()
}

func (m *streamMetrics) addProcessing(d time.Duration) {
	m.mu.Lock()
	m.processingMs += d.Milliseconds()
	m.mu.Unlock()
}

// snapshotAndReset returns the counters since the previous tick
func (m *streamMetrics) snapshotAndReset() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := metricsSnapshot{
		ingested:      m.ingested,
		stored:        m.stored,
		errors:        m.errors,
		heartbeats:    m.heartbeats,
		lastHeartbeat: m.lastHeartbeat,
		processingMs:  m.processingMs,
	}
	m.ingested, m.stored, m.errors, m.heartbeats, m.processingMs = 0, 0, 0, 0, 0
	return snap
}
