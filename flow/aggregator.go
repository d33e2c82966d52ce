// Package flow aggregates streaming option quotes into 5-minute flow
// buckets per (symbol, option_type), tracking premium, aggressor side,
// moneyness distribution and open interest drift.
package flow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gexflow/database"
)

// BucketInterval is the aggregation window
const BucketInterval = 5 * time.Minute

// blockSize is the minimum print size counted as block volume
const blockSize = 100

// atmBand is the relative distance from spot treated as at-the-money
const atmBand = 0.02

// Store persists flushed buckets
type Store interface {
	UpsertFlowMetrics(rows []database.OptionFlowMetric) error
}

// Quote is one enriched option quote entering the aggregator
type Quote struct {
	Symbol       string
	OptionType   string // call, put
	Strike       float64
	Timestamp    time.Time
	Bid          float64
	Ask          float64
	Mid          float64
	Last         float64
	Volume       int64
	OpenInterest int64
	Delta        float64
	Gamma        float64
	Spot         float64
}

type bucketKey struct {
	symbol     string
	optionType string
	start      time.Time
}

// bucket accumulates one (symbol, option_type, window) cell. Money sums
// are exact decimals; greek-weighted sums stay float64.
type bucket struct {
	tradeCount   int64
	totalVolume  int64
	maxTradeSize int64

	blockVolume int64
	sweepVolume int64
	buyVolume   int64
	sellVolume  int64

	atmVolume int64
	itmVolume int64
	otmVolume int64

	strikes map[float64]struct{}

	totalPremium     decimal.Decimal
	premiumVolumeSum decimal.Decimal
	totalNotional    decimal.Decimal

	spotSum       float64
	deltaWeighted float64
	gammaWeighted float64

	startingOI int64
	endingOI   int64
	oiSampled  bool
}

// Aggregator collects quotes into buckets and flushes finished windows.
type Aggregator struct {
	store Store

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// NewAggregator creates an aggregator writing to the given store
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store:   store,
		buckets: make(map[bucketKey]*bucket),
	}
}

// BucketStart floors a timestamp to its 5-minute window in UTC
func BucketStart(t time.Time) time.Time {
	return t.UTC().Truncate(BucketInterval)
}

// Add folds one quote into its bucket. Zero-volume quotes are pure
// book updates and carry no flow.
func (a *Aggregator) Add(q Quote) {
	if q.Volume <= 0 {
		return
	}

	key := bucketKey{symbol: q.Symbol, optionType: q.OptionType, start: BucketStart(q.Timestamp)}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[key]
	if !ok {
		b = &bucket{strikes: make(map[float64]struct{})}
		a.buckets[key] = b
	}

	b.tradeCount++
	b.totalVolume += q.Volume
	if q.Volume > b.maxTradeSize {
		b.maxTradeSize = q.Volume
	}
	b.strikes[q.Strike] = struct{}{}

	if q.Volume >= blockSize {
		b.blockVolume += q.Volume
	}

	vol := decimal.NewFromInt(q.Volume)
	premium := decimal.NewFromFloat(q.Mid).Mul(vol).Mul(decimal.NewFromInt(100))
	b.totalPremium = b.totalPremium.Add(premium)
	b.premiumVolumeSum = b.premiumVolumeSum.Add(premium.Mul(vol))

	if q.Spot > 0 {
		b.totalNotional = b.totalNotional.Add(
			vol.Mul(decimal.NewFromFloat(q.Spot)).Mul(decimal.NewFromInt(100)))
		b.spotSum += q.Spot
		b.deltaWeighted += float64(q.Volume) * abs(q.Delta) * q.Spot * 100

		// Moneyness distribution around a 2% ATM band
		rel := abs(q.Strike-q.Spot) / q.Spot
		switch {
		case rel <= atmBand:
			b.atmVolume += q.Volume
		case q.OptionType == "call" && q.Strike < q.Spot,
			q.OptionType == "put" && q.Strike > q.Spot:
			b.itmVolume += q.Volume
		default:
			b.otmVolume += q.Volume
		}
	}

	if q.Gamma > 0 {
		b.gammaWeighted += float64(q.Volume) * q.Gamma
	}

	buy, sell, sweep := classifyAggressor(q.Bid, q.Ask, q.Last, q.Volume)
	b.buyVolume += buy
	b.sellVolume += sell
	b.sweepVolume += sweep

	if !b.oiSampled {
		b.startingOI = q.OpenInterest
		b.oiSampled = true
	}
	b.endingOI = q.OpenInterest
}

// classifyAggressor infers trade direction from where the last print sits
// in the spread. Prints at or beyond the extremes of the book also count
// as sweep volume; an unusable spread splits the volume evenly.
func classifyAggressor(bid, ask, last float64, volume int64) (buy, sell, sweep int64) {
	if ask > bid {
		p := (last - bid) / (ask - bid)
		switch {
		case p > 0.6:
			buy = volume
			if p > 0.9 {
				sweep = volume
			}
		case p < 0.4:
			sell = volume
			if p < 0.1 {
				sweep = volume
			}
		default:
			buy = volume / 2
			sell = volume - volume/2
		}
		return buy, sell, sweep
	}

	buy = volume / 2
	sell = volume - volume/2
	return buy, sell, 0
}

// Flush persists every bucket whose window has closed. With force set it
// drains everything, used on shutdown. Buckets are detached under the
// lock and written outside it so a slow database never stalls Add.
func (a *Aggregator) Flush(now time.Time, force bool) error {
	current := BucketStart(now)

	a.mu.Lock()
	ready := make(map[bucketKey]*bucket)
	for key, b := range a.buckets {
		if force || key.start.Before(current) {
			ready[key] = b
			delete(a.buckets, key)
		}
	}
	a.mu.Unlock()

	if len(ready) == 0 {
		return nil
	}

	rows := make([]database.OptionFlowMetric, 0, len(ready))
	for key, b := range ready {
		rows = append(rows, b.toRow(key))
	}

	if err := a.store.UpsertFlowMetrics(rows); err != nil {
		return err
	}

	log.Printf("📊 Flushed %d flow bucket(s)", len(rows))
	return nil
}

// toRow finalizes the derived fields of a bucket
func (b *bucket) toRow(key bucketKey) database.OptionFlowMetric {
	row := database.OptionFlowMetric{
		Timestamp:           key.start,
		Symbol:              key.symbol,
		OptionType:          key.optionType,
		TotalVolume:         b.totalVolume,
		SweepVolume:         b.sweepVolume,
		BlockVolume:         b.blockVolume,
		StartingOI:          b.startingOI,
		EndingOI:            b.endingOI,
		OIChange:            b.endingOI - b.startingOI,
		TotalPremium:        b.totalPremium.Round(2),
		TotalNotional:       b.totalNotional.Round(2),
		GammaWeightedVolume: b.gammaWeighted,
		DeltaWeightedVolume: b.deltaWeighted,
		BuyVolume:           b.buyVolume,
		SellVolume:          b.sellVolume,
		NetFlow:             b.buyVolume - b.sellVolume,
		ATMVolume:           b.atmVolume,
		OTMVolume:           b.otmVolume,
		ITMVolume:           b.itmVolume,
		MaxTradeSize:        b.maxTradeSize,
		TradeCount:          b.tradeCount,
		UniqueStrikes:       int64(len(b.strikes)),
		BucketStart:         key.start,
		BucketEnd:           key.start.Add(BucketInterval),
	}

	if b.tradeCount > 0 {
		count := decimal.NewFromInt(b.tradeCount)
		row.AvgPremium = b.totalPremium.Div(count).Round(2)
		row.AvgUnderlyingPrice = b.spotSum / float64(b.tradeCount)
		row.AvgTradeSize = float64(b.totalVolume) / float64(b.tradeCount)
	}

	if b.totalVolume > 0 {
		vol := decimal.NewFromInt(b.totalVolume)
		row.VWAPPremium = b.premiumVolumeSum.Div(vol.Mul(vol)).Round(4)
	}

	// Dealer-facing convention: put delta pressure is negative
	row.NetDeltaExposure = b.deltaWeighted
	if key.optionType == "put" {
		row.NetDeltaExposure = -b.deltaWeighted
	}

	return row
}

// RunPeriodicFlush flushes closed buckets on an interval until the
// context is cancelled, then force-drains whatever remains.
func (a *Aggregator) RunPeriodicFlush(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := a.Flush(time.Now(), true); err != nil {
				log.Printf("⚠️  Final flow flush failed: %v", err)
			}
			return
		case now := <-ticker.C:
			if err := a.Flush(now, false); err != nil {
				log.Printf("⚠️  Flow flush failed: %v", err)
			}
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
