package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionQuote represents a single option quote observed on the streaming
// chain, enriched with greeks before persistence.
//
// Key Fields:
//   - Timestamp: When the quote was observed (part of composite primary key)
//   - Symbol: Underlying ticker (SPY, QQQ, ...)
//   - Strike/Expiration/OptionType: Contract identity
//   - Bid/Ask/Mid/Last: Quote prices at observation time
//   - ImpliedVol: Vendor implied volatility (annualized)
//   - Delta..Rho: Greeks, either locally computed or vendor-supplied
//   - IsCalculated: True when greeks were computed locally from spot + IV
//   - SpreadPct: (ask-bid)/mid, null when either side of the book is empty
//
// TimescaleDB Optimization:
//   - Stored in a hypertable partitioned by timestamp
//   - Composite primary key doubles as the upsert conflict target
type OptionQuote struct {
	Timestamp       time.Time `gorm:"primaryKey;not null" json:"timestamp"`
	Symbol          string    `gorm:"size:10;primaryKey;not null" json:"symbol"`
	UnderlyingPrice float64   `gorm:"type:decimal(12,4)" json:"underlying_price"`
	Strike          float64   `gorm:"type:decimal(12,4);primaryKey;not null" json:"strike"`
	Expiration      string    `gorm:"type:date;primaryKey;not null" json:"expiration"`
	DTE             int       `gorm:"column:dte" json:"dte"`
	OptionType      string    `gorm:"size:4;primaryKey;not null" json:"option_type"` // call, put
	Bid             float64   `gorm:"type:decimal(12,4)" json:"bid"`
	Ask             float64   `gorm:"type:decimal(12,4)" json:"ask"`
	Mid             float64   `gorm:"type:decimal(12,4)" json:"mid"`
	Last            float64   `gorm:"type:decimal(12,4)" json:"last"`
	Volume          int64     `json:"volume"`
	OpenInterest    int64     `json:"open_interest"`
	ImpliedVol      float64   `gorm:"type:decimal(10,6)" json:"implied_vol"`
	Delta           float64   `gorm:"type:decimal(10,6)" json:"delta"`
	Gamma           float64   `gorm:"type:decimal(12,8)" json:"gamma"`
	Theta           float64   `gorm:"type:decimal(10,6)" json:"theta"`
	Vega            float64   `gorm:"type:decimal(10,6)" json:"vega"`
	Rho             float64   `gorm:"type:decimal(10,6)" json:"rho"`
	IsCalculated    bool      `gorm:"default:false" json:"is_calculated"`
	SpreadPct       *float64  `gorm:"type:decimal(10,6)" json:"spread_pct,omitempty"`
	Source          string    `gorm:"size:20" json:"source"`
}

// TableName specifies the table name for OptionQuote
func (OptionQuote) TableName() string {
	return "options_quotes"
}

// UnderlyingQuote represents a 1-minute OHLCV bar of the underlying.
type UnderlyingQuote struct {
	Timestamp   time.Time `gorm:"primaryKey;not null" json:"timestamp"`
	Symbol      string    `gorm:"size:10;primaryKey;not null" json:"symbol"`
	Open        float64   `gorm:"type:decimal(12,4)" json:"open"`
	Close       float64   `gorm:"type:decimal(12,4)" json:"close"`
	High        float64   `gorm:"type:decimal(12,4)" json:"high"`
	Low         float64   `gorm:"type:decimal(12,4)" json:"low"`
	TotalVolume int64     `json:"total_volume"`
	UpVolume    int64     `json:"up_volume"`
	DownVolume  int64     `json:"down_volume"`
	Source      string    `gorm:"size:20" json:"source"`
}

// TableName specifies the table name for UnderlyingQuote
func (UnderlyingQuote) TableName() string {
	return "underlying_quotes"
}

// GEXMetric represents a gamma exposure snapshot for one (symbol, expiration).
// One row is produced per scheduler cycle and upserted on the
// (timestamp, symbol, expiration) key.
//
// Key Fields:
//   - TotalGammaExposure: call + put gamma exposure across all strikes
//   - NetGEX: call - put gamma exposure; sign encodes the dealer gamma regime
//   - MaxGammaStrike: strike with the largest combined gamma exposure
//   - GammaFlipPoint: interpolated price where net gamma changes sign (nullable)
//   - MaxPain: strike minimizing aggregate option holder payout at expiry
//   - VannaExposure/CharmExposure: first-order approximations from vega/gamma
type GEXMetric struct {
	Timestamp          time.Time `gorm:"primaryKey;not null" json:"timestamp"`
	Symbol             string    `gorm:"size:10;primaryKey;not null" json:"symbol"`
	Expiration         string    `gorm:"type:date;primaryKey;not null" json:"expiration"`
	UnderlyingPrice    float64   `gorm:"type:decimal(12,4)" json:"underlying_price"`
	TotalGammaExposure float64   `gorm:"type:decimal(20,2)" json:"total_gamma_exposure"`
	CallGamma          float64   `gorm:"type:decimal(20,2)" json:"call_gamma"`
	PutGamma           float64   `gorm:"type:decimal(20,2)" json:"put_gamma"`
	NetGEX             float64   `gorm:"column:net_gex;type:decimal(20,2)" json:"net_gex"`
	CallVolume         int64     `json:"call_volume"`
	PutVolume          int64     `json:"put_volume"`
	CallOI             int64     `gorm:"column:call_oi" json:"call_oi"`
	PutOI              int64     `gorm:"column:put_oi" json:"put_oi"`
	TotalContracts     int64     `json:"total_contracts"`
	MaxGammaStrike     float64   `gorm:"type:decimal(12,4)" json:"max_gamma_strike"`
	MaxGammaValue      float64   `gorm:"type:decimal(20,2)" json:"max_gamma_value"`
	GammaFlipPoint     *float64  `gorm:"type:decimal(12,4)" json:"gamma_flip_point,omitempty"`
	MaxPain            float64   `gorm:"type:decimal(12,4)" json:"max_pain"`
	PutCallRatio       float64   `gorm:"type:decimal(10,4)" json:"put_call_ratio"`
	VannaExposure      float64   `gorm:"type:decimal(20,2)" json:"vanna_exposure"`
	CharmExposure      float64   `gorm:"type:decimal(20,2)" json:"charm_exposure"`
}

// TableName specifies the table name for GEXMetric
func (GEXMetric) TableName() string {
	return "gex_metrics"
}

// OptionFlowMetric represents one flushed 5-minute flow bucket for a
// (symbol, option_type) pair.
//
// Key Fields:
//   - BucketStart/BucketEnd: The 5-minute window boundaries (UTC)
//   - TotalPremium/TotalNotional: Money sums carried as exact decimals
//   - BuyVolume/SellVolume: Aggressor classification from quote position
//   - SweepVolume/BlockVolume: Aggressive prints and >=100 contract prints
//   - NetDeltaExposure: Signed dealer-facing delta, negated for puts
//   - ATMVolume/ITMVolume/OTMVolume: Moneyness distribution (2% ATM band)
type OptionFlowMetric struct {
	Timestamp           time.Time       `gorm:"primaryKey;not null" json:"timestamp"`
	Symbol              string          `gorm:"size:10;primaryKey;not null" json:"symbol"`
	OptionType          string          `gorm:"size:4;primaryKey;not null" json:"option_type"`
	TotalVolume         int64           `json:"total_volume"`
	SweepVolume         int64           `json:"sweep_volume"`
	BlockVolume         int64           `json:"block_volume"`
	OIChange            int64           `gorm:"column:oi_change" json:"oi_change"`
	StartingOI          int64           `gorm:"column:starting_oi" json:"starting_oi"`
	EndingOI            int64           `gorm:"column:ending_oi" json:"ending_oi"`
	TotalPremium        decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_premium"`
	AvgPremium          decimal.Decimal `gorm:"type:decimal(20,2)" json:"avg_premium"`
	VWAPPremium         decimal.Decimal `gorm:"column:vwap_premium;type:decimal(20,4)" json:"vwap_premium"`
	TotalNotional       decimal.Decimal `gorm:"type:decimal(20,2)" json:"total_notional"`
	AvgUnderlyingPrice  float64         `gorm:"type:decimal(12,4)" json:"avg_underlying_price"`
	DeltaWeightedVolume float64         `gorm:"type:decimal(20,2)" json:"delta_weighted_volume"`
	NetDeltaExposure    float64         `gorm:"type:decimal(20,2)" json:"net_delta_exposure"`
	GammaWeightedVolume float64         `gorm:"type:decimal(20,8)" json:"gamma_weighted_volume"`
	BuyVolume           int64           `json:"buy_volume"`
	SellVolume          int64           `json:"sell_volume"`
	NetFlow             int64           `json:"net_flow"`
	ATMVolume           int64           `gorm:"column:atm_volume" json:"atm_volume"`
	OTMVolume           int64           `gorm:"column:otm_volume" json:"otm_volume"`
	ITMVolume           int64           `gorm:"column:itm_volume" json:"itm_volume"`
	AvgTradeSize        float64         `gorm:"type:decimal(12,2)" json:"avg_trade_size"`
	MaxTradeSize        int64           `json:"max_trade_size"`
	TradeCount          int64           `json:"trade_count"`
	UniqueStrikes       int64           `json:"unique_strikes"`
	BucketStart         time.Time       `gorm:"not null" json:"bucket_start"`
	BucketEnd           time.Time       `gorm:"not null" json:"bucket_end"`
}

// TableName specifies the table name for OptionFlowMetric
func (OptionFlowMetric) TableName() string {
	return "option_flow_metrics"
}

// IngestionMetric captures periodic per-symbol throughput counters from the
// streaming engine.
type IngestionMetric struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp        time.Time  `gorm:"primaryKey;index;not null" json:"timestamp"`
	Source           string     `gorm:"size:20;not null" json:"source"`
	Symbol           string     `gorm:"size:10;index;not null" json:"symbol"`
	RecordsIngested  int64      `json:"records_ingested"`
	RecordsStored    int64      `json:"records_stored"`
	ErrorCount       int64      `json:"error_count"`
	HeartbeatCount   int64      `json:"heartbeat_count"`
	LastHeartbeat    *time.Time `json:"last_heartbeat,omitempty"`
	ProcessingTimeMs int64      `gorm:"column:processing_time_ms" json:"processing_time_ms"`
}

// TableName specifies the table name for IngestionMetric
func (IngestionMetric) TableName() string {
	return "ingestion_metrics"
}

// ServiceUptimeCheck is a liveness probe row written by each process loop.
type ServiceUptimeCheck struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp   time.Time `gorm:"primaryKey;index;not null" json:"timestamp"`
	ServiceName string    `gorm:"size:30;index;not null" json:"service_name"`
	IsRunning   bool      `gorm:"default:true" json:"is_running"`
	Details     string    `gorm:"type:text" json:"details,omitempty"`
}

// TableName specifies the table name for ServiceUptimeCheck
func (ServiceUptimeCheck) TableName() string {
	return "service_uptime_checks"
}
