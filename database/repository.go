package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for the options pipeline
type Repository struct {
	db *Database
}

// NewRepository creates a new repository
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// InitSchema performs auto-migration and TimescaleDB setup
func (r *Repository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	// Create options_quotes manually: GORM AutoMigrate struggles with
	// hypertables, and the composite primary key doubles as the upsert
	// conflict target.
	if err := r.db.db.Exec(`
		CREATE TABLE IF NOT EXISTS options_quotes (
			timestamp TIMESTAMPTZ NOT NULL,
			symbol VARCHAR(10) NOT NULL,
			underlying_price DECIMAL(12,4),
			strike DECIMAL(12,4) NOT NULL,
			expiration DATE NOT NULL,
			dte INTEGER,
			option_type VARCHAR(4) NOT NULL,
			bid DECIMAL(12,4),
			ask DECIMAL(12,4),
			mid DECIMAL(12,4),
			last DECIMAL(12,4),
			volume BIGINT,
			open_interest BIGINT,
			implied_vol DECIMAL(10,6),
			delta DECIMAL(10,6),
			gamma DECIMAL(12,8),
			theta DECIMAL(10,6),
			vega DECIMAL(10,6),
			rho DECIMAL(10,6),
			is_calculated BOOLEAN DEFAULT FALSE,
			spread_pct DECIMAL(10,6),
			source VARCHAR(20),
			PRIMARY KEY (timestamp, symbol, strike, expiration, option_type)
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create options_quotes table: %w", err)
	}

	// Auto-migrate the remaining tables
	err := r.db.db.AutoMigrate(
		// &OptionQuote{}, // Managed manually above
		&UnderlyingQuote{},
		&GEXMetric{},
		&OptionFlowMetric{},
		&IngestionMetric{},
		&ServiceUptimeCheck{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Conflict targets for the periodic upserts
	r.db.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_flow_bucket_symbol_type
		ON option_flow_metrics (timestamp, symbol, option_type)
	`)
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_options_symbol_exp_time
		ON options_quotes (symbol, expiration, timestamp DESC)
	`)

	if err := r.setupTimescaleDB(); err != nil {
		return err
	}

	fmt.Println("✅ Database schema initialization completed successfully")
	return nil
}

// setupTimescaleDB creates hypertables and policies. Everything here is
// best-effort: a plain Postgres without the extension still works.
func (r *Repository) setupTimescaleDB() error {
	fmt.Println("⏰ Setting up TimescaleDB extension and hypertables...")

	if err := r.db.db.Exec("CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE").Error; err != nil {
		fmt.Printf("⚠️ Warning: TimescaleDB extension unavailable, continuing on plain Postgres: %v\n", err)
		return nil
	}
	fmt.Println("✅ TimescaleDB extension enabled")

	r.db.db.Exec(`
		SELECT create_hypertable('options_quotes', 'timestamp',
			chunk_time_interval => INTERVAL '1 day',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('options_quotes', INTERVAL '3 months', if_not_exists => TRUE)
	`)

	r.db.db.Exec(`
		SELECT create_hypertable('underlying_quotes', 'timestamp',
			chunk_time_interval => INTERVAL '7 days',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('underlying_quotes', INTERVAL '1 year', if_not_exists => TRUE)
	`)

	r.db.db.Exec(`
		SELECT create_hypertable('gex_metrics', 'timestamp',
			chunk_time_interval => INTERVAL '7 days',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('gex_metrics', INTERVAL '1 year', if_not_exists => TRUE)
	`)

	r.db.db.Exec(`
		SELECT create_hypertable('option_flow_metrics', 'timestamp',
			chunk_time_interval => INTERVAL '7 days',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('option_flow_metrics', INTERVAL '1 year', if_not_exists => TRUE)
	`)

	r.db.db.Exec(`
		SELECT create_hypertable('ingestion_metrics', 'timestamp',
			chunk_time_interval => INTERVAL '7 days',
			if_not_exists => TRUE
		)
	`)
	r.db.db.Exec(`
		SELECT add_retention_policy('ingestion_metrics', INTERVAL '1 month', if_not_exists => TRUE)
	`)

	return nil
}

// UpsertOptionQuotes writes a batch of quotes, updating quote fields in
// place when the same contract observation arrives again.
func (r *Repository) UpsertOptionQuotes(quotes []OptionQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	err := r.db.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "timestamp"}, {Name: "symbol"}, {Name: "strike"},
			{Name: "expiration"}, {Name: "option_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"bid", "ask", "mid", "last", "volume", "open_interest",
			"implied_vol", "delta", "gamma", "theta", "vega",
		}),
	}).Create(&quotes).Error
	return WrapDBError("upsert options_quotes", err)
}

// UpsertUnderlyingQuote stores the latest bar for an underlying symbol
func (r *Repository) UpsertUnderlyingQuote(quote *UnderlyingQuote) error {
	err := r.db.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "timestamp"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "close", "high", "low", "total_volume", "up_volume", "down_volume"}),
	}).Create(quote).Error
	return WrapDBError("upsert underlying_quotes", err)
}

// UpsertFlowMetrics writes flushed flow buckets
func (r *Repository) UpsertFlowMetrics(rows []OptionFlowMetric) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "timestamp"}, {Name: "symbol"}, {Name: "option_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_volume", "sweep_volume", "block_volume", "oi_change",
			"starting_oi", "ending_oi", "total_premium", "avg_premium",
			"vwap_premium", "total_notional", "avg_underlying_price",
			"delta_weighted_volume", "net_delta_exposure", "gamma_weighted_volume",
			"buy_volume", "sell_volume", "net_flow", "atm_volume", "otm_volume",
			"itm_volume", "avg_trade_size", "max_trade_size", "trade_count",
			"unique_strikes", "bucket_end",
		}),
	}).Create(&rows).Error
	return WrapDBError("upsert option_flow_metrics", err)
}

// UpsertGEXMetric stores one gamma exposure snapshot
func (r *Repository) UpsertGEXMetric(metric *GEXMetric) error {
	err := r.db.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "timestamp"}, {Name: "symbol"}, {Name: "expiration"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"underlying_price", "total_gamma_exposure", "call_gamma", "put_gamma",
			"net_gex", "call_volume", "put_volume", "call_oi", "put_oi",
			"total_contracts", "max_gamma_strike", "max_gamma_value",
			"gamma_flip_point", "max_pain", "put_call_ratio",
			"vanna_exposure", "charm_exposure",
		}),
	}).Create(metric).Error
	return WrapDBError("upsert gex_metrics", err)
}

// InsertIngestionMetric appends a throughput sample
func (r *Repository) InsertIngestionMetric(metric *IngestionMetric) error {
	return WrapDBError("insert ingestion_metrics", r.db.db.Create(metric).Error)
}

// InsertUptimeCheck appends a liveness probe row
func (r *Repository) InsertUptimeCheck(check *ServiceUptimeCheck) error {
	return WrapDBError("insert service_uptime_checks", r.db.db.Create(check).Error)
}

// ContractQuote is the per-contract snapshot feeding the GEX calculator:
// the most recent quote of each (strike, option_type) within the
// recency window.
type ContractQuote struct {
	Strike       float64
	OptionType   string
	Gamma        float64
	Delta        float64
	Vega         float64
	OpenInterest int64
	Volume       int64
}

// LatestContractQuotes returns the freshest quote per contract for a
// symbol and expiration, restricted to rows with usable gamma.
func (r *Repository) LatestContractQuotes(symbol, expiration string, window time.Duration) ([]ContractQuote, error) {
	var quotes []ContractQuote

	query := `
		SELECT DISTINCT ON (strike, option_type)
			strike, option_type, gamma, delta, vega, open_interest, volume
		FROM options_quotes
		WHERE symbol = ?
		  AND expiration = ?::date
		  AND timestamp >= NOW() - INTERVAL '1 hour' * ?
		  AND gamma > 0
		ORDER BY strike, option_type, timestamp DESC
	`

	err := r.db.db.Raw(query, symbol, expiration, window.Hours()).Scan(&quotes).Error
	return quotes, err
}

// LatestUnderlyingClose returns the most recent close for a symbol, or
// (0, nil) when no bar has been stored yet.
func (r *Repository) LatestUnderlyingClose(symbol string) (float64, error) {
	var quote UnderlyingQuote
	err := r.db.db.
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&quote).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return quote.Close, nil
}

// LatestGEXMetric returns the most recent snapshot for a symbol, or nil
// when none exists.
func (r *Repository) LatestGEXMetric(symbol string) (*GEXMetric, error) {
	var metric GEXMetric
	err := r.db.db.
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		First(&metric).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}
