package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// TradeStation API credentials
	ClientID     string
	ClientSecret string
	RefreshToken string
	UseSandbox   bool

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration (optional, empty host disables caching)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Pipeline configuration
	Symbols   []string
	Ingestion IngestionConfig
	GEX       GEXConfig
	Greeks    GreeksConfig
}

// IngestionConfig holds streaming ingestion parameters
type IngestionConfig struct {
	BatchSize                int
	TargetExpiration         string // "today" or YYYY-MM-DD
	UnderlyingUpdateInterval time.Duration
	MetricsInterval          time.Duration
	HeartbeatTimeout         time.Duration
	ReconnectDelay           time.Duration
	StrikeProximity          int // 0 = full chain
}

// GEXConfig holds scheduler parameters
type GEXConfig struct {
	Interval time.Duration
}

// GreeksConfig holds Black-Scholes parameters
type GreeksConfig struct {
	RiskFreeRate  float64
	DividendYield float64
}

// pipelineFile mirrors the YAML layout of the pipeline config file.
type pipelineFile struct {
	Symbols   []string `yaml:"symbols"`
	Ingestion struct {
		BatchSize                int    `yaml:"batch_size"`
		TargetExpiration         string `yaml:"target_expiration"`
		UnderlyingUpdateInterval int    `yaml:"underlying_update_interval"`
		MetricsInterval          int    `yaml:"metrics_interval"`
		HeartbeatTimeout         int    `yaml:"heartbeat_timeout"`
		ReconnectDelay           int    `yaml:"reconnect_delay"`
		StrikeProximity          int    `yaml:"strike_proximity"`
	} `yaml:"ingestion"`
	GEX struct {
		Interval int `yaml:"interval"`
	} `yaml:"gex"`
	Greeks struct {
		RiskFreeRate  float64 `yaml:"risk_free_rate"`
		DividendYield float64 `yaml:"dividend_yield"`
	} `yaml:"greeks"`
}

// Load reads configuration from the environment, the database credentials
// file and the pipeline YAML file. Missing files fall back to defaults.
func Load() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		ClientID:     os.Getenv("TRADESTATION_CLIENT_ID"),
		ClientSecret: os.Getenv("TRADESTATION_CLIENT_SECRET"),
		RefreshToken: os.Getenv("TRADESTATION_REFRESH_TOKEN"),
		UseSandbox:   getEnvOrDefault("TRADESTATION_USE_SANDBOX", "false") == "true",

		RedisHost:     getEnvOrDefault("REDIS_HOST", ""),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Symbols: []string{"SPY"},
		Ingestion: IngestionConfig{
			BatchSize:                50,
			TargetExpiration:         "today",
			UnderlyingUpdateInterval: 30 * time.Second,
			MetricsInterval:          60 * time.Second,
			HeartbeatTimeout:         120 * time.Second,
			ReconnectDelay:           5 * time.Second,
			StrikeProximity:          0,
		},
		GEX: GEXConfig{
			Interval: 60 * time.Second,
		},
		Greeks: GreeksConfig{
			RiskFreeRate:  0.045,
			DividendYield: 0.013,
		},
	}

	cfg.loadDatabaseCredentials()

	if err := cfg.loadPipelineFile(getEnvOrDefault("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDatabaseCredentials reads DB settings from a dedicated KEY=VALUE file
// (kept separate from broker credentials), falling back to the process env.
func (c *Config) loadDatabaseCredentials() {
	credsFile := getEnvOrDefault("DB_ENV_FILE", "database/.env.db")
	fileVals, err := godotenv.Read(credsFile)
	if err != nil {
		fileVals = map[string]string{}
	}

	pick := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v, ok := fileVals[key]; ok && v != "" {
			return v
		}
		return def
	}

	c.DatabaseHost = pick("DB_HOST", "localhost")
	c.DatabasePort = pick("DB_PORT", "5432")
	c.DatabaseName = pick("DB_NAME", "options_flow")
	c.DatabaseUser = pick("DB_USER", "postgres")
	c.DatabasePassword = pick("DB_PASSWORD", "")
}

// loadPipelineFile applies overrides from the YAML pipeline config.
// A missing file is not an error, a malformed one is.
func (c *Config) loadPipelineFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No pipeline config at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("failed to read pipeline config: %w", err)
	}

	var pf pipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	if len(pf.Symbols) > 0 {
		c.Symbols = pf.Symbols
	}
	if pf.Ingestion.BatchSize > 0 {
		c.Ingestion.BatchSize = pf.Ingestion.BatchSize
	}
	if pf.Ingestion.TargetExpiration != "" {
		c.Ingestion.TargetExpiration = pf.Ingestion.TargetExpiration
	}
	if pf.Ingestion.UnderlyingUpdateInterval > 0 {
		c.Ingestion.UnderlyingUpdateInterval = time.Duration(pf.Ingestion.UnderlyingUpdateInterval) * time.Second
	}
	if pf.Ingestion.MetricsInterval > 0 {
		c.Ingestion.MetricsInterval = time.Duration(pf.Ingestion.MetricsInterval) * time.Second
	}
	if pf.Ingestion.HeartbeatTimeout > 0 {
		c.Ingestion.HeartbeatTimeout = time.Duration(pf.Ingestion.HeartbeatTimeout) * time.Second
	}
	if pf.Ingestion.ReconnectDelay > 0 {
		c.Ingestion.ReconnectDelay = time.Duration(pf.Ingestion.ReconnectDelay) * time.Second
	}
	if pf.Ingestion.StrikeProximity > 0 {
		c.Ingestion.StrikeProximity = pf.Ingestion.StrikeProximity
	}
	if pf.GEX.Interval > 0 {
		c.GEX.Interval = time.Duration(pf.GEX.Interval) * time.Second
	}
	if pf.Greeks.RiskFreeRate > 0 {
		c.Greeks.RiskFreeRate = pf.Greeks.RiskFreeRate
	}
	if pf.Greeks.DividendYield > 0 {
		c.Greeks.DividendYield = pf.Greeks.DividendYield
	}
	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("config: ingestion.batch_size must be >= 1")
	}
	if c.Ingestion.UnderlyingUpdateInterval <= 0 || c.Ingestion.MetricsInterval <= 0 ||
		c.Ingestion.HeartbeatTimeout <= 0 || c.Ingestion.ReconnectDelay <= 0 {
		return fmt.Errorf("config: ingestion intervals must be positive")
	}
	if c.GEX.Interval <= 0 {
		return fmt.Errorf("config: gex.interval must be positive")
	}
	return nil
}

// RequireBrokerCredentials fails fast when the TradeStation credentials are incomplete
func (c *Config) RequireBrokerCredentials() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("config: TRADESTATION_CLIENT_ID, TRADESTATION_CLIENT_SECRET and TRADESTATION_REFRESH_TOKEN are required")
	}
	return nil
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
