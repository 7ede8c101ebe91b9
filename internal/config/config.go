// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	APIKey               string        // shared key for the platform frontend
	AdminToken           string        // backoffice bearer token
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// ChainConfig holds block-explorer API settings for both chains.
type ChainConfig struct {
	BTCExplorerURL      string        // esplora-style API, default blockstream.info
	EVMExplorerURL      string        // etherscan-style proxy API
	EVMAPIKey           string        // explorer API key, may be empty
	USDCContract        string        // ERC-20 contract address (lowercase hex)
	MinConfirmations    int64         // USDC verification threshold, default 12
	BTCMinConfirmations int64         // BTC reconciliation threshold, default 2
	FetchTimeout        time.Duration // default 10s
}

// SignerConfig holds custody-signer collaborator settings.
type SignerConfig struct {
	URL     string        // base URL of the signer service
	APIKey  string        // must be set in production
	Timeout time.Duration // default 30s
}

// QuoteConfig holds BTC/USD price-feed settings.
type QuoteConfig struct {
	CoinbaseURL  string        // default "https://api.coinbase.com"
	KrakenURL    string        // default "https://api.kraken.com"
	BinanceURL   string        // default "https://api.binance.com"
	FetchTimeout time.Duration // default 2s
	CacheTTL     time.Duration // default 5s
	// Weight percentages (must sum to 100)
	CoinbaseWeight int // default 40
	KrakenWeight   int // default 30
	BinanceWeight  int // default 30
}

// TreasuryConfig holds inventory and settlement defaults.  The live values of
// the operational controls come from system_settings; these are the fallbacks
// used when a key is absent.
type TreasuryConfig struct {
	DefaultHoldDuration  time.Duration // lot maturation delay, default 24h
	LowInventoryBTC      float64       // warning threshold, default 0.5
	DailyBuyLimitUSD     float64       // per-customer, default 10000
	MinCashoutUSD        float64       // default 10
	ProcessorBatchSize   int           // max swap orders per run, default 50
	ProcessorSchedule    string        // cron spec, default "* * * * *"
	ReconcileSchedule    string        // cron spec, default "*/2 * * * *"
	InventoryWatchSchedule string      // cron spec, default "*/5 * * * *"
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Chain    ChainConfig
	Signer   SignerConfig
	Quote    QuoteConfig
	Treasury TreasuryConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the joined validation errors.
func (c *Config) Validate() error {
	var errs []error

	// In production, secrets and the DB DSN must be explicit
	if c.IsProd() {
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
		if c.Server.APIKey == "" {
			errs = append(errs, errors.New("API_KEY must be set in production"))
		}
		if c.Server.AdminToken == "" {
			errs = append(errs, errors.New("ADMIN_TOKEN must be set in production"))
		}
		if c.Signer.APIKey == "" {
			errs = append(errs, errors.New("SIGNER_API_KEY must be set in production"))
		}
	}

	if c.Chain.USDCContract == "" {
		errs = append(errs, errors.New("USDC_CONTRACT must be set"))
	}
	if c.Chain.MinConfirmations < 1 {
		errs = append(errs, fmt.Errorf(
			"MIN_CONFIRMATIONS must be >= 1, got %d", c.Chain.MinConfirmations))
	}

	// Quote weights must sum to 100
	total := c.Quote.CoinbaseWeight + c.Quote.KrakenWeight + c.Quote.BinanceWeight
	if total != 100 {
		errs = append(errs, fmt.Errorf(
			"quote weights must sum to 100, got %d (Coinbase=%d Kraken=%d Binance=%d)",
			total, c.Quote.CoinbaseWeight, c.Quote.KrakenWeight, c.Quote.BinanceWeight,
		))
	}

	if c.Treasury.DefaultHoldDuration < 0 {
		errs = append(errs, errors.New("TREASURY_HOLD_DURATION must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		APIKey:               getEnv("API_KEY", ""),
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "hashcard_treasury"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── Chain explorers ───────────────────────────────────────────────────────
	minConf, err := getInt("MIN_CONFIRMATIONS", 12)
	if err != nil {
		return nil, fmt.Errorf("MIN_CONFIRMATIONS: %w", err)
	}
	btcMinConf, err := getInt("BTC_MIN_CONFIRMATIONS", 2)
	if err != nil {
		return nil, fmt.Errorf("BTC_MIN_CONFIRMATIONS: %w", err)
	}

	cfg.Chain = ChainConfig{
		BTCExplorerURL:      getEnv("BTC_EXPLORER_URL", "https://blockstream.info/api"),
		EVMExplorerURL:      getEnv("EVM_EXPLORER_URL", "https://api.etherscan.io/api"),
		EVMAPIKey:           getEnv("EVM_EXPLORER_API_KEY", ""),
		USDCContract:        getEnv("USDC_CONTRACT", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		MinConfirmations:    int64(minConf),
		BTCMinConfirmations: int64(btcMinConf),
		FetchTimeout:        getDuration("CHAIN_FETCH_TIMEOUT", 10*time.Second),
	}

	// ── Signer ────────────────────────────────────────────────────────────────
	cfg.Signer = SignerConfig{
		URL:     getEnv("SIGNER_URL", "http://localhost:9090"),
		APIKey:  getEnv("SIGNER_API_KEY", ""),
		Timeout: getDuration("SIGNER_TIMEOUT", 30*time.Second),
	}

	// ── Quotes ────────────────────────────────────────────────────────────────
	cbW, err := getInt("QUOTE_COINBASE_WEIGHT", 40)
	if err != nil {
		return nil, fmt.Errorf("QUOTE_COINBASE_WEIGHT: %w", err)
	}
	krW, err := getInt("QUOTE_KRAKEN_WEIGHT", 30)
	if err != nil {
		return nil, fmt.Errorf("QUOTE_KRAKEN_WEIGHT: %w", err)
	}
	bnW, err := getInt("QUOTE_BINANCE_WEIGHT", 30)
	if err != nil {
		return nil, fmt.Errorf("QUOTE_BINANCE_WEIGHT: %w", err)
	}

	cfg.Quote = QuoteConfig{
		CoinbaseURL:    getEnv("QUOTE_COINBASE_URL", "https://api.coinbase.com"),
		KrakenURL:      getEnv("QUOTE_KRAKEN_URL", "https://api.kraken.com"),
		BinanceURL:     getEnv("QUOTE_BINANCE_URL", "https://api.binance.com"),
		FetchTimeout:   getDuration("QUOTE_FETCH_TIMEOUT", 2*time.Second),
		CacheTTL:       getDuration("QUOTE_CACHE_TTL", 5*time.Second),
		CoinbaseWeight: cbW,
		KrakenWeight:   krW,
		BinanceWeight:  bnW,
	}

	// ── Treasury ──────────────────────────────────────────────────────────────
	lowInv, err := getFloat("TREASURY_LOW_INVENTORY_BTC", 0.5)
	if err != nil {
		return nil, fmt.Errorf("TREASURY_LOW_INVENTORY_BTC: %w", err)
	}
	dailyBuy, err := getFloat("TREASURY_DAILY_BUY_LIMIT_USD", 10000)
	if err != nil {
		return nil, fmt.Errorf("TREASURY_DAILY_BUY_LIMIT_USD: %w", err)
	}
	minCashout, err := getFloat("TREASURY_MIN_CASHOUT_USD", 10)
	if err != nil {
		return nil, fmt.Errorf("TREASURY_MIN_CASHOUT_USD: %w", err)
	}
	batchSize, err := getInt("PROCESSOR_BATCH_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("PROCESSOR_BATCH_SIZE: %w", err)
	}

	cfg.Treasury = TreasuryConfig{
		DefaultHoldDuration:    getDuration("TREASURY_HOLD_DURATION", 24*time.Hour),
		LowInventoryBTC:        lowInv,
		DailyBuyLimitUSD:       dailyBuy,
		MinCashoutUSD:          minCashout,
		ProcessorBatchSize:     batchSize,
		ProcessorSchedule:      getEnv("PROCESSOR_SCHEDULE", "* * * * *"),
		ReconcileSchedule:      getEnv("RECONCILE_SCHEDULE", "*/2 * * * *"),
		InventoryWatchSchedule: getEnv("INVENTORY_WATCH_SCHEDULE", "*/5 * * * *"),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
