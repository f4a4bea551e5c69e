package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	EthereumAPIEndpoint string
	WebhookURL          string
	CoinGeckoAPIKey     string
	ServiceName         string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBMaxConns int

	// Blockchain
	ChainID            int
	QuoteTokenAddress  string
	QuoteTokenSymbol   string
	QuoteTokenDecimals int
	Confirmations      uint64

	// Indexing
	PollIntervalSeconds     int
	BatchBlocks             uint64
	GraduationCheckSeconds  int
	RateLimitBackoffSeconds int
	ErrorBackoffSeconds     int
	ScanWindowBlocks        uint64

	// Market discovery
	DiscoverySampleLogs    int
	DiscoveryTopK          int
	LaunchPathBonus        float64
	BalanceBonus           float64
	QuoteTouchCapRatio     int
	MarketHintSignatures   []string
	PairHintSignatures     []string
	LaunchPathAddresses    []string
	LaunchPathNetAddress   string

	// Alerts
	WhaleThresholdQuote string // integer, raw quote units

	// Tokens to track at startup, in addition to whatever is already in
	// the database.
	TrackTokenAddresses []string

	// Quote pricing
	CoinGeckoAssetID         string
	QuotePriceRefreshMinutes int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),
		WebhookURL:          envStr("WEBHOOK_URL", ""),
		CoinGeckoAPIKey:     envStr("COINGECKO_API_KEY", ""),
		ServiceName:         envStr("SERVICE_NAME", "CurvescanIndexer"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "curvescan"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),
		DBMaxConns: envInt("DB_MAX_CONNS", 10),

		// Blockchain
		ChainID:            envInt("CHAIN_ID", 1),
		QuoteTokenAddress:  envStr("QUOTE_TOKEN_ADDRESS", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		QuoteTokenSymbol:   envStr("QUOTE_TOKEN_SYMBOL", "WETH"),
		QuoteTokenDecimals: envInt("QUOTE_TOKEN_DECIMALS", 18),
		Confirmations:      uint64(envInt("CONFIRMATIONS", 3)),

		// Indexing
		PollIntervalSeconds:     envInt("POLL_INTERVAL_SECONDS", 5),
		BatchBlocks:             uint64(envInt("BATCH_BLOCKS", 100)),
		GraduationCheckSeconds:  envInt("GRADUATION_CHECK_SECONDS", 60),
		RateLimitBackoffSeconds: envInt("RATE_LIMIT_BACKOFF_SECONDS", 30),
		ErrorBackoffSeconds:     envInt("ERROR_BACKOFF_SECONDS", 10),
		ScanWindowBlocks:        uint64(envInt("SCAN_WINDOW_BLOCKS", 5000)),

		// Market discovery
		DiscoverySampleLogs: envInt("DISCOVERY_SAMPLE_LOGS", 400),
		DiscoveryTopK:       envInt("DISCOVERY_TOP_K", 8),
		LaunchPathBonus:     envFloat("DISCOVERY_LAUNCH_PATH_BONUS", 100),
		BalanceBonus:        envFloat("DISCOVERY_BALANCE_BONUS", 25),
		QuoteTouchCapRatio:  envInt("DISCOVERY_QUOTE_TOUCH_CAP_RATIO", 3),
		MarketHintSignatures: envList("MARKET_HINT_SIGNATURES",
			"marketAddress(),pairAddress(),bondingCurve()"),
		PairHintSignatures: envList("PAIR_HINT_SIGNATURES",
			"pairAddress(),uniswapPair(),dexPair()"),
		LaunchPathAddresses:  envList("LAUNCH_PATH_ADDRESSES", ""),
		LaunchPathNetAddress: envStr("LAUNCH_PATH_NET_ADDRESS", ""),

		// Alerts
		WhaleThresholdQuote: envStr("WHALE_THRESHOLD_QUOTE", "0"),

		TrackTokenAddresses: envList("TRACK_TOKEN_ADDRESSES", ""),

		// Quote pricing
		CoinGeckoAssetID:         envStr("COINGECKO_ASSET_ID", "ethereum"),
		QuotePriceRefreshMinutes: envInt("QUOTE_PRICE_REFRESH_MINUTES", 5),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.EthereumAPIEndpoint == "" {
		errs = append(errs, "ETHEREUM_API_ENDPOINT is required")
	}
	if c.QuoteTokenAddress == "" {
		errs = append(errs, "QUOTE_TOKEN_ADDRESS is required")
	}
	if c.BatchBlocks == 0 {
		errs = append(errs, "BATCH_BLOCKS must be positive")
	}
	if len(c.LaunchPathAddresses) == 0 {
		fmt.Println("[WARN] LAUNCH_PATH_ADDRESSES not set - launch-path trade inference disabled")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set - whale and graduation alerts disabled")
	}
	if c.WhaleThresholdQuote == "0" {
		fmt.Println("[WARN] WHALE_THRESHOLD_QUOTE is 0 - every trade counts as a whale trade")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Curvescan Indexer Configuration ===")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	fmt.Printf("Quote Token: %s (%s...)\n", c.QuoteTokenSymbol, truncAddr(c.QuoteTokenAddress))
	fmt.Printf("Confirmations: %d\n", c.Confirmations)
	fmt.Println("--------------------------------------")
	fmt.Println("Indexing:")
	fmt.Printf("  Poll Interval: %ds\n", c.PollIntervalSeconds)
	fmt.Printf("  Batch Size: %d blocks\n", c.BatchBlocks)
	fmt.Printf("  Graduation Check: every %ds\n", c.GraduationCheckSeconds)
	fmt.Printf("  Backoff: rate-limit %ds, other %ds\n", c.RateLimitBackoffSeconds, c.ErrorBackoffSeconds)
	fmt.Println("--------------------------------------")
	fmt.Println("Discovery:")
	fmt.Printf("  Sample Logs: %d\n", c.DiscoverySampleLogs)
	fmt.Printf("  Top-K Candidates: %d\n", c.DiscoveryTopK)
	fmt.Printf("  Launch Paths: %d configured\n", len(c.LaunchPathAddresses))
	fmt.Printf("  Hint Getters: %s\n", strings.Join(c.MarketHintSignatures, ", "))
	fmt.Println("--------------------------------------")
	fmt.Printf("Tracked Tokens (env): %d\n", len(c.TrackTokenAddresses))
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Printf("CoinGecko Asset: %s\n", c.CoinGeckoAssetID)
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envList(key, fallback string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
