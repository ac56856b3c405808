// Package config loads server configuration from the environment with an
// optional YAML overlay for deployment-specific settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Chain    ChainConfig    `yaml:"chain"`
	Auth     AuthConfig     `yaml:"auth"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Prices   PricesConfig   `yaml:"prices"`
	Supply   SupplyConfig   `yaml:"supply"`
	Arweave  ArweaveConfig  `yaml:"arweave"`
	Redis    RedisConfig    `yaml:"redis"`
	Billing  BillingConfig  `yaml:"billing"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"HTTP_HOST,default=0.0.0.0" yaml:"host"`
	Port            int           `env:"HTTP_PORT,default=8080" yaml:"port"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=30s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=60s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdown_timeout"`
	AllowedOrigins  string        `env:"HTTP_ALLOWED_ORIGINS" yaml:"allowed_origins"`
	RateLimitRPS    int           `env:"HTTP_RATE_LIMIT_RPS,default=20" yaml:"rate_limit_rps"`
	RateLimitBurst  int           `env:"HTTP_RATE_LIMIT_BURST,default=40" yaml:"rate_limit_burst"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

// DatabaseConfig selects the persistence backend. Empty DSN falls back to
// the in-memory store.
type DatabaseConfig struct {
	DSN          string `env:"DATABASE_URL" yaml:"dsn"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS,default=16" yaml:"max_open_conns"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS,default=4" yaml:"max_idle_conns"`
}

// ChainConfig holds endpoints and identifiers for both chain families.
type ChainConfig struct {
	CosmosLCDURL     string        `env:"COSMOS_LCD_URL" yaml:"cosmos_lcd_url"`
	CosmosChainID    string        `env:"COSMOS_CHAIN_ID,default=likecoin-mainnet-2" yaml:"cosmos_chain_id"`
	CosmosDenom      string        `env:"COSMOS_DENOM,default=nanolike" yaml:"cosmos_denom"`
	EVMRPCURL        string        `env:"EVM_RPC_URL" yaml:"evm_rpc_url"`
	RequestTimeout   time.Duration `env:"CHAIN_REQUEST_TIMEOUT,default=30s" yaml:"request_timeout"`
	SignerPrivateKey string        `env:"COSMOS_SIGNER_PRIVATE_KEY" yaml:"-"`
	SignerAddress    string        `env:"COSMOS_SIGNER_ADDRESS" yaml:"signer_address"`
}

// AuthConfig holds JWT signing material.
type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET" yaml:"-"`
	JWTIssuer     string        `env:"JWT_ISSUER,default=likecoin-api" yaml:"jwt_issuer"`
	TokenLifetime time.Duration `env:"JWT_TOKEN_LIFETIME,default=24h" yaml:"token_lifetime"`
	AdminToken    string        `env:"ADMIN_TOKEN" yaml:"-"`
}

// LedgerConfig bounds the transaction-metadata write window.
type LedgerConfig struct {
	MetadataWindow time.Duration `env:"TX_METADATA_WINDOW,default=1h" yaml:"metadata_window"`
}

// PricesConfig controls the market-data cache.
type PricesConfig struct {
	UpstreamURL string        `env:"PRICES_UPSTREAM_URL" yaml:"upstream_url"`
	CoinID      string        `env:"PRICES_COIN_ID,default=likecoin" yaml:"coin_id"`
	CacheTTL    time.Duration `env:"PRICES_CACHE_TTL,default=5m" yaml:"cache_ttl"`
	StaleTTL    time.Duration `env:"PRICES_STALE_TTL,default=24h" yaml:"stale_ttl"`
}

// SupplyConfig lists wallets excluded from the circulating supply.
type SupplyConfig struct {
	TotalMinted     string   `env:"SUPPLY_TOTAL_MINTED,default=1000000000" yaml:"total_minted"`
	ReservedWallets []string `env:"SUPPLY_RESERVED_WALLETS" yaml:"reserved_wallets"`
	CacheMaxAge     int      `env:"SUPPLY_CACHE_MAX_AGE,default=3600" yaml:"cache_max_age"`
}

// ArweaveConfig points at the content-addressed storage gateway.
type ArweaveConfig struct {
	GatewayURL string        `env:"ARWEAVE_GATEWAY_URL" yaml:"gateway_url"`
	Timeout    time.Duration `env:"ARWEAVE_TIMEOUT,default=60s" yaml:"timeout"`
}

// RedisConfig configures the fire-and-forget analytics publisher. Empty
// address disables publishing.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" yaml:"addr"`
	Password string `env:"REDIS_PASSWORD" yaml:"-"`
	Channel  string `env:"ANALYTICS_CHANNEL,default=likecoin.analytics" yaml:"channel"`
}

// BillingConfig configures the subscription billing gateway. Empty URL
// disables paid tiers.
type BillingConfig struct {
	GatewayURL string `env:"BILLING_GATEWAY_URL" yaml:"gateway_url"`
}

// Load reads .env (if present), decodes the environment and applies the
// optional YAML overlay named by CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyYAML(&cfg, path); err != nil {
			return nil, err
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid HTTP port %d", cfg.Server.Port)
	}
	return &cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
