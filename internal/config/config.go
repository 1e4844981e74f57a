// Package config loads the assistant's configuration from an optional YAML
// file, with environment variables taking precedence for deploy-time values
// and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Channel    ChannelConfig    `yaml:"channel"`
	Custody    CustodyConfig    `yaml:"custody"`
	KYC        KYCConfig        `yaml:"kyc"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Session    SessionConfig    `yaml:"session"`
	Fees       FeesConfig       `yaml:"fees"`
	Settlement SettlementConfig `yaml:"settlement"`
	Engagement EngagementConfig `yaml:"engagement"`
	Admin      AdminConfig      `yaml:"admin"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	// URL is a PostgreSQL DSN. Empty selects the in-memory store.
	URL string `yaml:"url"`
}

type RedisConfig struct {
	// Addr selects the Redis session store when non-empty.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ChannelConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Token       string  `yaml:"token"`
	VerifyToken string  `yaml:"verify_token"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
}

type CustodyConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	EscrowAddress string `yaml:"escrow_address"`
}

type KYCConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

type PaymentsConfig struct {
	LinkBaseURL string `yaml:"link_base_url"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type FeesConfig struct {
	SeedGasPrice    int64         `yaml:"seed_gas_price"`
	SeedFXRate      int64         `yaml:"seed_fx_rate"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// OracleEndpoint enables live price refresh when set.
	OracleEndpoint string `yaml:"oracle_endpoint"`
	OracleAPIKey   string `yaml:"oracle_api_key"`
}

type SettlementConfig struct {
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MonitorTimeout time.Duration `yaml:"monitor_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
}

type EngagementConfig struct {
	Schedule      string        `yaml:"schedule"`
	InactiveAfter time.Duration `yaml:"inactive_after"`
}

type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// BroadcastLimit caps recipients per broadcast when > 0.
	BroadcastLimit int `yaml:"broadcast_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Channel:  ChannelConfig{RatePerSec: 10},
		Payments: PaymentsConfig{LinkBaseURL: "https://pay.nairalink.example"},
		Session:  SessionConfig{TTL: 30 * time.Minute},
		Fees: FeesConfig{
			SeedGasPrice:    1,
			SeedFXRate:      1_000_000,
			RefreshInterval: time.Minute,
		},
	}
}

// Load reads the YAML file at path (when non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Channel.Endpoint, "CHANNEL_ENDPOINT")
	setString(&c.Channel.Token, "CHANNEL_TOKEN")
	setString(&c.Channel.VerifyToken, "CHANNEL_VERIFY_TOKEN")
	setString(&c.Custody.Endpoint, "CUSTODY_ENDPOINT")
	setString(&c.Custody.APIKey, "CUSTODY_API_KEY")
	setString(&c.Custody.EscrowAddress, "CUSTODY_ESCROW_ADDRESS")
	setString(&c.KYC.Endpoint, "KYC_ENDPOINT")
	setString(&c.KYC.APIKey, "KYC_API_KEY")
	setString(&c.Payments.LinkBaseURL, "PAYMENTS_LINK_BASE_URL")
	setString(&c.Fees.OracleEndpoint, "FEES_ORACLE_ENDPOINT")
	setString(&c.Fees.OracleAPIKey, "FEES_ORACLE_API_KEY")
	setString(&c.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	setInt(&c.Redis.DB, "REDIS_DB")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
