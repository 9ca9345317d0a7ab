// Package config loads certledger settings: built-in defaults, then an optional
// YAML file named by CERTLEDGER_CONFIG, then CERTLEDGER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	platformstrings "certledger/pkg/platform/strings"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendEthereum = "ethereum"

	AuditSinkNone     = "none"
	AuditSinkMemory   = "memory"
	AuditSinkPostgres = "postgres"
	AuditSinkKafka    = "kafka"

	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"

	// DefaultContractAddress is the CertificateSystem deployment the operator
	// console was built against.
	DefaultContractAddress = "0xc22e2b2561c83d39905f35f766c7255b4ec19685"

	envConfigPath = "CERTLEDGER_CONFIG"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Audit    AuditConfig    `yaml:"audit"`
	Auth     AuthConfig     `yaml:"auth"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// Timezone names the location human dates are parsed in. Empty means the
	// host's local zone.
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TrustProxyHeaders resolves client IPs from X-Forwarded-For/X-Real-IP.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

type LedgerConfig struct {
	Backend         string `yaml:"backend"`
	RPCURL          string `yaml:"rpc_url"`
	ContractAddress string `yaml:"contract_address"`
	// PrivateKey is the hex-encoded signing key used as the operator wallet.
	PrivateKey  string        `yaml:"private_key"`
	ChainID     int64         `yaml:"chain_id"`
	WatchEvents bool          `yaml:"watch_events"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type AuditConfig struct {
	Sink string `yaml:"sink"`
	// Buffer > 0 switches the publisher to asynchronous mode.
	Buffer int `yaml:"buffer"`
}

// RateLimitConfig bounds certificate API requests per client IP.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Store    string        `yaml:"store"`
}

type AuthConfig struct {
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

// Default returns the development configuration: in-memory ledger, no audit
// sink, local HTTP on :8080.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend:         BackendMemory,
			RPCURL:          "http://127.0.0.1:8545",
			ContractAddress: DefaultContractAddress,
			ChainID:         1337,
			CallTimeout:     30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Cooldown:         5 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			KeyPrefix:    "certledger",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:    "certledger.audit",
			ClientID: "certledger",
		},
		Audit: AuditConfig{Sink: AuditSinkNone},
		Auth: AuthConfig{
			// Development default; override in any shared deployment.
			SigningKey: "dev-secret-key-change-in-production",
			Issuer:     "certledger",
			TokenTTL:   12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 120,
			Window:   time.Minute,
			Store:    RateLimitStoreMemory,
		},
		LogLevel: "info",
	}
}

// Load reads the file named by CERTLEDGER_CONFIG (if any) and applies
// environment overrides.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(envConfigPath))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("CERTLEDGER_ADDR", &cfg.Server.Addr)
	dur("CERTLEDGER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v, ok := lookup("CERTLEDGER_TRUST_PROXY_HEADERS"); ok && v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CERTLEDGER_TRUST_PROXY_HEADERS: %w", err))
		} else {
			cfg.Server.TrustProxyHeaders = trust
		}
	}

	str("CERTLEDGER_LEDGER_BACKEND", &cfg.Ledger.Backend)
	str("CERTLEDGER_RPC_URL", &cfg.Ledger.RPCURL)
	str("CERTLEDGER_CONTRACT_ADDRESS", &cfg.Ledger.ContractAddress)
	str("CERTLEDGER_PRIVATE_KEY", &cfg.Ledger.PrivateKey)
	dur("CERTLEDGER_CALL_TIMEOUT", &cfg.Ledger.CallTimeout)
	if v, ok := lookup("CERTLEDGER_CHAIN_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CERTLEDGER_CHAIN_ID: %w", err))
		} else {
			cfg.Ledger.ChainID = id
		}
	}
	if v, ok := lookup("CERTLEDGER_WATCH_EVENTS"); ok && v != "" {
		watch, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CERTLEDGER_WATCH_EVENTS: %w", err))
		} else {
			cfg.Ledger.WatchEvents = watch
		}
	}

	integer("CERTLEDGER_BREAKER_FAILURES", &cfg.Breaker.FailureThreshold)
	dur("CERTLEDGER_BREAKER_COOLDOWN", &cfg.Breaker.Cooldown)

	str("CERTLEDGER_REDIS_URL", &cfg.Redis.URL)
	str("CERTLEDGER_DATABASE_URL", &cfg.Database.URL)
	if v, ok := lookup("CERTLEDGER_KAFKA_BROKERS"); ok && v != "" {
		cfg.Kafka.Brokers = platformstrings.SplitList(v)
	}
	str("CERTLEDGER_KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("CERTLEDGER_AUDIT_SINK", &cfg.Audit.Sink)
	integer("CERTLEDGER_AUDIT_BUFFER", &cfg.Audit.Buffer)

	str("CERTLEDGER_JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	dur("CERTLEDGER_TOKEN_TTL", &cfg.Auth.TokenTTL)

	if v, ok := lookup("CERTLEDGER_RATE_LIMIT_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CERTLEDGER_RATE_LIMIT_ENABLED: %w", err))
		} else {
			cfg.RateLimit.Enabled = enabled
		}
	}
	integer("CERTLEDGER_RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	dur("CERTLEDGER_RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	str("CERTLEDGER_RATE_LIMIT_STORE", &cfg.RateLimit.Store)

	str("CERTLEDGER_TIMEZONE", &cfg.Timezone)
	str("CERTLEDGER_LOG_LEVEL", &cfg.LogLevel)

	return errors.Join(errs...)
}

// Validate checks cross-field requirements for the selected backends.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis backend requires redis.url")
		}
	case BackendEthereum:
		if c.Ledger.RPCURL == "" {
			return errors.New("ethereum backend requires ledger.rpc_url")
		}
		if c.Ledger.ContractAddress == "" {
			return errors.New("ethereum backend requires ledger.contract_address")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	switch c.Audit.Sink {
	case "", AuditSinkNone, AuditSinkMemory:
	case AuditSinkPostgres:
		if c.Database.URL == "" {
			return errors.New("postgres audit sink requires database.url")
		}
	case AuditSinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka audit sink requires kafka.brokers")
		}
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return errors.New("rate_limit.requests and rate_limit.window must be positive")
		}
		switch c.RateLimit.Store {
		case RateLimitStoreMemory:
		case RateLimitStoreRedis:
			if c.Redis.URL == "" {
				return errors.New("redis rate limit store requires redis.url")
			}
		default:
			return fmt.Errorf("unknown rate limit store %q", c.RateLimit.Store)
		}
	}

	if c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
