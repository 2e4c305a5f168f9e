// Package config manages meshsig daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/meshsig/meshsig/internal/links"
	"github.com/meshsig/meshsig/internal/wallet"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete meshsig configuration.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	Reaper    ReaperConfig    `koanf:"reaper"`
	Links     LinksConfig     `koanf:"links"`
	Wallet    WalletConfig    `koanf:"wallet"`
	Store     StoreConfig     `koanf:"store"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// TransportConfig holds the WebSocket signaling listener configuration.
type TransportConfig struct {
	// Addr is the HTTP listen address (e.g., ":8765").
	Addr string `koanf:"addr"`
	// AllowedOrigins lists acceptable values of the Origin header. An empty
	// list accepts any origin (development default).
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// ReaperConfig holds the empty-session reaper's schedule.
type ReaperConfig struct {
	// Interval is how often the reaper sweeps the registry.
	Interval time.Duration `koanf:"interval"`
	// MaxAge is how long an empty session survives before reclamation.
	MaxAge time.Duration `koanf:"max_age"`
}

// LinksConfig holds the persistent-link tier thresholds, expiries, and the
// auto-regeneration loop's schedule.
type LinksConfig struct {
	PersistenceThreshold float64       `koanf:"persistence_threshold"`
	PremiumThreshold     float64       `koanf:"premium_threshold"`
	FreeExpiry           time.Duration `koanf:"free_expiry"`
	WalletExpiry         time.Duration `koanf:"wallet_expiry"`
	PremiumExpiry        time.Duration `koanf:"premium_expiry"`
	AutoRegenInterval    time.Duration `koanf:"auto_regen_interval"`
}

// Thresholds converts LinksConfig into the links.Thresholds the manager
// consumes.
func (lc LinksConfig) Thresholds() links.Thresholds {
	return links.Thresholds{
		PersistenceThreshold: lc.PersistenceThreshold,
		PremiumThreshold:     lc.PremiumThreshold,
		FreeExpiry:           lc.FreeExpiry,
		WalletExpiry:         lc.WalletExpiry,
		PremiumExpiry:        lc.PremiumExpiry,
	}
}

// WalletConfig holds the wallet-balance oracle and its read-through cache.
type WalletConfig struct {
	// OracleURL is the base URL of an HTTP balance oracle. Empty selects
	// the in-process static oracle (development default).
	OracleURL string `koanf:"oracle_url"`
	// CacheCapacity is the read-through cache's entry limit.
	CacheCapacity int `koanf:"cache_capacity"`
	// CacheTTL is how long a fetched balance is considered fresh.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// StoreConfig holds the persistent-link Badger store's location and
// encryption-at-rest key source.
type StoreConfig struct {
	// Path is the on-disk directory for the Badger database.
	Path string `koanf:"path"`
	// InMemory runs the store with no on-disk files (tests, ephemeral
	// deployments).
	InMemory bool `koanf:"in_memory"`
	// EncryptionKeyEnv names an environment variable holding the
	// encryption-at-rest key. Empty disables encryption. The key itself is
	// never read into config -- only the variable name naming where to
	// find it, so it never round-trips through a YAML file or koanf dump.
	EncryptionKeyEnv string `koanf:"encryption_key_env"`
}

// EncryptionKey resolves the encryption key from the environment variable
// named by EncryptionKeyEnv, if set.
func (sc StoreConfig) EncryptionKey() []byte {
	if sc.EncryptionKeyEnv == "" {
		return nil
	}
	if v := os.Getenv(sc.EncryptionKeyEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Addr: ":8765",
		},
		Reaper: ReaperConfig{
			Interval: time.Minute,
			MaxAge:   10 * time.Minute,
		},
		Links: LinksConfig{
			PersistenceThreshold: links.DefaultPersistenceThreshold,
			PremiumThreshold:     links.DefaultPremiumThreshold,
			FreeExpiry:           links.DefaultFreeExpiry,
			WalletExpiry:         links.DefaultWalletExpiry,
			PremiumExpiry:        links.DefaultPremiumExpiry,
			AutoRegenInterval:    links.DefaultAutoRegenInterval,
		},
		Wallet: WalletConfig{
			CacheCapacity: 1024,
			CacheTTL:      wallet.DefaultTTL,
		},
		Store: StoreConfig{
			Path: "./data/links",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for meshsig configuration.
// Variables are named MESHSIG_<section>_<key>, e.g., MESHSIG_TRANSPORT_ADDR.
const envPrefix = "MESHSIG_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (MESHSIG_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	MESHSIG_TRANSPORT_ADDR  -> transport.addr
//	MESHSIG_REAPER_INTERVAL -> reaper.interval
//	MESHSIG_WALLET_ORACLE_URL -> wallet.oracle_url
//	MESHSIG_STORE_PATH      -> store.path
//	MESHSIG_LOG_LEVEL       -> log.level
//	MESHSIG_LOG_FORMAT      -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms MESHSIG_TRANSPORT_ADDR -> transport.addr.
// Strips the MESHSIG_ prefix, lowercases, and replaces the first _ with .
// so that keys containing underscores (wallet.oracle_url) stay intact.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"transport.addr":            defaults.Transport.Addr,
		"reaper.interval":           defaults.Reaper.Interval.String(),
		"reaper.max_age":            defaults.Reaper.MaxAge.String(),
		"links.persistence_threshold": defaults.Links.PersistenceThreshold,
		"links.premium_threshold":     defaults.Links.PremiumThreshold,
		"links.free_expiry":           defaults.Links.FreeExpiry.String(),
		"links.wallet_expiry":         defaults.Links.WalletExpiry.String(),
		"links.premium_expiry":        defaults.Links.PremiumExpiry.String(),
		"links.auto_regen_interval":   defaults.Links.AutoRegenInterval.String(),
		"wallet.cache_capacity":       defaults.Wallet.CacheCapacity,
		"wallet.cache_ttl":            defaults.Wallet.CacheTTL.String(),
		"store.path":                  defaults.Store.Path,
		"metrics.addr":                defaults.Metrics.Addr,
		"metrics.path":                defaults.Metrics.Path,
		"log.level":                   defaults.Log.Level,
		"log.format":                  defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyTransportAddr indicates the transport listen address is empty.
	ErrEmptyTransportAddr = errors.New("transport.addr must not be empty")

	// ErrInvalidReaperInterval indicates the reaper interval is not positive.
	ErrInvalidReaperInterval = errors.New("reaper.interval must be > 0")

	// ErrInvalidReaperMaxAge indicates the reaper max age is not positive.
	ErrInvalidReaperMaxAge = errors.New("reaper.max_age must be > 0")

	// ErrInvalidPremiumThreshold indicates the premium threshold is below
	// the persistence threshold.
	ErrInvalidPremiumThreshold = errors.New("links.premium_threshold must be >= links.persistence_threshold")

	// ErrInvalidCacheCapacity indicates the wallet cache capacity is not
	// positive.
	ErrInvalidCacheCapacity = errors.New("wallet.cache_capacity must be > 0")

	// ErrEmptyStorePath indicates the store path is empty while InMemory is
	// false.
	ErrEmptyStorePath = errors.New("store.path must not be empty unless store.in_memory is set")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Transport.Addr == "" {
		return ErrEmptyTransportAddr
	}

	if cfg.Reaper.Interval <= 0 {
		return ErrInvalidReaperInterval
	}

	if cfg.Reaper.MaxAge <= 0 {
		return ErrInvalidReaperMaxAge
	}

	if cfg.Links.PremiumThreshold < cfg.Links.PersistenceThreshold {
		return ErrInvalidPremiumThreshold
	}

	if cfg.Wallet.CacheCapacity <= 0 {
		return ErrInvalidCacheCapacity
	}

	if !cfg.Store.InMemory && cfg.Store.Path == "" {
		return ErrEmptyStorePath
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
