package authcore

import (
	"errors"
	"time"
)

// Config holds all engine tunables. Configure once before Build; the
// engine treats its config as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Cache    CacheConfig
	Reaper   ReaperConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

// JWTConfig controls access token signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// RefreshConfig controls refresh token rotation.
type RefreshConfig struct {
	TTL time.Duration

	// FamilyInvalidationOnReuse treats replay of a consumed token as a
	// theft signal and retires every active token the subject holds.
	FamilyInvalidationOnReuse bool
}

// CacheConfig controls the redis token-state cache. The cache is a pure
// accelerator; the engine works without it.
type CacheConfig struct {
	Prefix string

	// ValidStateTTL caps positive cache entries. Entries are additionally
	// clamped to the token's remaining life.
	ValidStateTTL time.Duration
}

// ReaperConfig controls background pruning of expired store rows.
type ReaperConfig struct {
	Interval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig controls abuse throttling.
type SecurityConfig struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:                       30 * 24 * time.Hour,
			FamilyInvalidationOnReuse: true,
		},
		Cache: CacheConfig{
			Prefix:        "ac",
			ValidStateTTL: 5 * time.Minute,
		},
		Reaper: ReaperConfig{
			Interval: 12 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      10,
			RefreshCooldownDuration: 5 * time.Minute,
		},
	}
}

// DefaultConfig returns the configuration Build starts from. Callers
// typically take this, override what they need, and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency. Build calls it; exported so
// callers can fail fast on hand-built configs.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}

	// Cache
	if c.Cache.ValidStateTTL < 0 {
		return errors.New("Cache ValidStateTTL must be >= 0")
	}

	// Reaper
	if c.Reaper.Interval <= 0 {
		return errors.New("Reaper Interval must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when throttling")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when throttling")
		}
	}

	return nil
}
