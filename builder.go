package authcore

import (
	"errors"
	"log"

	"github.com/croft-labs/authcore/cache"
	internalaudit "github.com/croft-labs/authcore/internal/audit"
	"github.com/croft-labs/authcore/internal/rate"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. The zero value is not usable; start from
// [New].
type Builder struct {
	config Config
	redis  redis.UniversalClient

	refreshStore store.RefreshTokenStore
	revocations  store.RevocationStore

	verifier  CredentialVerifier
	auditSink AuditSink
	warn      func(string, ...any)

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's config with a defensive copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis wires the redis client backing the token-state cache and the
// refresh throttle. Optional; without it both degrade to disabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores wires the durable refresh and revocation stores. Optional;
// without it Build falls back to the in-memory implementations.
func (b *Builder) WithStores(refresh store.RefreshTokenStore, revocations store.RevocationStore) *Builder {
	b.refreshStore = refresh
	b.revocations = revocations
	return b
}

// WithCredentialVerifier wires the caller's credential backend. Required
// for Login; engines without one still serve Refresh, Logout, and
// Authorize.
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink wires the destination for audit events. Ignored unless
// [AuditConfig.Enabled] is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithWarnLogger replaces the logger for degraded-path warnings. Defaults
// to the standard library logger.
func (b *Builder) WithWarnLogger(warn func(string, ...any)) *Builder {
	b.warn = warn
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the revocation gate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the Engine. A Builder
// can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	warn := b.warn
	if warn == nil {
		warn = log.Printf
	}

	refreshStore := b.refreshStore
	if refreshStore == nil {
		refreshStore = store.NewMemoryRefresh()
	}
	revocations := b.revocations
	if revocations == nil {
		revocations = store.NewMemoryRevocations()
	}

	var limiter *rate.Limiter
	if cfg.Security.EnableRefreshThrottle {
		if b.redis == nil {
			return nil, errors.New("refresh throttle requires redis client")
		}
		limiter = rate.New(b.redis, rate.Config{
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}

	engine := &Engine{
		config:       cfg,
		jwtManager:   jwtManager,
		refreshStore: refreshStore,
		revocations:  revocations,
		cache:        cache.New(b.redis, cfg.Cache.Prefix, warn),
		rateLimiter:  limiter,
		verifier:     b.verifier,
		metrics:      NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		warn:       warn,
		reaperStop: make(chan struct{}),
	}

	b.built = true
	return engine, nil
}
