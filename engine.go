package authcore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/internal"
	internalaudit "github.com/croft-labs/authcore/internal/audit"
	"github.com/croft-labs/authcore/internal/flows"
	"github.com/croft-labs/authcore/internal/rate"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// Engine is the session manager. Construct one through [Builder]; all
// methods are safe for concurrent use.
type Engine struct {
	config       Config
	jwtManager   *jwt.Manager
	refreshStore store.RefreshTokenStore
	revocations  store.RevocationStore
	cache        *cache.TokenStateCache
	rateLimiter  *rate.Limiter
	verifier     CredentialVerifier
	metrics      *Metrics
	audit        *internalaudit.Dispatcher
	warn         func(string, ...any)

	// now is a test seam; nil means time.Now.
	now func() time.Time

	reaperStop chan struct{}
	reaperWG   sync.WaitGroup
	reaperOnce sync.Once
	closeOnce  sync.Once
}

// Close stops the reaper and flushes the audit dispatcher. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.reaperStop)
		e.reaperWG.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot deep-copies the engine's metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) timeNow() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) auditEvent(ctx context.Context, eventType, subjectID, jti string, success bool, opErr error, meta map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp: e.timeNow(),
		EventType: eventType,
		SubjectID: subjectID,
		JTI:       jti,
		Success:   success,
		Metadata:  meta,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) minter() flows.PairMinter {
	return flows.PairMinter{
		SignAccess:      e.jwtManager.Issue,
		NewOpaqueToken:  internal.NewRefreshToken,
		NewRowID:        uuid.NewString,
		RefreshTokenTTL: e.config.Refresh.TTL,
		Now:             e.timeNow,
	}
}

// Login verifies the credentials through the configured
// [CredentialVerifier] and issues a fresh access+refresh pair.
func (e *Engine) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	if username == "" {
		return nil, validationErr("username", "must not be empty")
	}
	if password == "" {
		return nil, validationErr("password", "must not be empty")
	}

	result := flows.RunLogin(ctx, username, password, flows.LoginDeps{
		VerifyCredentials: func(ctx context.Context, u, p string) (jwt.Subject, error) {
			identity, err := e.verifier.Verify(ctx, u, p)
			if err != nil {
				return jwt.Subject{}, err
			}
			return jwt.Subject{ID: identity.ID, Email: identity.Email, Name: identity.Name}, nil
		},
		Minter:        e.minter(),
		RefreshStore:  e.refreshStore,
		Cache:         e.cache,
		CacheValidTTL: e.config.Cache.ValidStateTTL,
	})

	switch result.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureCredentials:
		e.metricInc(MetricLoginFailure)
		e.auditEvent(ctx, "login", "", "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case flows.LoginFailurePersist:
		e.metricInc(MetricLoginFailure)
		e.auditEvent(ctx, "login", result.Pair.SubjectID, "", false, result.Err, nil)
		return nil, ErrStoreUnavailable
	default:
		e.metricInc(MetricLoginFailure)
		return nil, result.Err
	}

	e.metricInc(MetricLoginSuccess)
	var meta map[string]string
	if result.Retired > 0 {
		meta = map[string]string{"sessions_retired": strconv.Itoa(result.Retired)}
	}
	e.auditEvent(ctx, "login", result.Pair.SubjectID, result.Pair.JTI, true, nil, meta)
	pair := TokenPair(result.Pair)
	return &pair, nil
}

// Refresh rotates the subject's refresh token and issues a new pair. The
// caller presents its current (possibly expired) access token plus the
// refresh token; exactly one concurrent caller per subject wins, the rest
// receive [ErrUnauthorized]. Replay of an already consumed token is
// treated as theft and, when configured, retires the subject's entire
// token family.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, validationErr("access_token", "must not be empty")
	}
	if refreshToken == "" {
		return nil, validationErr("refresh_token", "must not be empty")
	}

	result := flows.RunRefresh(ctx, accessToken, refreshToken, flows.RefreshDeps{
		ParseExpired:              e.jwtManager.ParseExpired,
		HashToken:                 internal.HashToken,
		ValidateShape:             internal.ValidateTokenShape,
		Minter:                    e.minter(),
		RefreshStore:              e.refreshStore,
		Cache:                     e.cache,
		RateLimiter:               e.rateLimiter,
		FamilyInvalidationOnReuse: e.config.Refresh.FamilyInvalidationOnReuse,
		CacheValidTTL:             e.config.Cache.ValidStateTTL,
		Warn:                      e.warn,
	})

	switch result.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		e.auditEvent(ctx, "refresh", result.SubjectID, "", false, ErrRefreshRateLimited, nil)
		return nil, ErrRefreshRateLimited
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricRefreshFailure)
		if result.FamilyInvalidated > 0 {
			e.metrics.Add(MetricFamilyInvalidated, uint64(result.FamilyInvalidated))
		}
		e.auditEvent(ctx, "refresh_reuse", result.SubjectID, "", false, result.Err, map[string]string{
			"family_invalidated": strconv.Itoa(result.FamilyInvalidated),
		})
		return nil, ErrUnauthorized
	case flows.RefreshFailureStore:
		e.metricInc(MetricRefreshFailure)
		e.auditEvent(ctx, "refresh", result.SubjectID, "", false, result.Err, nil)
		return nil, ErrStoreUnavailable
	case flows.RefreshFailureSign:
		e.metricInc(MetricRefreshFailure)
		return nil, result.Err
	default:
		// Decode, principal, shape, negative cache, and not-found all
		// collapse into the same uniform rejection.
		e.metricInc(MetricRefreshFailure)
		e.auditEvent(ctx, "refresh", result.SubjectID, "", false, ErrUnauthorized, nil)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricRefreshSuccess)
	e.auditEvent(ctx, "refresh", result.SubjectID, result.Pair.JTI, true, nil, nil)
	pair := TokenPair(result.Pair)
	return &pair, nil
}
