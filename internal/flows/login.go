package flows

import (
	"context"
	"time"

	"github.com/croft-labs/authcore/cache"
	"github.com/croft-labs/authcore/jwt"
	"github.com/croft-labs/authcore/store"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureCredentials
	LoginFailureSign
	LoginFailurePersist
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Pair    TokenPair

	// Retired reports how many earlier sessions were superseded; audit
	// metadata only.
	Retired int
}

// LoginRefreshStore is the store surface the login flow needs.
type LoginRefreshStore interface {
	Create(ctx context.Context, token *store.RefreshToken) error
	InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*store.RefreshToken, error)
}

// LoginDeps captures login flow dependencies. Credential verification is a
// collaborator: the flow only mints and persists for an already
// authenticated identity.
type LoginDeps struct {
	VerifyCredentials func(ctx context.Context, email, password string) (jwt.Subject, error)
	Minter            PairMinter
	RefreshStore      LoginRefreshStore
	Cache             StateCache
	CacheValidTTL     time.Duration
}

// RunLogin authenticates the credentials through the injected verifier and
// issues an access+refresh pair for the resulting identity.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	sub, err := deps.VerifyCredentials(ctx, email, password)
	if err != nil {
		return LoginResult{Failure: LoginFailureCredentials, Err: err}
	}

	access, jti, expiry, err := deps.Minter.SignAccess(sub)
	if err != nil {
		return LoginResult{Failure: LoginFailureSign, Err: err}
	}

	plaintext, row, err := deps.Minter.PrepareRefreshRow(sub.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailureSign, Err: err}
	}

	// A fresh login supersedes whatever sessions the subject already holds,
	// so the subject never carries more than one active row.
	now := deps.Minter.Now()
	retired, err := deps.RefreshStore.InvalidateAllForSubject(ctx, sub.ID)
	if err != nil {
		return LoginResult{Failure: LoginFailurePersist, Err: err}
	}
	for _, old := range retired {
		deps.Cache.SetRefreshState(ctx, sub.ID, old.TokenHash, cache.StateInvalid,
			remainingLife(old.ExpiresAt, now))
	}

	if err := deps.RefreshStore.Create(ctx, row); err != nil {
		return LoginResult{Failure: LoginFailurePersist, Err: err}
	}

	// Optimistic positive entry; the store remains authoritative.
	deps.Cache.SetRefreshState(ctx, sub.ID, row.TokenHash, cache.StateValid,
		validStateTTL(deps.CacheValidTTL, row.ExpiresAt, now))

	return LoginResult{
		Retired: len(retired),
		Pair: TokenPair{
			AccessToken:  access,
			RefreshToken: plaintext,
			AccessExpiry: expiry,
			JTI:          jti,
			SubjectID:    sub.ID,
		},
	}
}
