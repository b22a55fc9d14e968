package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/croft-labs/authcore"
)

func newTestEngine(t *testing.T) *authcore.Engine {
	t.Helper()
	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.JWT.Audience = "api"

	engine, err := authcore.New().
		WithConfig(cfg).
		WithCredentialVerifier(authcore.CredentialVerifierFunc(
			func(_ context.Context, username, password string) (authcore.Identity, error) {
				if password != "hunter22" {
					return authcore.Identity{}, errors.New("unknown account")
				}
				return authcore.Identity{ID: "sub-alice", Email: username}, nil
			})).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func login(t *testing.T, engine *authcore.Engine) *authcore.TokenPair {
	t.Helper()
	pair, err := engine.Login(context.Background(), "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

func serve(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGatePassesUnlessRevoked(t *testing.T) {
	engine := newTestEngine(t)
	handler := Gate(engine)(okHandler())

	// The gate only answers the denylist question; everything else passes.
	for _, header := range []string{"", "Bearer not-a-jwt", "Basic abc"} {
		if rec := serve(handler, header); rec.Code != http.StatusOK {
			t.Fatalf("header %q: status %d, want 200", header, rec.Code)
		}
	}

	pair := login(t, engine)
	if rec := serve(handler, "Bearer "+pair.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d, want 200", rec.Code)
	}

	if err := engine.Logout(context.Background(), pair.SubjectID, pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if rec := serve(handler, "Bearer "+pair.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: status %d, want 401", rec.Code)
	}
}

func TestGateNilEngine(t *testing.T) {
	handler := Gate(nil)(okHandler())
	if rec := serve(handler, "Bearer anything"); rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestRequireInjectsClaims(t *testing.T) {
	engine := newTestEngine(t)
	pair := login(t, engine)

	var gotUID string
	handler := Require(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
			return
		}
		gotUID = claims.UID
	}))

	if rec := serve(handler, "Bearer "+pair.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if gotUID != "sub-alice" {
		t.Fatalf("uid = %q, want sub-alice", gotUID)
	}
}

func TestRequireRejects(t *testing.T) {
	engine := newTestEngine(t)
	handler := Require(engine)(okHandler())

	for _, header := range []string{"", "Bearer ", "Bearer not-a-jwt", "token-without-scheme"} {
		if rec := serve(handler, header); rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status %d, want 401", header, rec.Code)
		}
	}

	// Revoked tokens fail even though the signature still verifies.
	pair := login(t, engine)
	if err := engine.Logout(context.Background(), pair.SubjectID, pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if rec := serve(handler, "Bearer "+pair.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: status %d, want 401", rec.Code)
	}

	if rec := serve(Require(nil)(okHandler()), "Bearer anything"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("nil engine: status %d, want 401", rec.Code)
	}
}

func TestClaimsFromContextMiss(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield claims")
	}
}
