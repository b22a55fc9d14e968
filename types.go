package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/croft-labs/authcore/internal/audit"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessExpiry time.Time
	JTI          string
	SubjectID    string
}

// Identity is the authenticated principal a [CredentialVerifier] resolves
// credentials to. ID is required; Email and Name are carried into access
// token claims when set.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// CredentialVerifier is the interface callers implement to plug their user
// database into the engine. Verify returns the identity for valid
// credentials and an error otherwise; the engine maps every verifier error
// to [ErrInvalidCredentials] so backends cannot leak account existence.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (Identity, error)
}

// CredentialVerifierFunc adapts a function to [CredentialVerifier].
type CredentialVerifierFunc func(ctx context.Context, username, password string) (Identity, error)

func (f CredentialVerifierFunc) Verify(ctx context.Context, username, password string) (Identity, error) {
	return f(ctx, username, password)
}

// Decision is the outcome of a revocation gate check.
type Decision int

const (
	// DecisionAllow lets the request proceed to full verification.
	DecisionAllow Decision = iota
	// DecisionDeny means the access token has been revoked.
	DecisionDeny
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's async
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
