package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for access tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with an ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// ErrMalformed is returned when a token cannot be parsed or its signature
// does not verify. Expiry alone never produces ErrMalformed.
var ErrMalformed = errors.New("malformed access token")

// Config holds the immutable signing parameters for a Manager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Subject is the identity baked into an access token.
type Subject struct {
	ID    string
	Email string
	Name  string
}

// AccessClaims is the claim set carried by every access token. The jti
// lives in RegisteredClaims.ID and is the revocation key.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens. It is stateless: a pure
// cryptographic function over its configured secret, algorithm, issuer,
// and audience.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// Issue mints a signed access token for sub with a fresh random jti and
// the configured TTL. Returns the compact token, its jti, and its expiry.
func (m *Manager) Issue(sub Subject) (string, string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessTTL)
	jti := uuid.NewString()

	claims := AccessClaims{
		UID:   sub.ID,
		Email: sub.Email,
		Name:  sub.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method(), claims)
	signKey, err := m.signKey()
	if err != nil {
		return "", "", time.Time{}, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, expiresAt, nil
}

// Parse verifies signature and all time claims. Used on the request path,
// where an expired token must be rejected.
func (m *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	return m.parseWith(tokenStr, options, true)
}

// ParseExpired verifies the signature but ignores expiry. The rotation
// path needs it: a refresh request authenticates whose refresh this is with
// an access token that has usually already expired. Tampered signatures
// still fail closed.
func (m *Manager) ParseExpired(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithoutClaimsValidation(),
	}

	claims, err := m.parseWith(tokenStr, options, false)
	if err != nil {
		return nil, err
	}

	// WithoutClaimsValidation skips issuer/audience too; re-check by hand.
	if m.config.Issuer != "" && claims.Issuer != m.config.Issuer {
		return nil, ErrMalformed
	}
	if m.config.Audience != "" && !containsAudience(claims.Audience, m.config.Audience) {
		return nil, ErrMalformed
	}
	return claims, nil
}

// JTI extracts the unique token id from a structurally valid token,
// expired or not.
func (m *Manager) JTI(tokenStr string) (string, error) {
	claims, err := m.ParseExpired(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", ErrMalformed
	}
	return claims.ID, nil
}

func (m *Manager) parseWith(tokenStr string, options []jwt.ParserOption, requireValid bool) (*AccessClaims, error) {
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || (requireValid && !token.Valid) {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
