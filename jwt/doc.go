// Package jwt wraps golang-jwt/v5 behind the narrow signer contract the
// token lifecycle needs: mint an access token with a fresh jti, verify one
// on the request path, and parse one with expiry ignored on the rotation
// path. HS256 and ed25519 are supported; the Manager is stateless and safe
// for concurrent use.
package jwt
