// Package middleware exposes HTTP adapters over Engine validation.
//
// # Guards
//
//   - [Gate]: revocation check only; undecodable tokens pass through.
//   - [Require]: full verification plus revocation; claims injected
//     into the request context.
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// the Engine.
package middleware
