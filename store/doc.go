// Package store defines the durable registries behind the token lifecycle:
// per-subject refresh-token rotation state and the revoked-access-token
// denylist.
//
// The package ships an in-memory implementation (Memory) suitable for tests
// and single-node use. The postgres subpackage provides the durable
// implementation. Both enforce the same contract: Rotate is atomic per
// subject, terminal rows never reactivate, and mutating operations either
// commit fully or leave prior state intact.
package store
