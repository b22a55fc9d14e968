// Package password implements password hashing and verification with
// Argon2id defaults. Credential verifiers plugged into the engine can use
// it to check stored hashes without pulling in their own KDF stack.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsRehash] reports when a stored hash was produced with
// weaker parameters so callers can re-hash on the next successful login.
// This package never stores passwords and never logs plaintext.
package password
