// Package internal holds helpers shared by authcore subsystems that must
// never become part of the public API: opaque refresh-token generation and
// hashing. Import only from within this module.
package internal
