// Package flows holds the engine's core logic as dependency-injected
// runners. Each flow receives everything it touches through a deps
// struct and reports failures as typed kinds rather than user-facing
// errors; the root package owns the mapping to its public error
// surface. Keeping the flows free of engine state makes every branch
// reachable from a plain table test.
package flows
