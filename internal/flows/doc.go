// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each RunX function accepts a typed dependency struct and returns a result
// carrying a failure kind; the root package maps kinds to public errors,
// metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through dependency functions.
package flows
