// Package permission caches per-user permission codes in Redis and resolves
// misses from a caller-supplied Resolver.
package permission
