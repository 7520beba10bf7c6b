// Package middleware adapts goSession.Engine to net/http.
//
// [Authenticate] is the request filter: it reads the bearer token, asks the
// engine for the identity and binds it to the request context for the
// lifetime of the handler. [RequireIdentity] turns a missing identity into a
// 401 response with a generic message. [ClientIP] resolves the caller address
// behind proxies.
//
// This package makes no authentication decisions of its own. Every check
// runs in Engine.Authenticate.
package middleware
