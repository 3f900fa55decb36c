// Package middleware adapts a goSession engine to net/http.
//
// # Handlers
//
//   - [Sessions] resolves the session named by the request cookie, stores it in the
//     request context, and re-issues the cookie when the id changed.
//   - [RequireCSRF] consumes a one-time CSRF token on state-changing requests.
//
// Cookie attributes come from the engine configuration.
//
// # What this package must NOT do
//
//   - Touch either storage tier directly (all reads and writes go through the Engine).
//   - Decide anything about session contents beyond CSRF token validity.
package middleware
