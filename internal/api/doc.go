// Package api hosts the HTTP handlers of the songs service.
//
// Handler binds the accounts and songs services to routes registered by
// internal/server. Authentication is resolved by RequireSession and
// OptionalSession, which wrap an auth.Gate and place the caller's
// auth.Identity on the request context; handlers never read tokens
// themselves. Errors from the services are mapped onto status codes and a
// JSON body of the form {"code", "error", "fields"} by writeError, which is
// the only place in the service that knows about HTTP status codes.
//
// The package does not reach for globals: services, the gate, the cookie
// policy, the metrics recorder and the logger are all injected when the
// Handler is built.
package api
