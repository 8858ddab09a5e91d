// Package auth is an embeddable session and token lifecycle core.
//
// It issues short-lived JWT access tokens paired with opaque, rotating
// refresh tokens, tracks sessions with revocation and expiry, runs the
// password reset flow, and gates requests on host-resolved claims and
// policies. Persistence, claims resolution, and policy evaluation are
// injected; the package ships a relational adapter on bun and an in-memory
// adapter for tests and examples.
//
// Construct an Engine with New, wire a Storage implementation plus the
// claims and policy resolvers of the host application, and mount the
// optional HTTP glue with RegisterAPIRoutes.
package auth
