// Package middleware is the request security pipeline for net/http services
// built on libauth.
//
// # Pipeline
//
// [Pipeline] reads the Authorization header. Requests without a bearer token
// pass through as anonymous. A bearer token is authenticated through the
// Engine; any failure ends the request with 403 Access denied. Authenticated
// principals that must change their password may only reach the
// change-password endpoint and the /auth/ routes until they do.
//
// On success the identity is attached to the request context and can be read
// with [IdentityFromContext]. Nothing outlives the request.
//
// # Guards
//
//   - [RequireAuthenticated] rejects anonymous requests with 401.
//   - [RequireRoles] and [RequireAccountTypes] reject principals without a
//     matching role or account type with 403.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or read the credential store itself.
package middleware
