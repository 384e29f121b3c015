// Package libauth is the authentication and password-lifecycle core of the
// Library Digital platform: email/password sign-in with a daily lockout,
// stateless HS256 bearer tokens, and single-use password reset tokens.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// libauth is the public surface. It exposes [Engine], [Builder], [Config],
// [CredentialStore] and value types ([Principal], [Identity], [SignInResult]).
// Token signing lives in the jwt package, hashing and password policy in
// password, and the HTTP request pipeline in middleware. Rate limiting, audit
// dispatch and the lockout state machine live under internal/.
//
// # What this package must NOT do
//
//   - Keep request identity anywhere but a context.Context.
//   - Return library error text (jwt, driver) to callers that render it to clients;
//     every failure is reported through the sentinels in errors.go.
//   - Block a request on message delivery.
package libauth
