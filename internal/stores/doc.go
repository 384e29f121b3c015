// Package stores implements libauth.CredentialStore and the token
// revocation lookup.
//
// # Implementations
//
//   - [Postgres]: the platform's users table through pgx, with SQL built by
//     squirrel. Lockout counters and reset redemption are single conditional
//     UPDATE statements.
//   - [Memory]: a mutex-guarded map with the same compare-and-swap semantics,
//     used by tests, the lockout bench and the service when no DSN is set.
//   - [RedisDenylist]: read-only jti lookup for jwt.RevocationChecker.
//
// # What this package must NOT do
//
//   - Make authentication decisions; the engine owns them.
//   - Write revocation records.
//   - Log or expose password hashes or reset token digests.
package stores
