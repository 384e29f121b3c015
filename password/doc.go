// Package password hashes and verifies account passwords and enforces the
// password policy.
//
// New hashes are argon2id in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Accounts imported from the previous platform carry bcrypt hashes. [Chain]
// verifies both and reports legacy or under-parameterised hashes through
// NeedsUpgrade so the caller can re-hash after a successful sign-in.
//
// This package never stores passwords and never logs them.
package password
