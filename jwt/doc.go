// Package jwt issues and verifies the signed bearer tokens carried in the
// Authorization header. Tokens are HS256 with one key per token class, and
// every read of a claim goes through full verification.
package jwt
