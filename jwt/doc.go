// Package jwt issues and verifies the credential tokens handed out by the
// admin API's login endpoint, and lets clients read a token's expiry
// without verifying it.
//
// # Architecture boundaries
//
// The dev server owns a [Manager] with signing keys. Clients never hold
// keys; they only call [ExpiresAt] to skip profile fetches for tokens that
// have obviously expired.
package jwt
