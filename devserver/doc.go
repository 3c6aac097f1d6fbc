// Package devserver is a small admin API for local development and tests.
// It serves the two endpoints a goConsole Store talks to:
//
//	POST /auth/login   {"identifier","secret"} -> {"token","expires_at"}
//	GET  /profile      Authorization: Bearer <token> -> operator profile
//
// Operators live in memory with argon2id-hashed secrets. Tokens are EdDSA
// JWTs from the jwt package. An optional artificial latency makes loading
// states visible, and an optional rate.Limiter throttles failed logins.
package devserver
