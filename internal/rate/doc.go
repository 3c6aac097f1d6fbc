// Package rate throttles failed logins against the dev server with
// Redis-backed fixed-window counters.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Keys:
//   - <prefix>:rl:id:<identifier>  failed logins per identifier
//   - <prefix>:rl:ip:<ip>          failed logins per client IP
//
// Identifiers are lower-cased before keying.
package rate
