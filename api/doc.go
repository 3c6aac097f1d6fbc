// Package api is the net/http implementation of goConsole.APIClient.
//
// It speaks the admin API's two auth endpoints:
//
//	POST <LoginPath>    {"identifier": "...", "secret": "..."} -> {"token": "..."}
//	GET  <ProfilePath>  Authorization: Bearer <token>          -> profile JSON
//
// Errors wrap the goConsole sentinels: transport failures and 5xx answers
// wrap ErrNetworkUnavailable, refused logins wrap ErrLoginRejected and any
// non-success profile answer wraps ErrCredentialRejected.
package api
