// Package middleware adapts the goConsole route guard to net/http.
//
// # Guards
//
//   - [Guard]: consults Store.Guard on every request to a protected route.
//   - [RequireRole]: additionally requires the signed-in operator's role.
//   - [RequirePermission]: additionally requires a permission.Policy grant.
//
// Allow passes the request on with the snapshot in its context
// ([SnapshotFromContext]). RedirectToLogin answers 303 to the login path
// with the original location in a return parameter, or 401 for JSON
// clients. ShowLoading answers 503 with Retry-After.
//
// # What this package must NOT do
//
//   - Call the admin API or touch the credential backend.
//   - Decide anything beyond what goConsole.Decide returns.
package middleware
