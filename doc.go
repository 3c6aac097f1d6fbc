// Package goConsole owns the operator session of an admin console: the
// credential token, the signed-in operator's profile, and the loading and
// error flags that views and route guards read.
//
// A [Store] is built once per process through [Builder.Build] and passed to
// whatever needs it. It is safe to call from multiple goroutines.
//
// # Architecture boundaries
//
// goConsole is the public surface. It exposes [Store], [Builder], [Config],
// [Decide] and value types ([Snapshot], [Profile], [Credentials]). Transport
// lives in the api package, credential persistence in the credential package,
// HTTP route guarding in the middleware package. Event dispatch and logging
// helpers live under internal/.
//
// # What this package must NOT do
//
//   - Hold a package-level session; every consumer receives a *Store.
//   - Perform network I/O outside Start and Login.
//   - Log credential tokens or secrets.
//
// # State machine
//
// A Store starts in [StatusInitializing]. [Store.Start] checks the persisted
// credential and moves to [StatusAuthenticated] or [StatusUnauthenticated]
// (or [StatusError] when the credential backend cannot be read).
// [Store.Login] passes through [StatusAuthenticating]. [Store.Logout] always
// lands in [StatusUnauthenticated]. Every operation takes a new epoch and a
// result that lands after a newer operation started is discarded.
package goConsole
