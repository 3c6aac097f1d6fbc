package middleware

import (
	"net/http"

	goConsole "github.com/MrEthical07/goConsole"
	"github.com/MrEthical07/goConsole/permission"
)

// RequireRole is [Guard] plus a check that the operator's role is one of
// roles. A signed-in operator with another role gets 403.
func RequireRole(session Session, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return requireUser(session, func(p *goConsole.Profile) bool {
		_, ok := allowed[p.Role]
		return ok
	})
}

// RequirePermission is [Guard] plus a check that policy grants the
// operator's role every one of perms.
func RequirePermission(session Session, policy *permission.Policy, perms ...string) func(http.Handler) http.Handler {
	return requireUser(session, func(p *goConsole.Profile) bool {
		return policy.Allows(p.Role, perms...)
	})
}

func requireUser(session Session, allow func(*goConsole.Profile) bool) func(http.Handler) http.Handler {
	guard := Guard(session)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, ok := SnapshotFromContext(r.Context())
			if !ok || snap.User == nil || !allow(snap.User) {
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func forbidden(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
		return
	}
	http.Error(w, "forbidden", http.StatusForbidden)
}
