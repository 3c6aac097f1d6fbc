package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	goConsole "github.com/MrEthical07/goConsole"
)

// Session is the part of *goConsole.Store the guards need.
type Session interface {
	Guard() (goConsole.Snapshot, goConsole.Decision)
	Config() goConsole.Config
}

type snapshotContextKey struct{}

// SnapshotFromContext returns the snapshot an allowing guard attached.
func SnapshotFromContext(ctx context.Context) (goConsole.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(goConsole.Snapshot)
	return snap, ok
}

// Guard protects next with the session's route guard.
func Guard(session Session) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			snap, decision := session.Guard()
			cfg := session.Config().Guard

			switch decision {
			case goConsole.DecisionAllow:
				ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
				next.ServeHTTP(w, r.WithContext(ctx))
			case goConsole.DecisionShowLoading:
				showLoading(w, r, cfg)
			default:
				redirectToLogin(w, r, cfg, snap)
			}
		})
	}
}

func showLoading(w http.ResponseWriter, r *http.Request, cfg goConsole.GuardConfig) {
	secs := int(math.Ceil(cfg.LoadingRetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.Header().Set("Cache-Control", "no-store")
	if wantsJSON(r) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "session_loading", Message: "The session is still loading."})
		return
	}
	http.Error(w, "loading", http.StatusServiceUnavailable)
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, cfg goConsole.GuardConfig, snap goConsole.Snapshot) {
	w.Header().Set("Cache-Control", "no-store")
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated", Message: snap.Error})
		return
	}
	http.Redirect(w, r, LoginURL(cfg, r.URL.RequestURI()), http.StatusSeeOther)
}

// LoginURL returns the login path carrying returnTo in the configured
// return parameter. Unsafe return locations are dropped.
func LoginURL(cfg goConsole.GuardConfig, returnTo string) string {
	returnTo = SafeReturnPath(returnTo)
	if returnTo == "" || returnTo == cfg.LoginPath || cfg.ReturnToParam == "" {
		return cfg.LoginPath
	}
	return cfg.LoginPath + "?" + url.Values{cfg.ReturnToParam: {returnTo}}.Encode()
}

// SafeReturnPath returns p if it is a local absolute path, else "".
// Login handlers use it before redirecting to a user-supplied location.
func SafeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.IsAbs() || u.Host != "" {
		return ""
	}
	return p
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
