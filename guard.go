package goConsole

// Decision is the route guard's answer for a navigation to a protected area.
type Decision uint8

const (
	// DecisionShowLoading asks the caller to render a placeholder and retry;
	// the session is still resolving.
	DecisionShowLoading Decision = iota
	// DecisionAllow lets the navigation proceed.
	DecisionAllow
	// DecisionRedirectToLogin sends the operator to the login screen.
	DecisionRedirectToLogin
)

// String returns the lower-case name of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionShowLoading:
		return "show_loading"
	case DecisionAllow:
		return "allow"
	case DecisionRedirectToLogin:
		return "redirect_to_login"
	default:
		return "unknown"
	}
}

// Decide maps a session snapshot to a guard decision. It reads nothing but
// its argument, so equal snapshots always produce equal decisions.
func Decide(s Snapshot) Decision {
	switch s.Status {
	case StatusInitializing, StatusAuthenticating:
		return DecisionShowLoading
	case StatusAuthenticated:
		return DecisionAllow
	default:
		return DecisionRedirectToLogin
	}
}
