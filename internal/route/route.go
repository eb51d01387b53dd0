// Package route picks the screen the app lands on at launch from the
// caller's sign-in state and active organization.
package route

// AuthState is the slice of identity-provider state needed to pick the
// app's landing screen. OrgID is only meaningful when IsSignedIn is true.
type AuthState struct {
	IsSignedIn bool
	OrgID      string // active organization (family) scope, "" when none
}

// Target is a top-level navigation destination. The set is closed.
type Target int

const (
	Login Target = iota
	Onboarding
	Dashboard
)

func (t Target) String() string {
	switch t {
	case Onboarding:
		return "ONBOARDING"
	case Dashboard:
		return "DASHBOARD"
	default:
		return "LOGIN"
	}
}

// Href returns the client path the navigation layer redirects to.
func (t Target) Href() string {
	switch t {
	case Onboarding:
		return "/(auth)/onboarding"
	case Dashboard:
		return "/(tabs)/dashboard"
	default:
		return "/(auth)/login"
	}
}

// ResolveInitialRoute picks the landing screen for the given auth state.
//
// A signed-out state always yields Login, whatever OrgID holds, so a stale
// organization id can never reach organization-scoped screens.
func ResolveInitialRoute(state AuthState) Target {
	if !state.IsSignedIn {
		return Login
	}
	if state.OrgID == "" {
		return Onboarding
	}
	return Dashboard
}
