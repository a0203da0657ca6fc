package app

import (
	"net/http"
	"strings"

	"examhub/internal/app/apiresp"
	"examhub/internal/auth"
)

// gateDecision is the outcome of the route gate for one request.
type gateDecision int

const (
	gateAllow gateDecision = iota
	gateLogin
	gateForbidden
)

var publicPrefixes = []string{
	"/healthz",
	"/metrics",
	"/register",
	"/login",
	"/auth/verify-otp",
	"/logout",
	"/reset-password",
	"/static",
}

var studentAllowedPrefixes = []string{
	"/student/",
	"/profile",
}

func isPublicPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range publicPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// decideGate maps a request path and the resolved session user to a gate
// outcome. Students only reach the student surface and their own profile,
// everything else is staff territory.
func decideGate(path string, user *auth.User) gateDecision {
	if isPublicPath(path) {
		return gateAllow
	}
	if user == nil {
		return gateLogin
	}
	if strings.HasPrefix(path, "/student/") {
		if user.Role == "student" {
			return gateAllow
		}
		return gateForbidden
	}
	if user.Role == "student" {
		for _, prefix := range studentAllowedPrefixes {
			if strings.HasPrefix(path, prefix) {
				return gateAllow
			}
		}
		return gateForbidden
	}
	return gateAllow
}

// RouteGate sits in front of the whole router and turns gate outcomes into
// redirects or errors before any handler runs. Handlers still apply their
// own RequireAuth and RequireRoles checks; the gate is the coarse first cut.
func RouteGate(authHandler *auth.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authHandler.SessionUser(r)
			if err != nil {
				user = nil
			}

			switch decideGate(r.URL.Path, user) {
			case gateAllow:
				if user != nil {
					r = r.WithContext(auth.ContextWithUser(r.Context(), user))
				}
				next.ServeHTTP(w, r)
			case gateLogin:
				apiresp.WriteRedirect(w, r, "/login", "please log in to continue")
			default:
				apiresp.WriteError(w, r, http.StatusForbidden, "you do not have access to this page")
			}
		})
	}
}
