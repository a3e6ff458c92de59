package navigator

import (
	"net/url"
	"strings"

	"browser-observer/internal/domain/entity"
)

var loginSegments = map[string]bool{
	"login":   true,
	"signin":  true,
	"sign-in": true,
	"sign_in": true,
	"auth":    true,
	"sso":     true,
	"oauth":   true,
	"oauth2":  true,
}

var loginHostPrefixes = []string{"accounts.", "login.", "auth.", "sso."}

// IsLoginURL matches the common login page shapes: a login-like path
// segment, /session/new, or an accounts/login/sso host.
func IsLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range loginHostPrefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}

	path := strings.ToLower(u.Path)
	if strings.Contains(path, "/session/new") {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if loginSegments[seg] {
			return true
		}
	}
	return false
}

// IsAuthRedirect reports whether current is a login page the plan did not
// ask for. A plan that itself starts on a login page of the same host is
// allowed to stay there.
func IsAuthRedirect(startURL, current string) bool {
	if !IsLoginURL(current) {
		return false
	}
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return true
	}
	cur, _ := url.Parse(current)
	sameHost := strings.EqualFold(start.Hostname(), cur.Hostname())
	return !(sameHost && IsLoginURL(startURL))
}

// RequestedLogin reports whether step itself navigated to the login page at
// current, as opposed to being bounced there.
func RequestedLogin(step entity.PlanStep, current string) bool {
	if step.Action != entity.ActionNavigate || !IsLoginURL(step.Target.URL) {
		return false
	}
	target, err := url.Parse(step.Target.URL)
	if err != nil {
		return false
	}
	cur, err := url.Parse(current)
	if err != nil {
		return false
	}
	return strings.EqualFold(target.Hostname(), cur.Hostname())
}
