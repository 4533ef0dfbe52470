package auth

import (
	"net/url"
	"strings"
)

// SafeCallback returns raw when it is a same-origin path outside the auth
// pages, otherwise the landing page.
func (r GuardRoutes) SafeCallback(raw string) string {
	r = r.withDefaults()

	raw = strings.TrimSpace(raw)
	if !isLocalPath(raw) {
		return r.LandingPath
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return r.LandingPath
	}

	if r.Classify(u.Path) == AuthPage {
		return r.LandingPath
	}

	return raw
}

// isLocalPath accepts "/x" but not "//x", "/\x" or anything with control
// characters.
func isLocalPath(raw string) bool {
	if raw == "" || raw[0] != '/' {
		return false
	}
	if len(raw) > 1 && (raw[1] == '/' || raw[1] == '\\') {
		return false
	}
	for _, ch := range raw {
		if ch < 0x20 || ch == 0x7f || ch == '\\' {
			return false
		}
	}
	return true
}
