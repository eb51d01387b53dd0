package session

import (
	"net/http"
	"strings"
)

// CookieName is a __Host- cookie: Secure, Path=/ and no Domain.
const CookieName = "__Host-session"

const bearerPrefix = "bearer "

// Cookies issues and clears the session cookie with the deployment's
// settings. Build it once at startup.
type Cookies struct {
	Secure   bool
	SameSite http.SameSite
}

// NewCookies returns Lax cookies; secure is off only for local http.
func NewCookies(secure bool) Cookies {
	return Cookies{Secure: secure, SameSite: http.SameSiteLaxMode}
}

func (c Cookies) cookie(value string) *http.Cookie {
	sameSite := c.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

// Set writes the cookie for s, expiring with its absolute lifetime.
func (c Cookies) Set(w http.ResponseWriter, s Session) {
	ck := c.cookie(s.SessionID)
	ck.Expires = s.AbsoluteExpiresAt
	http.SetCookie(w, ck)
}

// Clear expires the cookie on the client.
func (c Cookies) Clear(w http.ResponseWriter) {
	ck := c.cookie("")
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

// IDFromRequest returns the session id carried by r: the cookie for
// browsers, else an "Authorization: Bearer <id>" header for the mobile
// app, which keeps the id it got at sign in. "" when neither is present.
func IDFromRequest(r *http.Request) string {
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}
