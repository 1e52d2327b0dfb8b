// Package session reads and issues the gateway's session cookies. The cookie
// values are opaque tokens minted by the backends; the gateway never decodes
// or signs them.
package session

import (
	"net/http"

	"scafoldr-gateway/internal/config"
)

// Cookie names shared with the frontend.
const (
	AppCookieName    = "auth"
	GitHubCookieName = "access_token"
)

// Lookup reports the session token carried by a request, if any.
type Lookup interface {
	Token(r *http.Request) (string, bool)
}

// CookieStore keeps one token in one named cookie.
type CookieStore struct {
	name     string
	httpOnly bool
	secure   bool
}

// NewCookieStore creates a store for the named cookie.
func NewCookieStore(name string, httpOnly, secure bool) *CookieStore {
	return &CookieStore{name: name, httpOnly: httpOnly, secure: secure}
}

// AppStore is the login session set after email verification. The frontend
// reads it, so it is not httpOnly.
type AppStore struct{ *CookieStore }

// NewAppStore creates the store for the "auth" cookie.
func NewAppStore(cfg *config.Config) *AppStore {
	return &AppStore{NewCookieStore(AppCookieName, false, cfg.Session.SecureCookies())}
}

// GitHubStore holds the GitHub access token. It is never exposed to scripts.
type GitHubStore struct{ *CookieStore }

// NewGitHubStore creates the store for the "access_token" cookie.
func NewGitHubStore(cfg *config.Config) *GitHubStore {
	return &GitHubStore{NewCookieStore(GitHubCookieName, true, cfg.Session.SecureCookies())}
}

// Name returns the cookie name.
func (s *CookieStore) Name() string { return s.name }

// Token returns the cookie value. An empty value counts as absent.
func (s *CookieStore) Token(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Issue sets the cookie on the response. The cookie has no expiry and lives
// for the browser session.
func (s *CookieStore) Issue(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    token,
		Path:     "/",
		HttpOnly: s.httpOnly,
		Secure:   s.secure,
	})
}
