package auth

import (
	"net/http"
	"strings"
)

const (
	TokenQueryParam = "token"
	TokenCookie     = "auth_token"
)

// ExtractToken looks for a credential in the Authorization header, then the
// token query parameter, then the auth_token cookie. The first non-empty wins.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get(TokenQueryParam); token != "" {
		return token
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
