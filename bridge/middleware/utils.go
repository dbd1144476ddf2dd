package middlewares

import (
	"net/http"

	"github.com/smartvideo/ytdlp-bridge/bridge/config"
	"github.com/smartvideo/ytdlp-bridge/bridge/user"
)

// Authenticated rejects requests without a valid JWT cookie or bearer
// token.
func Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		if cookie, err := r.Cookie(user.CookieName); err == nil {
			token = cookie.Value
		} else if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			token = auth[7:]
		}

		if token == "" || !user.Verify(token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ApplyAuthenticationByConfig gates a subtree behind authentication
// only when the config asks for it.
func ApplyAuthenticationByConfig(next http.Handler) http.Handler {
	if config.Instance().Authentication.RequireAuth {
		return Authenticated(next)
	}
	return next
}
