package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/iron-fish/ironfish-bridge/presenter/http/render"
)

const bearerPrefix = "Bearer "

// NewAPIKeyMiddleware admits requests carrying `Authorization: Bearer <apiKey>`.
func NewAPIKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	expected := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				render.Unauthorized(w, r)
				return
			}
			token := []byte(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(token, expected) != 1 {
				render.Unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
