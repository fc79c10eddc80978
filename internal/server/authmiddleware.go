package server

import (
	"net/http"

	"github.com/tjfontaine/polyglot-webhook-relay/internal/auth"
)

// AuthMiddleware validates API keys and records the matched key in the context.
// With a nil or keyless authenticator the middleware is a no-op.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !authenticator.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				AddError(r.Context(), err)
				WriteAck(w, http.StatusUnauthorized, err.Error())
				return
			}

			key, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				AddError(r.Context(), err)
				WriteAck(w, http.StatusUnauthorized, "Invalid API key")
				return
			}

			AddLogField(r.Context(), "api_key", key.Description)
			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), key)))
		})
	}
}
