package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyAccessToken stores the verified bearer token
	ContextKeyAccessToken ContextKey = "access_token"
	// ContextKeyClientID stores the client the token was issued to
	ContextKeyClientID ContextKey = "client_id"
	// ContextKeyScopes stores the token scopes
	ContextKeyScopes ContextKey = "scopes"
)

// RequireAuth is middleware that validates a Bearer access token against the live sessions.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="`+s.config.GetBaseURL()+`"`)
				writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidToken, "missing bearer token"))
				return
			}

			verification, err := s.auth.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeJSONError(w, oauthmodel.AsError(err))
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccessToken, token)
			ctx = context.WithValue(ctx, ContextKeyClientID, verification.ClientID)
			ctx = context.WithValue(ctx, ContextKeyScopes, verification.Scopes)
			next(w, r.WithContext(ctx))
		}
	}
}

func accessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeyAccessToken).(string)
	return token
}
