package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/ehr-auth-broker/clients"
	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	maxRegistrationBody = 64 << 10
)

// WellKnownAuthorizationServer serves the RFC 8414 metadata document
func (s *Server) WellKnownAuthorizationServer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md := oauthmodel.NewAuthorizationServerMetadata(s.config.GetBaseURL(), s.config.GetScopesSupported())
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(md)
	}
}

// WellKnownProtectedResource serves the RFC 9728 metadata document
func (s *Server) WellKnownProtectedResource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		md := oauthmodel.NewProtectedResourceMetadata(s.config.GetBaseURL(), s.config.GetScopesSupported())
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(md)
	}
}

// Authorize begins the authorization flow. The human picks a stored record or, when
// nothing is persisted, goes straight to a new acquisition.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := parseAuthorizationParameters(r)

		selectRedirect := func(requestID string) {
			next := RouteInitiateNewEHRFlow
			if s.auth.PersistenceEnabled() {
				next = RouteSelectRecord
			}
			http.Redirect(w, r, next+"?requestId="+requestID, http.StatusFound)
		}

		if err := s.auth.Authorize(params, selectRedirect); err != nil {
			log.Debug().Err(err).Str("client_id", params.ClientID).Msg("authorization request rejected")
			writeJSONError(w, oauthmodel.AsError(err))
			return
		}
	}
}

// Token exchanges an authorization code for an access token
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "failed to parse form data"))
			return
		}

		clientID, clientSecret, basic := clientCredentials(r)
		tokenReq := oauthmodel.TokenRequest{
			GrantType:    oauthmodel.GrantType(r.PostFormValue("grant_type")),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Code:         r.PostFormValue("code"),
			RedirectURI:  r.PostFormValue("redirect_uri"),
			CodeVerifier: r.PostFormValue("code_verifier"),
		}

		tokenResponse, err := s.auth.Token(tokenReq)
		if err != nil {
			oauthErr := oauthmodel.AsError(err)
			if basic && oauthErr.Code == oauthmodel.InvalidClient {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+s.config.GetBaseURL()+`"`)
			}
			w.Header().Set("Cache-Control", "no-store")
			writeJSONError(w, oauthErr)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// Register handles RFC 7591 dynamic client registration
func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clients.RegistrationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRegistrationBody)).Decode(&req); err != nil {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "request body must be a JSON client metadata document"))
			return
		}

		registration, err := s.repos.Clients.Register(req)
		if err != nil {
			if errors.Is(err, clients.ErrInvalidMetadata) {
				writeJSONError(w, oauthmodel.WrapError(oauthmodel.InvalidRequest, err.Error(), err))
				return
			}
			log.Err(err).Msg("client registration failed")
			writeJSONError(w, oauthmodel.WrapError(oauthmodel.ServerError, "client registration failed", err))
			return
		}

		log.Info().Str("client_id", registration.ID).Str("client_name", registration.Name).Msg("client registered")
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(registration)
	}
}

// Revoke revokes access tokens (RFC 7009). Unknown tokens still return 200.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "failed to parse form data"))
			return
		}

		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "token parameter is required"))
			return
		}

		clientID, clientSecret, _ := clientCredentials(r)
		err := s.auth.Revoke(oauthmodel.RevocationRequest{
			Token:         token,
			TokenTypeHint: r.PostFormValue("token_type_hint"),
			ClientID:      clientID,
			ClientSecret:  clientSecret,
		})
		if err != nil {
			writeJSONError(w, oauthmodel.AsError(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Introspect reports token state (RFC 7662)
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "failed to parse form data"))
			return
		}

		token := r.PostFormValue("token")
		if token == "" {
			writeJSONError(w, oauthmodel.NewError(oauthmodel.InvalidRequest, "token parameter is required"))
			return
		}

		clientID, clientSecret, _ := clientCredentials(r)
		introspection, err := s.auth.Introspect(oauthmodel.IntrospectionRequest{
			Token:        token,
			ClientID:     clientID,
			ClientSecret: clientSecret,
		})
		if err != nil {
			writeJSONError(w, oauthmodel.AsError(err))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(introspection)
	}
}

// parseAuthorizationParameters extracts OAuth2 authorization parameters from the query
func parseAuthorizationParameters(r *http.Request) *oauthmodel.AuthorizationParameters {
	q := r.URL.Query()
	return &oauthmodel.AuthorizationParameters{
		ClientID:            q.Get("client_id"),
		ResponseType:        oauthmodel.ResponseType(q.Get("response_type")),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: oauthmodel.CodeMethodType(q.Get("code_challenge_method")),
	}
}

// writeJSONError writes an OAuth2 error response with the status its code maps to
func writeJSONError(w http.ResponseWriter, err *oauthmodel.Error) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(err.Code),
		"error_description": err.Description,
	})
}
