package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// flowCookieName correlates the browser with its acquisition flow
	flowCookieName = "ehr_flow"
)

var ErrMissingFlowCookie = errors.New("acquisition flow cookie is missing")

// setFlowCookie stores a signed flow id. It lives exactly as long as the flow.
func (s *Server) setFlowCookie(w http.ResponseWriter, r *http.Request, flowID string) error {
	now := s.nowTime()
	ttl := s.auth.AcquisitionFlowTTL()

	claims := jwt.RegisteredClaims{
		Issuer:    s.config.GetBaseURL(),
		Subject:   flowID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.GetCookieSecret())
	if err != nil {
		return fmt.Errorf("[setFlowCookie] sign: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
	return nil
}

// readFlowCookie returns the flow id from a valid, unexpired cookie.
func (s *Server) readFlowCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(flowCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrMissingFlowCookie
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(*jwt.Token) (any, error) {
		return s.config.GetCookieSecret(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.GetBaseURL()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowTime),
	)
	if err != nil {
		return "", fmt.Errorf("[readFlowCookie] %w", err)
	}
	if claims.Subject == "" {
		return "", ErrMissingFlowCookie
	}
	return claims.Subject, nil
}

func (s *Server) clearFlowCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (s *Server) secureCookies(r *http.Request) bool {
	return s.config.GetSecureCookies() || getScheme(r) == "https"
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// clientCredentials reads client_secret_basic first, then client_secret_post.
// basic reports which one was used.
func clientCredentials(r *http.Request) (clientID, clientSecret string, basic bool) {
	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 2.3.1: both parts are form-urlencoded before base64
		if unescaped, err := url.QueryUnescape(id); err == nil {
			id = unescaped
		}
		if unescaped, err := url.QueryUnescape(secret); err == nil {
			secret = unescaped
		}
		return id, secret, true
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret"), false
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
