package oauthmodel

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrorCode is an RFC 6749 error code.
type ErrorCode string

const (
	InvalidRequest       ErrorCode = "invalid_request"
	InvalidClient        ErrorCode = "invalid_client"
	InvalidGrant         ErrorCode = "invalid_grant"
	UnsupportedGrantType ErrorCode = "unsupported_grant_type"
	InvalidToken         ErrorCode = "invalid_token"
	AccessDenied         ErrorCode = "access_denied"
	ServerError          ErrorCode = "server_error"
)

var (
	ErrInvalidCodeChallenge       = errors.New("code_challenge is required")
	ErrInvalidCodeChallengeMethod = errors.New("unsupported code_challenge_method, only S256 is supported")
	ErrInvalidRedirectUri         = errors.New("redirect_uri is not registered for this client")
	ErrMissingRedirectUri         = errors.New("redirect_uri is required")
	ErrMissingClientID            = errors.New("client_id is required")
	ErrInvalidResponseType        = errors.New("response_type must be code")
)

// Error is an OAuth error carrying its wire code and a human readable description.
type Error struct {
	Code        ErrorCode
	Description string
	cause       error
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// WrapError keeps err reachable via errors.Is/As while exposing only description on the wire.
func WrapError(code ErrorCode, description string, err error) *Error {
	return &Error{Code: code, Description: description, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status maps the error code to its HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case InvalidClient, InvalidToken:
		return http.StatusUnauthorized
	case ServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsError returns err as an *Error, treating anything unrecognised as server_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return WrapError(ServerError, "internal server error", err)
}

// RedirectError is a failure that happened after the client's redirect_uri was known,
// so it can be reported back to the client instead of to the browser.
type RedirectError struct {
	RedirectURI string
	State       string
	Err         *Error
}

func (r *RedirectError) Error() string {
	return r.Err.Error()
}

func (r *RedirectError) Unwrap() error {
	return r.Err
}

// Location returns the client redirect carrying error, error_description and state.
// ok is false when the redirect URI cannot be parsed as an absolute URL.
func (r *RedirectError) Location() (string, bool) {
	values := url.Values{}
	values.Set("error", string(r.Err.Code))
	if r.Err.Description != "" {
		values.Set("error_description", r.Err.Description)
	}
	if r.State != "" {
		values.Set("state", r.State)
	}
	return appendQuery(r.RedirectURI, values)
}

func appendQuery(redirectURI string, values url.Values) (string, bool) {
	if redirectURI == "" {
		return "", false
	}
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() {
		return "", false
	}
	q := u.Query()
	for k, v := range values {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}
