package auth

import "errors"

var (
	InvalidClientIDErr       = errors.New("invalid client id")
	UnknownRequestErr        = errors.New("authorization request not found or expired")
	UnknownFlowErr           = errors.New("acquisition flow not found or expired")
	MissingFlowErr           = errors.New("acquisition flow cookie missing")
	MissingDatasetErr        = errors.New("no clinical data was received")
	InvalidCodeErr           = errors.New("authorization code is invalid or expired")
	ClientMismatchErr        = errors.New("authorization code was not issued to this client")
	RedirectMismatchErr      = errors.New("redirect_uri does not match the authorization request")
	PKCEMissingChallengeErr  = errors.New("authorization request has no code challenge")
	PKCEUnsupportedMethodErr = errors.New("unsupported code challenge method")
	PKCEMismatchErr          = errors.New("code_verifier does not match code_challenge")
)
