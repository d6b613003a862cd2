package authflow

import (
	"time"

	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
)

// AuthorizationRequest is created by /authorize and consumed exactly once when the
// human picks a stored record or starts a new acquisition.
// RedirectURI was in the client's allow-list when the request was created.
type AuthorizationRequest struct {
	RequestID           string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod oauthmodel.CodeMethodType
	State               string
	Scope               string
	CreatedAt           time.Time
}

// AcquisitionFlow carries an authorization request across the out-of-process
// clinical-data acquisition. The browser holds FlowID in a signed cookie.
type AcquisitionFlow struct {
	FlowID string
	AuthorizationRequest
}

// NewAuthorizationRequest copies validated /authorize parameters into a request record.
func NewAuthorizationRequest(requestID string, params *oauthmodel.AuthorizationParameters, createdAt time.Time) *AuthorizationRequest {
	return &AuthorizationRequest{
		RequestID:           requestID,
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		State:               params.State,
		Scope:               params.Scope,
		CreatedAt:           createdAt,
	}
}

// NewAcquisitionFlow moves a consumed request into a flow with the same fields.
func NewAcquisitionFlow(flowID string, req *AuthorizationRequest) *AcquisitionFlow {
	return &AcquisitionFlow{
		FlowID:               flowID,
		AuthorizationRequest: *req,
	}
}

// RedirectError builds a client-addressed error for this request.
func (r *AuthorizationRequest) RedirectError(err *oauthmodel.Error) *oauthmodel.RedirectError {
	return &oauthmodel.RedirectError{
		RedirectURI: r.RedirectURI,
		State:       r.State,
		Err:         err,
	}
}
