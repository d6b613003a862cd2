package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/ehr-auth-broker/authflow"
	"github.com/jrsteele09/ehr-auth-broker/clients"
	"github.com/jrsteele09/ehr-auth-broker/clinical"
	"github.com/jrsteele09/ehr-auth-broker/internal/config"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
	"github.com/jrsteele09/ehr-auth-broker/internal/metrics"
	"github.com/jrsteele09/ehr-auth-broker/internal/utils"
	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
	"github.com/jrsteele09/ehr-auth-broker/recordstore"
	"github.com/jrsteele09/ehr-auth-broker/sessions"
)

const (
	branchExistingRecord = "existing_record"
	branchNewAcquisition = "new_acquisition"
)

// Repos holds the long-lived collaborators of the AuthorizationService
type Repos struct {
	Clients      *clients.Registry      // Registered OAuth clients
	Sessions     *sessions.Registry     // Access token -> live session
	Materializer *sessions.Materializer // Opens per-session stores
}

// AuthorizationService drives a request from /authorize through record selection or
// acquisition to a bearer token bound to a session.
type AuthorizationService struct {
	repos   Repos
	config  config.OAuthConfig
	metrics *metrics.Metrics
	nowTime func() time.Time // nowTime function (injectable for testing)

	requests *authflow.TTLStore[*authflow.AuthorizationRequest]
	flows    *authflow.TTLStore[*authflow.AcquisitionFlow]
	codes    *authflow.CodeStore[*sessions.Session]
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithMetrics(m *metrics.Metrics) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.metrics = m
	}
}

// NewAuthorizationService initializes the service and its request, flow and code stores.
func NewAuthorizationService(repos Repos, cfg config.OAuthConfig, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients registry is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions registry is required")
	}
	if repos.Materializer == nil {
		return nil, errors.New("[NewAuthorizationService] Materializer is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewAuthorizationService] config is required")
	}

	as := &AuthorizationService{
		repos:   repos,
		config:  cfg,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(as)
	}

	clock := authflow.WithNowTime(as.nowTime)
	as.requests = authflow.NewTTLStore[*authflow.AuthorizationRequest]("authorization_requests", cfg.GetAuthorizationRequestTTL(), clock)
	as.flows = authflow.NewTTLStore[*authflow.AcquisitionFlow]("acquisition_flows", cfg.GetAcquisitionFlowTTL(), clock)
	as.codes = authflow.NewCodeStore[*sessions.Session](cfg.GetAuthCodeTTL(), cfg.GetCodeGenerationLength(), clock)
	return as, nil
}

// Sweepables are the stores the background sweeper must expire.
func (as *AuthorizationService) Sweepables() []authflow.Sweepable {
	return []authflow.Sweepable{as.requests, as.flows, as.codes}
}

func (as *AuthorizationService) Now() time.Time {
	return as.nowTime()
}

// AcquisitionFlowTTL is also the max-age of the flow cookie.
func (as *AuthorizationService) AcquisitionFlowTTL() time.Duration {
	return as.flows.TTL()
}

func (as *AuthorizationService) PersistenceEnabled() bool {
	return as.repos.Materializer.PersistenceEnabled()
}

// ListRecords returns the persisted records a human can pick from.
func (as *AuthorizationService) ListRecords() ([]recordstore.RecordInfo, error) {
	if !as.PersistenceEnabled() {
		return []recordstore.RecordInfo{}, nil
	}
	return recordstore.List(as.repos.Materializer.DataDir())
}

// Authorize validates the request and stores it. selectRedirect receives the request id,
// the only thing the selection step needs.
func (as *AuthorizationService) Authorize(params *oauthmodel.AuthorizationParameters, selectRedirect func(requestID string)) error {
	if err := params.Validate(); err != nil {
		return err
	}

	client, err := as.repos.Clients.Lookup(params.ClientID)
	if err != nil {
		return clientError(err)
	}
	if err := params.ValidateParametersWithClient(client); err != nil {
		return err
	}

	requestID := uuid.NewString()
	req := authflow.NewAuthorizationRequest(requestID, params, as.nowTime())
	if err := as.requests.Put(requestID, req); err != nil {
		return oauthmodel.WrapError(oauthmodel.ServerError, "failed to store authorization request", err)
	}

	log.Debug().Str("client_id", client.ID).Str("request_id", requestID).Msg("authorization request stored")
	selectRedirect(requestID)
	return nil
}

// SelectRecord finishes an authorization with a previously persisted record.
func (as *AuthorizationService) SelectRecord(ctx context.Context, requestID, databaseID string) (*oauthmodel.ClientRedirect, error) {
	req, err := as.takeRequest(requestID)
	if err != nil {
		return nil, err
	}

	client, err := as.clientForRequest(req)
	if err != nil {
		as.metrics.RecordAuthorization(branchExistingRecord, "error")
		return nil, err
	}

	session, err := as.newSession(client, req)
	if err != nil {
		as.metrics.RecordAuthorization(branchExistingRecord, "error")
		return nil, req.RedirectError(oauthmodel.AsError(err))
	}
	if err := as.repos.Materializer.AttachRecord(ctx, session, databaseID); err != nil {
		log.Err(err).Str("client_id", client.ID).Str("database_id", databaseID).Msg("failed to open stored record")
		as.metrics.RecordAuthorization(branchExistingRecord, "error")
		return nil, req.RedirectError(oauthmodel.AsError(err))
	}

	redirect, err := as.issueCode(session)
	as.metrics.RecordAuthorization(branchExistingRecord, resultLabel(err))
	return redirect, err
}

// StartAcquisition moves the request into an acquisition flow. The caller correlates
// the browser with flow.FlowID.
func (as *AuthorizationService) StartAcquisition(requestID string) (*authflow.AcquisitionFlow, error) {
	req, err := as.takeRequest(requestID)
	if err != nil {
		return nil, err
	}
	flow := authflow.NewAcquisitionFlow(uuid.NewString(), req)
	if err := as.flows.Put(flow.FlowID, flow); err != nil {
		return nil, req.RedirectError(oauthmodel.WrapError(oauthmodel.ServerError, "failed to store acquisition flow", err))
	}
	return flow, nil
}

// AbortAcquisition consumes a flow that cannot complete and reports cause to the client.
func (as *AuthorizationService) AbortAcquisition(flowID string, cause *oauthmodel.Error) error {
	flow, err := as.flows.Take(flowID)
	if err != nil {
		return oauthmodel.WrapError(oauthmodel.InvalidRequest, UnknownFlowErr.Error(), err)
	}
	log.Debug().Str("flow_id", flowID).Str("client_id", flow.ClientID).Str("error", string(cause.Code)).Msg("acquisition flow aborted")
	as.metrics.RecordAuthorization(branchNewAcquisition, "error")
	return flow.RedirectError(cause)
}

// CompleteAcquisition is called once the acquisition flow delivers a dataset.
// The flow is consumed whether or not the dataset is usable.
func (as *AuthorizationService) CompleteAcquisition(ctx context.Context, flowID string, dataset *clinical.Dataset) (*oauthmodel.ClientRedirect, error) {
	if flowID == "" {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidRequest, MissingFlowErr.Error(), MissingFlowErr)
	}
	flow, err := as.flows.Take(flowID)
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidRequest, UnknownFlowErr.Error(), err)
	}
	req := &flow.AuthorizationRequest

	if dataset.IsEmpty() {
		as.metrics.RecordAuthorization(branchNewAcquisition, "error")
		return nil, req.RedirectError(oauthmodel.WrapError(oauthmodel.InvalidRequest, MissingDatasetErr.Error(), MissingDatasetErr))
	}

	client, err := as.clientForRequest(req)
	if err != nil {
		as.metrics.RecordAuthorization(branchNewAcquisition, "error")
		return nil, err
	}

	session, err := as.newSession(client, req)
	if err != nil {
		as.metrics.RecordAuthorization(branchNewAcquisition, "error")
		return nil, req.RedirectError(oauthmodel.AsError(err))
	}
	session.ClinicalData = dataset
	as.repos.Materializer.AssignStorage(session)

	redirect, err := as.issueCode(session)
	as.metrics.RecordAuthorization(branchNewAcquisition, resultLabel(err))
	return redirect, err
}

// Token exchanges an authorization code for the session's access token.
func (as *AuthorizationService) Token(req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	resp, err := as.token(req)
	if err != nil {
		as.metrics.RecordTokenExchange(string(oauthmodel.AsError(err).Code))
		return nil, err
	}
	as.metrics.RecordTokenExchange("ok")
	return resp, nil
}

func (as *AuthorizationService) token(req oauthmodel.TokenRequest) (*oauthmodel.TokenResponse, error) {
	if req.GrantType != oauthmodel.AuthorizationCodeGrant {
		return nil, oauthmodel.Errorf(oauthmodel.UnsupportedGrantType, "grant_type %q is not supported", req.GrantType)
	}

	client, err := as.repos.Clients.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, clientError(err)
	}

	if req.Code == "" {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "code is required")
	}
	session, err := as.codes.Consume(req.Code)
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, InvalidCodeErr.Error(), err)
	}

	if session.ClientID() != client.ID {
		log.Warn().Str("client_id", client.ID).Msg("authorization code presented by a different client")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, InvalidCodeErr.Error(), ClientMismatchErr)
	}

	if session.Request.RedirectURI != "" && !as.config.GetSkipTokenRedirectURICheck() {
		if req.RedirectURI == "" || req.RedirectURI != session.Request.RedirectURI {
			return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, RedirectMismatchErr.Error(), RedirectMismatchErr)
		}
	}

	if err := VerifyPKCE(req.CodeVerifier, session.Request.CodeChallenge, session.Request.CodeChallengeMethod); err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidGrant, "PKCE verification failed", err)
	}

	if err := as.repos.Sessions.Add(session); err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.ServerError, "failed to register session", err)
	}

	log.Info().Str("client_id", client.ID).Msg("access token issued")
	scopes := session.Scopes()
	return &oauthmodel.TokenResponse{
		AccessToken: session.ID,
		TokenType:   oauthmodel.BearerTokenType,
		Scopes:      scopes,
		Scope:       utils.JoinScopes(scopes),
	}, nil
}

// Verify resolves a bearer token to the scopes and client it grants.
func (as *AuthorizationService) Verify(token string) (*sessions.Verification, error) {
	v, err := as.repos.Sessions.Verify(strings.TrimSpace(token))
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidToken, "access token is invalid or revoked", err)
	}
	return v, nil
}

// Revoke ends a session. Unknown tokens succeed. A client may revoke a token issued to
// another client; that is logged but allowed.
func (as *AuthorizationService) Revoke(req oauthmodel.RevocationRequest) error {
	client, err := as.repos.Clients.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		return clientError(err)
	}
	if session, err := as.repos.Sessions.Lookup(req.Token); err == nil && session.ClientID() != client.ID {
		log.Warn().Str("client_id", client.ID).Str("owner_client_id", session.ClientID()).Msg("revoking a token issued to another client")
	}
	if as.repos.Sessions.Revoke(req.Token) {
		log.Info().Str("client_id", client.ID).Msg("access token revoked")
	}
	return nil
}

// Introspect reports whether a token is active. Tokens owned by other clients are
// reported inactive.
func (as *AuthorizationService) Introspect(req oauthmodel.IntrospectionRequest) (*oauthmodel.IntrospectionResponse, error) {
	client, err := as.repos.Clients.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, clientError(err)
	}
	v, err := as.repos.Sessions.Verify(req.Token)
	if err != nil || v.ClientID != client.ID {
		return &oauthmodel.IntrospectionResponse{Active: false}, nil
	}
	return &oauthmodel.IntrospectionResponse{
		Active:    true,
		ClientID:  v.ClientID,
		Scope:     utils.JoinScopes(v.Scopes),
		TokenType: oauthmodel.BearerTokenType,
	}, nil
}

// OpenSessionStore verifies token and materializes the store behind it.
func (as *AuthorizationService) OpenSessionStore(ctx context.Context, token string) (*sessions.Session, *recordstore.Store, error) {
	if _, err := as.Verify(token); err != nil {
		return nil, nil, err
	}
	session, err := as.repos.Sessions.Lookup(strings.TrimSpace(token))
	if err != nil {
		return nil, nil, oauthmodel.WrapError(oauthmodel.InvalidToken, "access token is invalid or revoked", err)
	}
	store, err := as.repos.Materializer.EnsureStore(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	return session, store, nil
}

func (as *AuthorizationService) takeRequest(requestID string) (*authflow.AuthorizationRequest, error) {
	if requestID == "" {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, "requestId is required")
	}
	req, err := as.requests.Take(requestID)
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.InvalidRequest, UnknownRequestErr.Error(), err)
	}
	return req, nil
}

// clientForRequest re-checks the client and its redirect URI. A failure here is not
// redirected: the redirect URI is no longer trusted.
func (as *AuthorizationService) clientForRequest(req *authflow.AuthorizationRequest) (*clients.Client, error) {
	client, err := as.repos.Clients.Lookup(req.ClientID)
	if err != nil {
		logDroppedRedirect(req, "client is no longer registered")
		return nil, clientError(err)
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		logDroppedRedirect(req, "redirect_uri is no longer registered")
		return nil, oauthmodel.WrapError(oauthmodel.InvalidRequest, oauthmodel.ErrInvalidRedirectUri.Error(), oauthmodel.ErrInvalidRedirectUri)
	}
	return client, nil
}

// logDroppedRedirect records the client state that can no longer be echoed back.
func logDroppedRedirect(req *authflow.AuthorizationRequest, reason string) {
	log.Warn().
		Str("client_id", req.ClientID).
		Str("request_id", req.RequestID).
		Str("redirect_uri", req.RedirectURI).
		Str("state", req.State).
		Msg("authorization failed after the request was consumed; not redirecting: " + reason)
}

func (as *AuthorizationService) newSession(client *clients.Client, req *authflow.AuthorizationRequest) (*sessions.Session, error) {
	id, err := utils.RandomToken(as.config.GetAccessTokenLength())
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.ServerError, "failed to generate session id", err)
	}
	return sessions.New(id, client, req, as.nowTime()), nil
}

func (as *AuthorizationService) issueCode(session *sessions.Session) (*oauthmodel.ClientRedirect, error) {
	code, err := as.codes.Issue(session)
	if err != nil {
		return nil, session.Request.RedirectError(oauthmodel.WrapError(oauthmodel.ServerError, "failed to issue authorization code", err))
	}
	return &oauthmodel.ClientRedirect{
		RedirectURI: session.Request.RedirectURI,
		Code:        code,
		State:       session.Request.State,
	}, nil
}

func clientError(err error) error {
	switch {
	case autherrors.Is(err, autherrors.ErrInvalidClient):
		return oauthmodel.WrapError(oauthmodel.InvalidClient, InvalidClientIDErr.Error(), err)
	case autherrors.Is(err, autherrors.ErrInvalidClientSecret):
		return oauthmodel.WrapError(oauthmodel.InvalidClient, "client authentication failed", err)
	default:
		return oauthmodel.WrapError(oauthmodel.ServerError, "client lookup failed", err)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
