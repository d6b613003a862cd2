package clients

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
	"github.com/jrsteele09/ehr-auth-broker/internal/utils"
)

var ErrInvalidMetadata = errors.New("invalid client metadata")

// RegistrationRequest is the RFC 7591 registration body. Both "scope" and the
// non-standard "scopes" array are accepted.
type RegistrationRequest struct {
	ClientName              string     `json:"client_name"`
	RedirectURIs            []string   `json:"redirect_uris"`
	GrantTypes              []string   `json:"grant_types,omitempty"`
	ResponseTypes           []string   `json:"response_types,omitempty"`
	TokenEndpointAuthMethod AuthMethod `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string     `json:"scope,omitempty"`
	Scopes                  []string   `json:"scopes,omitempty"`
}

// Registration is the registration response. ClientSecret is only ever returned here.
type Registration struct {
	Client
	ClientSecret          string `json:"client_secret,omitempty"`
	ClientSecretExpiresAt *int64 `json:"client_secret_expires_at,omitempty"`
}

// Registry gates every flow: only registered clients may authorize or exchange codes.
type Registry struct {
	repo    Repo
	nowTime func() time.Time
}

type RegistryOption func(*Registry)

func WithNowTime(nowTime func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowTime
	}
}

func NewRegistry(repo Repo, opts ...RegistryOption) *Registry {
	r := &Registry{
		repo:    repo,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates the request, assigns a fresh client id and stores the descriptor.
func (r *Registry) Register(req RegistrationRequest) (*Registration, error) {
	if strings.TrimSpace(req.ClientName) == "" {
		return nil, fmt.Errorf("%w: client_name is required", ErrInvalidMetadata)
	}
	if len(req.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%w: redirect_uris must not be empty", ErrInvalidMetadata)
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	method := req.TokenEndpointAuthMethod
	switch method {
	case "":
		method = AuthMethodNone
	case AuthMethodNone, AuthMethodClientSecretPost, AuthMethodClientSecretBasic:
	default:
		return nil, fmt.Errorf("%w: unsupported token_endpoint_auth_method %q", ErrInvalidMetadata, method)
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{DefaultGrantType}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	scope := req.Scope
	if scope == "" && len(req.Scopes) > 0 {
		scope = utils.JoinScopes(req.Scopes)
	}

	client := &Client{
		ID:                      uuid.NewString(),
		Name:                    strings.TrimSpace(req.ClientName),
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: method,
		Scope:                   scope,
		IssuedAt:                r.nowTime().Unix(),
	}

	registration := &Registration{}
	if !client.IsPublic() {
		secret, err := utils.RandomToken(32)
		if err != nil {
			return nil, autherrors.Wrapf(err, "[Registry Register] generating client secret")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, autherrors.Wrapf(err, "[Registry Register] hashing client secret")
		}
		client.SecretHash = string(hash)
		registration.ClientSecret = secret
		never := int64(0)
		registration.ClientSecretExpiresAt = &never
	}

	if err := r.repo.Insert(client); err != nil {
		return nil, autherrors.Wrapf(err, "[Registry Register] storing client %s", client.ID)
	}
	log.Info().Str("client_id", client.ID).Str("client_name", client.Name).Msg("client registered")

	registration.Client = *client.Copy()
	return registration, nil
}

func (r *Registry) Lookup(clientID string) (*Client, error) {
	if clientID == "" {
		return nil, autherrors.ErrInvalidClient
	}
	client, err := r.repo.Get(clientID)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", autherrors.ErrInvalidClient, clientID)
		}
		return nil, err
	}
	return client, nil
}

func (r *Registry) Remove(clientID string) error {
	return r.repo.Delete(clientID)
}

func (r *Registry) List(offset, limit int) ([]*Client, error) {
	return r.repo.List(offset, limit)
}

// Authenticate resolves the client and, for confidential clients, checks the secret.
// Public clients are resolved by id alone; PKCE binds their codes.
func (r *Registry) Authenticate(clientID, secret string) (*Client, error) {
	client, err := r.Lookup(clientID)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() {
		return client, nil
	}
	if secret == "" || bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) != nil {
		return nil, autherrors.ErrInvalidClientSecret
	}
	return client, nil
}

func (r *Registry) Close() error {
	return r.repo.Close()
}

func validateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: redirect_uri %q must be an absolute URL", ErrInvalidMetadata, uri)
	}
	if u.Fragment != "" {
		return fmt.Errorf("%w: redirect_uri %q must not contain a fragment", ErrInvalidMetadata, uri)
	}
	return nil
}
