package sessions

import (
	"sync"

	"github.com/rs/zerolog/log"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
	"github.com/jrsteele09/ehr-auth-broker/internal/metrics"
)

// Verification is what a valid bearer token grants.
type Verification struct {
	SessionID string
	ClientID  string
	Scopes    []string
}

// Registry maps issued access tokens to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		metrics:  m,
	}
}

// Add registers the session under its ID, which becomes the access token.
func (r *Registry) Add(s *Session) error {
	if s == nil || s.ID == "" {
		return autherrors.ErrEmptyKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return autherrors.ErrAlreadyExists
	}
	r.sessions[s.ID] = s
	r.metrics.SessionOpened()
	return nil
}

func (r *Registry) Lookup(token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, autherrors.ErrSessionNotFound
	}
	return s, nil
}

// Verify returns the scopes and client bound to token, or ErrSessionNotFound.
func (r *Registry) Verify(token string) (*Verification, error) {
	s, err := r.Lookup(token)
	if err != nil {
		return nil, err
	}
	return &Verification{
		SessionID: s.ID,
		ClientID:  s.ClientID(),
		Scopes:    s.Scopes(),
	}, nil
}

// Revoke removes the session and closes its store. Unknown tokens are a no-op and
// report false. Close failures are logged, never returned.
func (r *Registry) Revoke(token string) bool {
	r.mu.Lock()
	s, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	r.metrics.SessionClosed()
	if err := s.closeStore(); err != nil {
		log.Warn().Err(err).Str("client_id", s.ClientID()).Msg("failed to close session store on revoke")
	}
	return true
}

// CloseAll revokes every session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	tokens := make([]string, 0, len(r.sessions))
	for token := range r.sessions {
		tokens = append(tokens, token)
	}
	r.mu.Unlock()
	for _, token := range tokens {
		r.Revoke(token)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
