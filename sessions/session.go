package sessions

import (
	"sync"
	"time"

	"github.com/jrsteele09/ehr-auth-broker/authflow"
	"github.com/jrsteele09/ehr-auth-broker/clients"
	"github.com/jrsteele09/ehr-auth-broker/clinical"
	"github.com/jrsteele09/ehr-auth-broker/internal/utils"
	"github.com/jrsteele09/ehr-auth-broker/recordstore"
)

// Session binds a client's access to one patient's clinical record.
// The ID is generated once and handed out unchanged as the bearer access token.
type Session struct {
	ID            string                         // Random opaque id, doubles as the access token
	Client        *clients.Client                // Client the session was issued to
	Request       *authflow.AuthorizationRequest // Consumed authorization request (redirect, PKCE, scope)
	ClinicalData  *clinical.Dataset              // In-memory dataset; populates the store on first open
	StoreFilename string                         // Filename in the data folder when persistence is on
	CreatedAt     time.Time                      // When the session was assembled

	mu     sync.Mutex
	store  *recordstore.Store // At most one handle for the lifetime of the session
	closed bool               // Set on revoke; no handle may be installed afterwards
}

// New assembles a session for a consumed authorization request.
func New(id string, client *clients.Client, req *authflow.AuthorizationRequest, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		Client:    client,
		Request:   req,
		CreatedAt: createdAt,
	}
}

func (s *Session) ClientID() string {
	if s.Request != nil {
		return s.Request.ClientID
	}
	if s.Client != nil {
		return s.Client.ID
	}
	return ""
}

// Scopes splits the originating request's scope; never nil.
func (s *Session) Scopes() []string {
	if s.Request == nil {
		return []string{}
	}
	return utils.SplitScopes(s.Request.Scope)
}

// Store returns the cached handle, or nil if the store has not been materialized.
func (s *Session) Store() *recordstore.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// setStore keeps the first handle. It reports false when a handle is already set or the
// session has been closed; the caller owns and must close the rejected handle.
func (s *Session) setStore(store *recordstore.Store) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.store != nil {
		return false
	}
	s.store = store
	return true
}

// closeStore marks the session closed, then detaches and closes the handle if one is open.
func (s *Session) closeStore() error {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.closed = true
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Close()
}
