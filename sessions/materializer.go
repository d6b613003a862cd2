package sessions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/ehr-auth-broker/internal/config"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
	"github.com/jrsteele09/ehr-auth-broker/internal/metrics"
	"github.com/jrsteele09/ehr-auth-broker/oauthmodel"
	"github.com/jrsteele09/ehr-auth-broker/recordstore"
)

const (
	modeFileCreate = "file_create"
	modeFileOpen   = "file_open"
	modeMemory     = "memory"
)

// Materializer is the only component that opens session stores. It decides
// durable versus ephemeral and create versus load.
type Materializer struct {
	persistence bool
	dataDir     string
	group       singleflight.Group
	metrics     *metrics.Metrics
}

func NewMaterializer(cfg config.StorageConfig, m *metrics.Metrics) *Materializer {
	return &Materializer{
		persistence: cfg.GetPersistenceEnabled(),
		dataDir:     cfg.GetDataFolder(),
		metrics:     m,
	}
}

func (m *Materializer) PersistenceEnabled() bool {
	return m.persistence
}

func (m *Materializer) DataDir() string {
	return m.dataDir
}

// AssignStorage gives a freshly acquired session a new store filename when persistence
// is on. The store itself is not opened until EnsureStore.
func (m *Materializer) AssignStorage(s *Session) {
	if !m.persistence || s.StoreFilename != "" {
		return
	}
	s.StoreFilename = uuid.NewString() + recordstore.FileExtension
}

// AttachRecord binds a session to a previously persisted record and loads its dataset.
// The handle used for loading is closed again; EnsureStore reopens the file once a token
// has been issued, so an unredeemed code never pins an open store.
func (m *Materializer) AttachRecord(ctx context.Context, s *Session, databaseID string) error {
	if !m.persistence {
		return oauthmodel.WrapError(oauthmodel.ServerError, "stored records are not available", autherrors.ErrPersistenceDisabled)
	}
	path, err := recordstore.FilePath(m.dataDir, databaseID)
	if err != nil {
		return oauthmodel.WrapError(oauthmodel.ServerError, "failed to open stored record", err)
	}

	store, err := recordstore.Open(ctx, path)
	m.metrics.RecordMaterialization(modeFileOpen, err)
	if err != nil {
		return oauthmodel.WrapError(oauthmodel.ServerError, "failed to open stored record", err)
	}
	dataset, loadErr := store.Load(ctx)
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Str("store", filepath.Base(path)).Msg("failed to close stored record after load")
	}
	if loadErr != nil {
		return oauthmodel.WrapError(oauthmodel.ServerError, "failed to load stored record", loadErr)
	}

	s.StoreFilename = filepath.Base(path)
	s.ClinicalData = dataset
	return nil
}

// EnsureStore returns the session's store, opening it on first use. Concurrent callers
// for the same session share one materialization; later calls return the cached handle.
func (m *Materializer) EnsureStore(ctx context.Context, s *Session) (*recordstore.Store, error) {
	if store := s.Store(); store != nil {
		return store, nil
	}

	v, err, _ := m.group.Do(s.ID, func() (any, error) {
		if store := s.Store(); store != nil {
			return store, nil
		}
		store, err := m.materialize(ctx, s)
		if err != nil {
			return nil, err
		}
		if !s.setStore(store) {
			_ = store.Close()
			if current := s.Store(); current != nil {
				return current, nil
			}
			return nil, autherrors.ErrSessionClosed
		}
		return store, nil
	})
	if err != nil {
		return nil, oauthmodel.WrapError(oauthmodel.ServerError, "failed to open session store", err)
	}
	return v.(*recordstore.Store), nil
}

func (m *Materializer) materialize(ctx context.Context, s *Session) (*recordstore.Store, error) {
	if !m.persistence || s.StoreFilename == "" {
		store, err := m.openMemory(ctx, s)
		m.metrics.RecordMaterialization(modeMemory, err)
		return store, err
	}

	path, err := recordstore.FilePath(m.dataDir, recordstore.DatabaseID(s.StoreFilename))
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		store, err := recordstore.Open(ctx, path)
		m.metrics.RecordMaterialization(modeFileOpen, err)
		return store, err
	case errors.Is(statErr, fs.ErrNotExist):
		store, err := m.createFile(ctx, s, path)
		m.metrics.RecordMaterialization(modeFileCreate, err)
		return store, err
	default:
		return nil, fmt.Errorf("[Materializer materialize] stat %s: %w", path, statErr)
	}
}

// createFile creates and populates a new store file. Any failure removes the file so
// a half-written store is never left behind.
func (m *Materializer) createFile(ctx context.Context, s *Session, path string) (*recordstore.Store, error) {
	if err := os.MkdirAll(m.dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("[Materializer createFile] mkdir %s: %w", m.dataDir, err)
	}
	store, err := recordstore.Create(ctx, path)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			m.removeFile(path)
		}
		return nil, err
	}
	if s.ClinicalData != nil {
		if err := store.Populate(ctx, s.ClinicalData); err != nil {
			_ = store.Close()
			m.removeFile(path)
			return nil, err
		}
	}
	log.Info().Str("store", filepath.Base(path)).Msg("created session store")
	return store, nil
}

func (m *Materializer) openMemory(ctx context.Context, s *Session) (*recordstore.Store, error) {
	store, err := recordstore.OpenMemory(ctx)
	if err != nil {
		return nil, err
	}
	if s.ClinicalData != nil {
		if err := store.Populate(ctx, s.ClinicalData); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

func (m *Materializer) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Err(err).Str("store", path).Msg("failed to remove partial session store")
	}
}
