package recordstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"

	"github.com/jrsteele09/ehr-auth-broker/clinical"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

const (
	driverName = "sqlite"
	memoryDSN  = ":memory:"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is an opened per-session clinical data store.
type Store struct {
	db   *sql.DB
	path string
}

// Create opens a new file-backed store at path and applies the schema.
// It fails if the file already exists.
func Create(ctx context.Context, path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("[recordstore Create] %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("[recordstore Create] %s: %w", path, err)
	}
	return open(ctx, path)
}

// Open opens an existing file-backed store without writing any records.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("[recordstore Open] %s: %w", path, autherrors.ErrNotFound)
		}
		return nil, fmt.Errorf("[recordstore Open] %s: %w", path, err)
	}
	return open(ctx, path)
}

// OpenMemory opens a private, process-local store that disappears on Close.
func OpenMemory(ctx context.Context) (*Store, error) {
	return open(ctx, memoryDSN)
}

func open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("[recordstore open] %w", err)
	}
	// Every ":memory:" connection is a separate database, and file stores are
	// only ever used by one session, so a single connection serves both.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: dsn}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("[recordstore migrate] %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("[recordstore migrate] new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("[recordstore migrate] up: %w", err)
	}
	return nil
}

// Path is the backing file, or ":memory:" for ephemeral stores.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) IsMemory() bool {
	return s.path == memoryDSN
}

// DB exposes the handle to query tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Populate writes every resource and attachment in one transaction.
// Resources without an "id" cannot be keyed and are skipped.
func (s *Store) Populate(ctx context.Context, ds *clinical.Dataset) error {
	if ds == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("[Store Populate] begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	resourceStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO fhir_resources (resource_type, resource_id, json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("[Store Populate] prepare resources: %w", err)
	}
	defer resourceStmt.Close()

	skipped := 0
	for groupType, resources := range ds.Resources {
		for _, raw := range resources {
			id := gjson.GetBytes(raw, "id").String()
			if id == "" {
				skipped++
				continue
			}
			resourceType := gjson.GetBytes(raw, "resourceType").String()
			if resourceType == "" {
				resourceType = groupType
			}
			if _, err := resourceStmt.ExecContext(ctx, resourceType, id, string(raw)); err != nil {
				return fmt.Errorf("[Store Populate] insert %s/%s: %w", resourceType, id, err)
			}
		}
	}
	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Str("store", s.path).Msg("resources without id were not stored")
	}

	attachmentStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attachments (resource_type, resource_id, path, content_type, json, content_raw, content_plaintext)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("[Store Populate] prepare attachments: %w", err)
	}
	defer attachmentStmt.Close()

	for _, a := range ds.Attachments {
		_, err := attachmentStmt.ExecContext(ctx, a.ResourceType, a.ResourceID, a.Path,
			nullString(a.ContentType), nullString(a.JSON), a.ContentRaw, nullString(a.ContentPlaintext))
		if err != nil {
			return fmt.Errorf("[Store Populate] insert attachment %s/%s: %w", a.ResourceType, a.ResourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("[Store Populate] commit: %w", err)
	}
	return nil
}

// Load reads the store back into a dataset.
func (s *Store) Load(ctx context.Context) (*clinical.Dataset, error) {
	ds := clinical.NewDataset()

	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_type, json FROM fhir_resources ORDER BY resource_type, resource_id`)
	if err != nil {
		return nil, fmt.Errorf("[Store Load] resources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var resourceType, body string
		if err := rows.Scan(&resourceType, &body); err != nil {
			return nil, fmt.Errorf("[Store Load] scan resource: %w", err)
		}
		ds.Add(resourceType, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("[Store Load] resources: %w", err)
	}

	attachmentRows, err := s.db.QueryContext(ctx,
		`SELECT resource_type, resource_id, path, content_type, json, content_raw, content_plaintext
		 FROM attachments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("[Store Load] attachments: %w", err)
	}
	defer attachmentRows.Close()
	for attachmentRows.Next() {
		var a clinical.Attachment
		var contentType, body, plaintext sql.NullString
		if err := attachmentRows.Scan(&a.ResourceType, &a.ResourceID, &a.Path, &contentType, &body, &a.ContentRaw, &plaintext); err != nil {
			return nil, fmt.Errorf("[Store Load] scan attachment: %w", err)
		}
		a.ContentType = contentType.String
		a.JSON = body.String
		a.ContentPlaintext = plaintext.String
		ds.Attachments = append(ds.Attachments, a)
	}
	if err := attachmentRows.Err(); err != nil {
		return nil, fmt.Errorf("[Store Load] attachments: %w", err)
	}
	return ds, nil
}

// Summary counts resources by type and attachments without loading them.
func (s *Store) Summary(ctx context.Context) (clinical.Summary, error) {
	summary := clinical.Summary{Resources: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_type, COUNT(*) FROM fhir_resources GROUP BY resource_type`)
	if err != nil {
		return summary, fmt.Errorf("[Store Summary] %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var resourceType string
		var n int
		if err := rows.Scan(&resourceType, &n); err != nil {
			return summary, fmt.Errorf("[Store Summary] scan: %w", err)
		}
		summary.Resources[resourceType] = n
	}
	if err := rows.Err(); err != nil {
		return summary, fmt.Errorf("[Store Summary] %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attachments`).Scan(&summary.Attachments); err != nil {
		return summary, fmt.Errorf("[Store Summary] attachments: %w", err)
	}
	return summary, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
