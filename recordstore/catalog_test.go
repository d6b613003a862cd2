package recordstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

func TestValidDatabaseID(t *testing.T) {
	for id, valid := range map[string]bool{
		"2f1c9a4e-8d7b-4f0e-9a7c-1d2e3f4a5b6c": true,
		"patient_01":                           true,
		"":                                     false,
		"../etc/passwd":                        false,
		"a/b":                                  false,
		"x.sqlite":                             false,
	} {
		require.Equal(t, valid, ValidDatabaseID(id), id)
	}
}

func TestFilePath(t *testing.T) {
	p, err := FilePath("/data", "abc")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/data", "abc.sqlite"), p)

	_, err = FilePath("/data", "../abc")
	require.ErrorIs(t, err, autherrors.ErrInvalidDatabaseID)
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.sqlite")
	newer := filepath.Join(dir, "newer.sqlite")
	require.NoError(t, os.WriteFile(older, nil, 0o600))
	require.NoError(t, os.WriteFile(newer, nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.Chtimes(older, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	records, err := List(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "newer", records[0].DatabaseID)
	require.Equal(t, "older", records[1].DatabaseID)

	missing, err := List(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	require.Empty(t, missing)
}
