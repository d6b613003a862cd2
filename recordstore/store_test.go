package recordstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/ehr-auth-broker/clinical"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

func testDataset() *clinical.Dataset {
	ds := clinical.NewDataset()
	ds.Add("Patient", json.RawMessage(`{"resourceType":"Patient","id":"p1","name":[{"family":"Smith"}]}`))
	ds.Add("Observation", json.RawMessage(`{"resourceType":"Observation","id":"o1"}`))
	ds.Add("Observation", json.RawMessage(`{"resourceType":"Observation","id":"o2"}`))
	ds.Add("Observation", json.RawMessage(`{"resourceType":"Observation"}`))
	ds.Attachments = []clinical.Attachment{{
		ResourceType:     "DocumentReference",
		ResourceID:       "d1",
		Path:             "content.0.attachment",
		ContentType:      "application/pdf",
		ContentRaw:       []byte{0x25, 0x50, 0x44, 0x46},
		ContentPlaintext: "discharge summary",
	}}
	return ds
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer store.Close()
	require.True(t, store.IsMemory())

	require.NoError(t, store.Populate(ctx, testDataset()))

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Patient": 1, "Observation": 2}, summary.Resources)
	require.Equal(t, 1, summary.Attachments)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Resources["Observation"], 2)
	require.JSONEq(t, `{"resourceType":"Patient","id":"p1","name":[{"family":"Smith"}]}`, string(loaded.Resources["Patient"][0]))
	require.Equal(t, testDataset().Attachments, loaded.Attachments)
}

func TestCreateThenOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "abc"+FileExtension)

	store, err := Create(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Populate(ctx, testDataset()))
	require.NoError(t, store.Close())

	_, err = Create(ctx, path)
	require.ErrorIs(t, err, os.ErrExist)

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	summary, err := reopened.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Resources["Observation"])
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.sqlite"))
	require.ErrorIs(t, err, autherrors.ErrNotFound)
}

func TestPopulateNilDataset(t *testing.T) {
	ctx := context.Background()
	store, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Populate(ctx, nil))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded.IsEmpty())
}
