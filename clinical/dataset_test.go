package clinical

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCallbackBody(t *testing.T) {
	body := `{
		"fhir": {
			"Patient": [{"resourceType":"Patient","id":"p1"}],
			"Observation": [{"resourceType":"Observation","id":"o1"},{"resourceType":"Observation","id":"o2"}],
			"Condition": []
		},
		"attachments": [{
			"resourceType":"DocumentReference","resourceId":"d1","path":"content.0.attachment",
			"contentType":"text/plain","contentBase64":"aGVsbG8=","contentPlaintext":"hello"
		}]
	}`
	ds, err := Decode(strings.NewReader(body))
	require.NoError(t, err)
	require.False(t, ds.IsEmpty())
	require.Equal(t, []string{"Observation", "Patient"}, ds.ResourceTypes())
	require.Equal(t, []byte("hello"), ds.Attachments[0].ContentRaw)
	require.Equal(t, Summary{Resources: map[string]int{"Observation": 2, "Patient": 1}, Attachments: 1}, ds.Summary())
}

func TestEmptyDatasets(t *testing.T) {
	var nilDataset *Dataset
	require.True(t, nilDataset.IsEmpty())

	for _, body := range []string{`null`, `{}`, `{"fhir":{"Patient":[]}}`} {
		ds, err := Decode(strings.NewReader(body))
		require.NoError(t, err, body)
		require.True(t, ds.IsEmpty(), body)
	}

	_, err := Decode(strings.NewReader(`{"fhir":`))
	require.Error(t, err)
}

func TestAdd(t *testing.T) {
	ds := &Dataset{}
	ds.Add("Patient", json.RawMessage(`{"id":"p1"}`))
	require.Equal(t, 1, ds.Summary().Resources["Patient"])
}
