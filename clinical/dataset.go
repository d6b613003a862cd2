package clinical

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Dataset is a patient's clinical record as delivered by the acquisition flow:
// FHIR resources grouped by resource type plus extracted attachments.
type Dataset struct {
	Resources   map[string][]json.RawMessage `json:"fhir"`
	Attachments []Attachment                 `json:"attachments"`
}

// Attachment is a binary or text document referenced by a FHIR resource.
// ContentRaw travels as base64 on the wire.
type Attachment struct {
	ResourceType     string `json:"resourceType"`
	ResourceID       string `json:"resourceId"`
	Path             string `json:"path"`
	ContentType      string `json:"contentType"`
	JSON             string `json:"json,omitempty"`
	ContentRaw       []byte `json:"contentBase64,omitempty"`
	ContentPlaintext string `json:"contentPlaintext,omitempty"`
}

// Summary counts what a dataset or store holds.
type Summary struct {
	Resources   map[string]int `json:"resources"`
	Attachments int            `json:"attachments"`
}

func NewDataset() *Dataset {
	return &Dataset{Resources: make(map[string][]json.RawMessage)}
}

// Decode reads a dataset from JSON. A body of "null" or "{}" yields an empty dataset.
func Decode(r io.Reader) (*Dataset, error) {
	ds := NewDataset()
	if err := json.NewDecoder(r).Decode(ds); err != nil {
		return nil, fmt.Errorf("[clinical Decode] %w", err)
	}
	if ds.Resources == nil {
		ds.Resources = make(map[string][]json.RawMessage)
	}
	return ds, nil
}

func (d *Dataset) Add(resourceType string, resource json.RawMessage) {
	if d.Resources == nil {
		d.Resources = make(map[string][]json.RawMessage)
	}
	d.Resources[resourceType] = append(d.Resources[resourceType], resource)
}

// IsEmpty reports whether there is nothing worth materializing.
func (d *Dataset) IsEmpty() bool {
	if d == nil {
		return true
	}
	for _, list := range d.Resources {
		if len(list) > 0 {
			return false
		}
	}
	return len(d.Attachments) == 0
}

func (d *Dataset) ResourceTypes() []string {
	types := make([]string, 0, len(d.Resources))
	for t, list := range d.Resources {
		if len(list) > 0 {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

func (d *Dataset) Summary() Summary {
	s := Summary{Resources: make(map[string]int)}
	if d == nil {
		return s
	}
	for t, list := range d.Resources {
		if len(list) > 0 {
			s.Resources[t] = len(list)
		}
	}
	s.Attachments = len(d.Attachments)
	return s
}
