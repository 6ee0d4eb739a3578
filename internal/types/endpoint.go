package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Field describes one payload, query or response field of an endpoint.
type Field struct {
	Type        string          `json:"type,omitempty"`
	Required    *bool           `json:"required,omitempty"`
	Description string          `json:"description,omitempty"`
	Properties  json.RawMessage `json:"properties,omitempty"`
	Items       json.RawMessage `json:"items,omitempty"`
}

// UnmarshalJSON accepts both the object form and the shorthand `"field": "string"`.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Field{Type: s}
		return nil
	}
	type plain Field
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = Field(p)
	return nil
}

type Fields map[string]Field

// DatabaseSchema is the persistence shape attached to an endpoint by the
// schema stage. Samples never appear here.
type DatabaseSchema struct {
	CollectionName string         `json:"collection_name"`
	Schema         map[string]any `json:"schema"`
	DBName         string         `json:"db_name,omitempty"`
}

// Endpoint is one REST operation inferred from frontend source.
type Endpoint struct {
	EndpointName     string          `json:"endpointName"`
	Method           string          `json:"method"`
	Path             string          `json:"path,omitempty"`
	Description      string          `json:"description"`
	AuthRequired     bool            `json:"authRequired"`
	DatabaseRequired bool            `json:"databaseRequired"`
	FileUpload       bool            `json:"fileUpload"`
	Payload          Fields          `json:"payload,omitempty"`
	QueryParams      Fields          `json:"queryParams,omitempty"`
	Response         Fields          `json:"response,omitempty"`
	PayloadSample    json.RawMessage `json:"payload_sample,omitempty"`
	ResponseSample   json.RawMessage `json:"response_sample,omitempty"`
	UsedInFiles      []string        `json:"usedInFiles"`
	DatabaseSchema   *DatabaseSchema `json:"database_schema,omitempty"`

	// IsModifiedEndpoint is set by the model when it revises a known
	// endpoint. It is stripped before an endpoint enters the merged set.
	IsModifiedEndpoint bool `json:"isModifiedEndpoint,omitempty"`
}

// EndpointKey is the identity of an endpoint inside one run.
type EndpointKey struct {
	Name   string
	Method string
}

func (k EndpointKey) String() string { return k.Name + "_" + k.Method }

func NewEndpointKey(name, method string) EndpointKey {
	return EndpointKey{Name: strings.TrimSpace(name), Method: strings.ToUpper(strings.TrimSpace(method))}
}

func (e Endpoint) Key() EndpointKey { return NewEndpointKey(e.EndpointName, e.Method) }

// RoutePath returns Path, falling back to "/" + EndpointName.
func (e Endpoint) RoutePath() string {
	if p := strings.TrimSpace(e.Path); p != "" {
		return p
	}
	name := strings.TrimSpace(e.EndpointName)
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// Clone returns a deep copy so stages never share maps or slices.
func (e Endpoint) Clone() Endpoint {
	out := e
	out.Payload = e.Payload.clone()
	out.QueryParams = e.QueryParams.clone()
	out.Response = e.Response.clone()
	out.PayloadSample = cloneRaw(e.PayloadSample)
	out.ResponseSample = cloneRaw(e.ResponseSample)
	if e.UsedInFiles != nil {
		out.UsedInFiles = append([]string(nil), e.UsedInFiles...)
	}
	if e.DatabaseSchema != nil {
		ds := *e.DatabaseSchema
		if e.DatabaseSchema.Schema != nil {
			ds.Schema = make(map[string]any, len(e.DatabaseSchema.Schema))
			for k, v := range e.DatabaseSchema.Schema {
				ds.Schema[k] = v
			}
		}
		out.DatabaseSchema = &ds
	}
	return out
}

// WithoutSamples returns a copy with request/response samples removed.
func (e Endpoint) WithoutSamples() Endpoint {
	out := e.Clone()
	out.PayloadSample = nil
	out.ResponseSample = nil
	return out
}

func (f Fields) clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}

// CloneEndpoints deep-copies a slice of endpoints.
func CloneEndpoints(in []Endpoint) []Endpoint {
	if in == nil {
		return nil
	}
	out := make([]Endpoint, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// EndpointList is the on-disk envelope of discovered endpoints.
type EndpointList struct {
	Endpoints []Endpoint `json:"endpoints"`
}
