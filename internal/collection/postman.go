// Package collection produces the Postman collection shipped with the
// generated backend.
package collection

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"f2b/internal/apperr"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

const (
	FileCollection = "postman_collection.json"
	SchemaV21      = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"
)

type Collection struct {
	Info     Info       `json:"info"`
	Item     []Item     `json:"item"`
	Variable []Variable `json:"variable,omitempty"`
}

type Info struct {
	PostmanID string `json:"_postman_id"`
	Name      string `json:"name"`
	Schema    string `json:"schema"`
}

type Item struct {
	Name    string  `json:"name"`
	Request Request `json:"request"`
}

type Request struct {
	Method      string   `json:"method"`
	Header      []Header `json:"header"`
	URL         URL      `json:"url"`
	Description string   `json:"description,omitempty"`
	Body        *Body    `json:"body,omitempty"`
}

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type URL struct {
	Raw   string       `json:"raw"`
	Host  []string     `json:"host"`
	Path  []string     `json:"path"`
	Query []QueryParam `json:"query"`
}

type QueryParam struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

type Body struct {
	Mode    string          `json:"mode"`
	Raw     string          `json:"raw"`
	Options json.RawMessage `json:"options,omitempty"`
}

type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const baseURLVar = "{{base_url}}"

var rawJSONOptions = json.RawMessage(`{"raw":{"language":"json"}}`)

func hasBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// Convert builds a Postman v2.1 collection from endpoints. Request bodies
// come from payload_sample.
func Convert(name string, endpoints []types.Endpoint) Collection {
	c := Collection{
		Info: Info{PostmanID: uuid.NewString(), Name: name + " API Collection", Schema: SchemaV21},
		Item: make([]Item, 0, len(endpoints)),
		Variable: []Variable{
			{Key: "base_url", Value: "http://localhost:5000"},
			{Key: "auth_token", Value: ""},
		},
	}
	for _, e := range endpoints {
		c.Item = append(c.Item, convertOne(e))
	}
	return c
}

func convertOne(e types.Endpoint) Item {
	method := strings.ToUpper(strings.TrimSpace(e.Method))
	route := e.RoutePath()

	headers := []Header{}
	if hasBody(method) {
		headers = append(headers, Header{Key: "Content-Type", Value: "application/json"})
	}
	if e.AuthRequired {
		headers = append(headers, Header{Key: "Authorization", Value: "Bearer {{auth_token}}"})
	}

	keys := make([]string, 0, len(e.QueryParams))
	for k := range e.QueryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	query := make([]QueryParam, 0, len(keys))
	for _, k := range keys {
		query = append(query, QueryParam{Key: k, Description: e.QueryParams[k].Description})
	}

	req := Request{
		Method:      method,
		Header:      headers,
		Description: e.Description,
		URL: URL{
			Raw:   baseURLVar + route,
			Host:  []string{baseURLVar},
			Path:  strings.Split(strings.TrimPrefix(route, "/"), "/"),
			Query: query,
		},
	}
	if hasBody(method) {
		req.Body = &Body{Mode: "raw", Raw: sampleBody(e.PayloadSample), Options: rawJSONOptions}
	}
	return Item{Name: method + " " + route, Request: req}
}

func sampleBody(sample json.RawMessage) string {
	if len(sample) == 0 || !json.Valid(sample) {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(sample, &v); err != nil {
		return "{}"
	}
	b, err := jsonutil.MarshalNoEscapeIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Converter writes the endpoint-derived collection into the project dir.
type Converter struct{}

func (Converter) Generate(_ context.Context, project *types.Project, endpoints []types.Endpoint, _ []types.GeneratedFile) (string, error) {
	name := project.RepoName
	if name == "" {
		name = project.ID
	}
	path := filepath.Join(project.Dir, FileCollection)
	if err := jsonutil.WriteFile(path, Convert(name, endpoints)); err != nil {
		return "", apperr.Persistence("write "+FileCollection, err)
	}
	return path, nil
}
