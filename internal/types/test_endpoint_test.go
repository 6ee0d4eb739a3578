package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_UnmarshalShorthandAndObject(t *testing.T) {
	var fs Fields
	require.NoError(t, json.Unmarshal([]byte(`{"email":"string","age":{"type":"number","required":true}}`), &fs))
	assert.Equal(t, "string", fs["email"].Type)
	assert.Equal(t, "number", fs["age"].Type)
	require.NotNil(t, fs["age"].Required)
	assert.True(t, *fs["age"].Required)
}

func TestEndpoint_KeyNormalizesMethod(t *testing.T) {
	e := Endpoint{EndpointName: " /products ", Method: "get"}
	assert.Equal(t, EndpointKey{Name: "/products", Method: "GET"}, e.Key())
	assert.Equal(t, "/products_GET", e.Key().String())
}

func TestEndpoint_CloneIsDeep(t *testing.T) {
	e := Endpoint{
		EndpointName:   "/users",
		Payload:        Fields{"name": {Type: "string"}},
		UsedInFiles:    []string{"a.js"},
		DatabaseSchema: &DatabaseSchema{CollectionName: "users", Schema: map[string]any{"name": "string"}},
	}
	c := e.Clone()
	c.Payload["extra"] = Field{Type: "number"}
	c.UsedInFiles[0] = "b.js"
	c.DatabaseSchema.Schema["x"] = "y"

	assert.Len(t, e.Payload, 1)
	assert.Equal(t, "a.js", e.UsedInFiles[0])
	assert.Len(t, e.DatabaseSchema.Schema, 1)
}

func TestEndpoint_WithoutSamplesAndRoutePath(t *testing.T) {
	e := Endpoint{EndpointName: "users", PayloadSample: json.RawMessage(`{"a":1}`)}
	assert.Nil(t, e.WithoutSamples().PayloadSample)
	assert.Equal(t, "/users", e.RoutePath())

	e.Path = "/api/users"
	assert.Equal(t, "/api/users", e.RoutePath())
}

func TestMockSchema_PublicStripsSamples(t *testing.T) {
	m := MockSchema{CollectionName: "users", Schema: map[string]any{"email": "string"}, Samples: map[string]any{"email": "a@b.c"}}
	pub := m.Public("shop")
	b, err := json.Marshal(pub)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "samples")
	assert.Equal(t, "shop", pub.DBName)
	assert.True(t, UnknownMockSchema().IsUnknown())
}
