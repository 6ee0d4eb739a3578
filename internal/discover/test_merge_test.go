package discover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/types"
)

func ep(name, method string, files ...string) types.Endpoint {
	return types.Endpoint{EndpointName: name, Method: method, UsedInFiles: files}
}

func TestMerge_NewEndpointStripsFlagAndNormalizesMethod(t *testing.T) {
	m := NewMerger()
	in := ep("/users", "get", "a.tsx")
	in.IsModifiedEndpoint = true
	m.Merge([]types.Endpoint{in})

	got := m.Endpoints()
	require.Len(t, got, 1)
	assert.False(t, got[0].IsModifiedEndpoint)
	assert.Equal(t, "GET", got[0].Method)
}

func TestMerge_UnflaggedIsIdempotentUnion(t *testing.T) {
	m := NewMerger()
	first := ep("/users", "GET", "a.tsx")
	first.Description = "list users"
	m.Merge([]types.Endpoint{first})

	again := ep("/users", "GET", "b.tsx")
	again.Description = "a much longer description that must not replace the first"
	m.Merge([]types.Endpoint{again})
	m.Merge([]types.Endpoint{again})

	got := m.Endpoints()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a.tsx", "b.tsx"}, got[0].UsedInFiles)
	assert.Equal(t, "list users", got[0].Description)
}

func TestMerge_FlagsNeverFlipBack(t *testing.T) {
	m := NewMerger()
	m.Merge([]types.Endpoint{ep("/orders", "POST", "a.tsx")})

	withAuth := ep("/orders", "POST", "b.tsx")
	withAuth.AuthRequired = true
	m.Merge([]types.Endpoint{withAuth})
	assert.True(t, m.Endpoints()[0].AuthRequired)

	without := ep("/orders", "POST", "c.tsx")
	without.IsModifiedEndpoint = true
	m.Merge([]types.Endpoint{without})
	assert.True(t, m.Endpoints()[0].AuthRequired)
}

func TestMerge_FlaggedWidensDescriptionAndMergesFields(t *testing.T) {
	req := true
	m := NewMerger()
	first := ep("/login", "POST", "Login.tsx")
	first.Description = "log in"
	first.Payload = types.Fields{"email": {Type: "string"}, "password": {Type: "string"}}
	m.Merge([]types.Endpoint{first})

	mod := ep("/login", "post", "Header.tsx")
	mod.IsModifiedEndpoint = true
	mod.Description = "authenticate a user and issue a session token"
	mod.Payload = types.Fields{"password": {Type: "string", Required: &req}, "remember": {Type: "boolean"}}
	mod.Response = types.Fields{"token": {Type: "string"}}
	mod.FileUpload = true
	m.Merge([]types.Endpoint{mod})

	got := m.Endpoints()[0]
	assert.Equal(t, "authenticate a user and issue a session token", got.Description)
	assert.Len(t, got.Payload, 3)
	require.NotNil(t, got.Payload["password"].Required)
	assert.True(t, *got.Payload["password"].Required)
	assert.Contains(t, got.Response, "token")
	assert.True(t, got.FileUpload)
	assert.Equal(t, []string{"Header.tsx", "Login.tsx"}, got.UsedInFiles)

	shorter := ep("/login", "POST")
	shorter.IsModifiedEndpoint = true
	shorter.Description = "login"
	m.Merge([]types.Endpoint{shorter})
	assert.Equal(t, "authenticate a user and issue a session token", m.Endpoints()[0].Description)
}

func TestMerge_MethodSeparatesIdentity(t *testing.T) {
	m := NewMerger()
	m.Merge([]types.Endpoint{ep("/users", "GET", "a"), ep("/users", "POST", "a"), ep("/users", "get", "b")})

	got := m.Endpoints()
	require.Len(t, got, 2)
	assert.Equal(t, "GET", got[0].Method)
	assert.Equal(t, "POST", got[1].Method)
	assert.Equal(t, []string{"a", "b"}, got[0].UsedInFiles)
}

func TestMerge_EndpointsAreCopies(t *testing.T) {
	m := NewMerger()
	m.Merge([]types.Endpoint{ep("/x", "GET", "a")})
	out := m.Endpoints()
	out[0].UsedInFiles[0] = "mutated"
	assert.Equal(t, []string{"a"}, m.Endpoints()[0].UsedInFiles)
}
