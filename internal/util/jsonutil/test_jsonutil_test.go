package jsonutil

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFirstObject_SurroundingProse(t *testing.T) {
	text := "Sure! Here is the schema:\n{\"collection_name\":\"users\",\"schema\":{\"email\":\"string\"}}\nLet me know."
	raw, err := ExtractFirstObject(text)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "users", got["collection_name"])
}

func TestExtractFirstObject_BracesInsideStrings(t *testing.T) {
	text := `prefix {"code":"function f() { return '}'; }","n":1} trailing {"other":true}`
	raw, err := ExtractFirstObject(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"function f() { return '}'; }","n":1}`, string(raw))
}

func TestExtractFirstObject_SkipsInvalidCandidate(t *testing.T) {
	text := `{not json} then {"ok":1}`
	raw, err := ExtractFirstObject(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1}`, string(raw))
}

func TestExtractFirstObject_NoMatch(t *testing.T) {
	_, err := ExtractFirstObject("no braces here")
	assert.True(t, errors.Is(err, ErrNoJSONObject))

	_, err = ExtractFirstObject(`{"unterminated": true`)
	assert.True(t, errors.Is(err, ErrNoJSONObject))
}

func TestExtractFirstArray(t *testing.T) {
	raw, err := ExtractFirstArray("files:\n[{\"file_path\":\"a.js\",\"code\":\"[]\"}]")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"file_path":"a.js","code":"[]"}]`, string(raw))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `[1,2]`, StripCodeFence("```json\n[1,2]\n```"))
	assert.Equal(t, `[1,2]`, StripCodeFence("  [1,2] "))
}

func TestMarshalNoEscape_KeepsAngleBrackets(t *testing.T) {
	b, err := MarshalNoEscape(map[string]string{"code": "a < b && c > d"})
	require.NoError(t, err)
	assert.Equal(t, `{"code":"a < b && c > d"}`, string(b))
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, WriteFile(path, map[string]int{"n": 3}))

	var got map[string]int
	require.NoError(t, ReadFile(path, &got))
	assert.Equal(t, 3, got["n"])
}

func TestUnmarshalFlex_DoubleEncoded(t *testing.T) {
	var got map[string]int
	require.NoError(t, UnmarshalFlex([]byte(`"{\"n\":2}"`), &got))
	assert.Equal(t, 2, got["n"])
}
