package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/collection"
	"f2b/internal/util/jsonutil"
)

func TestPostmanCommand_Convert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sorted_endpoints.json")
	require.NoError(t, os.WriteFile(in, []byte(`[
		{"endpointName":"login","method":"post","path":"/auth/login","description":"sign in","authRequired":false,"payload_sample":{"email":"a@b.c"}},
		{"endpointName":"profile","method":"GET","path":"/users/me","description":"current user","authRequired":true}
	]`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"postman", in, "--name", "shop"})
	require.NoError(t, rootCmd.Execute())

	path := strings.TrimSpace(out.String())
	assert.Equal(t, filepath.Join(dir, collection.FileCollection), path)

	var coll collection.Collection
	require.NoError(t, jsonutil.ReadFile(path, &coll))
	assert.Equal(t, "shop API Collection", coll.Info.Name)
	require.Len(t, coll.Item, 2)
}

func TestGenerateCommand_RequiresURL(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"generate"})
	require.Error(t, rootCmd.Execute())
}

func TestGenerateCommand_HelpDescribesProjectLayout(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"generate", "--help"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "PROJECTS_ROOT/<project-id>/")
	assert.Contains(t, out.String(), "<project-id>/<repo>")
	assert.NotContains(t, out.String(), "PROJECTS_ROOT/<repo>")
}
