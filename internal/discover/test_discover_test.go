package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/errorsink"
	"f2b/internal/llm"
	"f2b/internal/scan"
	"f2b/internal/store/docstore"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

func project(t *testing.T, files map[string]string) *types.Project {
	t.Helper()
	dir := t.TempDir()
	repo := filepath.Join(dir, "shop")
	for rel, body := range files {
		p := filepath.Join(repo, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return &types.Project{ID: "p-1", RepoName: "shop", RepoPath: repo, Dir: dir}
}

func TestDiscover_SequentialMergeAndViews(t *testing.T) {
	p := project(t, map[string]string{
		"src/index.tsx":      "root",
		"src/pages/Home.jsx": "const [x] = useState()",
		"src/pages/Bad.jsx":  "useEffect(() => {})",
	})

	var sawKnown []string
	fake := llm.NewFake(func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "File path: src/index.tsx"):
			return `{"endpoints":[{"endpointName":"/products","method":"GET","description":"list","payload_sample":{"q":"x"}}]}`, nil
		case strings.Contains(req.Prompt, "File path: src/pages/Home.jsx"):
			sawKnown = append(sawKnown, req.Prompt)
			return "Here you go:\n" + `{"endpoints":[{"endpointName":"/products","method":"get","authRequired":true},{"endpointName":"/cart","method":"POST"}]}`, nil
		default:
			return "not json at all", nil
		}
	})
	mem := docstore.NewMemory()
	sink := errorsink.NewDoc(mem, "F2B", "error_logs", zerolog.Nop())

	d := New(fake, sink, scan.Options{}, zerolog.Nop())
	var progress []int
	d.OnProgress(func(done, total int, _ string, _ int) { progress = append(progress, done) })

	res, err := d.Discover(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Endpoints, 2)
	assert.Equal(t, "/products", res.Endpoints[0].EndpointName)
	assert.True(t, res.Endpoints[0].AuthRequired)
	assert.Equal(t, []string{"src/index.tsx", "src/pages/Home.jsx"}, res.Endpoints[0].UsedInFiles)
	assert.Equal(t, "/cart", res.Endpoints[1].EndpointName)
	assert.Equal(t, 2, res.FilesAnalyzed)
	assert.Equal(t, []int{1, 2, 3}, progress)

	// The second call saw the first file's endpoint.
	require.Len(t, sawKnown, 1)
	assert.Contains(t, sawKnown[0], `"endpointName": "/products"`)

	// The unparsable file was recorded, not fatal.
	logs := mem.Docs("F2B", "error_logs")
	require.Len(t, logs, 1)
	assert.Equal(t, "src/pages/Bad.jsx", logs[0]["file"])

	var with, without types.EndpointList
	require.NoError(t, jsonutil.ReadFile(res.WithSamplesPath, &with))
	require.NoError(t, jsonutil.ReadFile(res.WithoutSamplesPath, &without))
	assert.JSONEq(t, `{"q":"x"}`, string(with.Endpoints[0].PayloadSample))
	assert.Nil(t, without.Endpoints[0].PayloadSample)
	assert.Equal(t, filepath.Join(p.Dir, FileWithSamples), res.WithSamplesPath)
}

func TestDiscover_LLMFailureIsIsolated(t *testing.T) {
	p := project(t, map[string]string{"src/index.js": "x", "src/a/index.js": "y"})
	calls := 0
	fake := llm.NewFake(func(req llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("upstream 500")
		}
		return `{"endpoints":[{"endpointName":"/ping","method":"GET"}]}`, nil
	})

	res, err := New(fake, nil, scan.Options{}, zerolog.Nop()).Discover(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, res.Endpoints, 1)
	assert.Equal(t, 2, calls)
}

func TestDiscover_MissingRepo(t *testing.T) {
	p := &types.Project{ID: "x", RepoPath: filepath.Join(t.TempDir(), "nope"), Dir: t.TempDir()}
	_, err := New(llm.NewFakeText("{}"), nil, scan.Options{}, zerolog.Nop()).Discover(context.Background(), p)
	require.Error(t, err)
}

func TestParseEndpoints_Shapes(t *testing.T) {
	got, err := ParseEndpoints("```json\n[{\"endpointName\":\"/a\",\"method\":\"GET\"}]\n```")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = ParseEndpoints(`{"endpoints":[]}`)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseEndpoints("sorry, I can't")
	assert.Error(t, err)
}
