package packager

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/apperr"
	"f2b/internal/collection"
	"f2b/internal/store/artifact"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

func writeList(t *testing.T, dir string, v any) string {
	t.Helper()
	p := filepath.Join(dir, "final_code.json")
	require.NoError(t, jsonutil.WriteFile(p, v))
	return p
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(b)
	}
	return out
}

func TestPackage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	files := []types.GeneratedFile{
		{FilePath: "package.json", Code: `{"type":"module"}`},
		{FilePath: "src/routes/users.js", Code: "export default router;\n"},
		{FilePath: "src/models/schemas/user.js", Code: ""},
	}
	list := writeList(t, dir, files)

	archive, err := New(nil, zerolog.Nop()).Package(context.Background(), list)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ArchiveName), archive)

	got := readZip(t, archive)
	require.Len(t, got, len(files))
	for _, f := range files {
		assert.Equal(t, f.Code, got[f.FilePath], f.FilePath)
	}

	b, err := os.ReadFile(filepath.Join(dir, OutputDir, "src", "routes", "users.js"))
	require.NoError(t, err)
	assert.Equal(t, "export default router;\n", string(b))
}

func TestPackage_RecreatesOutputDirAndIncludesCollection(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, OutputDir, "stale.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ArchiveName), []byte("not a zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, collection.FileCollection), []byte(`{"info":{}}`), 0o644))

	list := writeList(t, dir, []types.GeneratedFile{{FilePath: "src/app.js", Code: "app"}})
	archive, err := New(nil, zerolog.Nop()).Package(context.Background(), list)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	got := readZip(t, archive)
	names := make([]string, 0, len(got))
	for n := range got {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{collection.FileCollection, "src/app.js"}, names)
}

func TestPackage_GeneratedCollectionWinsOverExtra(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, collection.FileCollection), []byte(`{"info":"extra"}`), 0o644))
	list := writeList(t, dir, []types.GeneratedFile{
		{FilePath: "src/app.js", Code: "app"},
		{FilePath: collection.FileCollection, Code: `{"info":"generated"}`},
	})

	archive, err := New(nil, zerolog.Nop()).Package(context.Background(), list)
	require.NoError(t, err)

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	count := 0
	for _, f := range zr.File {
		if f.Name == collection.FileCollection {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, `{"info":"generated"}`, readZip(t, archive)[collection.FileCollection])
}

func TestPackage_ZeroFilesIsFatal(t *testing.T) {
	for name, v := range map[string]any{
		"empty":       []any{},
		"all invalid": []map[string]any{{"file_path": "a.js"}, {"code": "x"}, {"file_path": "/", "code": "x"}},
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := New(nil, zerolog.Nop()).Package(context.Background(), writeList(t, dir, v))
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindIntegrity))
			_, statErr := os.Stat(filepath.Join(dir, ArchiveName))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestPackage_MissingList(t *testing.T) {
	_, err := New(nil, zerolog.Nop()).Package(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSafeJoin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "tmp", "api")
	_, ok := safeJoin(root, "../x.js")
	assert.True(t, ok, "cleaned under root")
	_, ok = safeJoin(root, "/")
	assert.False(t, ok)
	p, ok := safeJoin(root, "src/a.js")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "src", "a.js"), p)
}

func TestMirror(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, ArchiveName)
	require.NoError(t, os.WriteFile(archive, []byte("PK"), 0o644))

	u, err := New(nil, zerolog.Nop()).Mirror(context.Background(), "p", archive)
	require.NoError(t, err)
	assert.Empty(t, u)

	store := artifact.NewMemoryStore()
	_, err = New(store, zerolog.Nop()).Mirror(context.Background(), "p", archive)
	require.NoError(t, err)
	b, err := store.Get(context.Background(), "p", ArchiveName)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(b))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Open(dir, filepath.Join(dir, "final_code.json"))
	assert.Equal(t, 400, apperr.StatusOf(err))

	_, _, err = Open(dir, filepath.Join(dir, "missing.zip"))
	assert.Equal(t, 404, apperr.StatusOf(err))

	p := filepath.Join(dir, ArchiveName)
	require.NoError(t, os.WriteFile(p, []byte("PKzip"), 0o644))
	f, size, err := Open(dir, p)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(5), size)
}

func TestOpen_ConfinedToRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "Projects")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "p-1"), 0o755))
	outside := filepath.Join(base, "secret.zip")
	require.NoError(t, os.WriteFile(outside, []byte("PK"), 0o644))
	inside := ProjectArchive(root, "p-1")
	require.NoError(t, os.WriteFile(inside, []byte("PK"), 0o644))

	for _, p := range []string{
		outside,
		filepath.Join(root, "..", "secret.zip"),
		filepath.Join(root, "p-1", "..", "..", "secret.zip"),
	} {
		_, _, err := Open(root, p)
		require.Error(t, err, p)
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), p)
	}

	// A symlink inside the root does not lead out of it.
	link := filepath.Join(root, "p-1", "link.zip")
	if err := os.Symlink(outside, link); err == nil {
		_, _, err := Open(root, link)
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	}

	f, _, err := Open(root, inside)
	require.NoError(t, err)
	_ = f.Close()
}
