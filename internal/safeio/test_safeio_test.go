package safeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFS_ReadsRelativeAndAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "src", "a.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	fsys, err := NewSafeFS(dir)
	require.NoError(t, err)

	b, err := fsys.ReadFile("src/a.js")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	b, err = fsys.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

func TestSafeFS_RejectsTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644))

	fsys, err := NewSafeFS(root)
	require.NoError(t, err)

	_, err = fsys.ReadFile("../secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = fsys.ReadFile(filepath.Join(parent, "secret.txt"))
	assert.Error(t, err)
}

func TestSafeFS_RejectsSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "repo")
	require.NoError(t, os.MkdirAll(root, 0o755))
	outside := filepath.Join(parent, "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	fsys, err := NewSafeFS(root)
	require.NoError(t, err)
	_, err = fsys.ReadFile("link.txt")
	assert.Error(t, err)
}

func TestReadText_FallsBackToLatin1(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "l1.js"), []byte{'c', 'a', 'f', 0xE9}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u8.js"), []byte("café"), 0o644))

	fsys, err := NewSafeFS(dir)
	require.NoError(t, err)

	got, err := fsys.ReadText("l1.js")
	require.NoError(t, err)
	assert.Equal(t, "café", got)

	got, err = fsys.ReadText("u8.js")
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

func TestSafeFS_RejectsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bundle.js"), make([]byte, MaxFileSize+1), 0o644))

	fsys, err := NewSafeFS(dir)
	require.NoError(t, err)
	_, err = fsys.ReadText("bundle.js")
	assert.ErrorIs(t, err, ErrTooLarge)
}
