package packager

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"f2b/internal/apperr"
)

// ProjectArchive is where Package leaves the archive of a project cloned
// under root.
func ProjectArchive(root, projectID string) string {
	return filepath.Join(root, projectID, ArchiveName)
}

// Open opens a previously built archive for download. path must name a .zip
// inside root; anything else is rejected before the file is opened.
func Open(root, path string) (*os.File, int64, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".zip") {
		return nil, 0, apperr.InvalidInput("invalid file format, expected a .zip archive: %s", path)
	}
	full, err := confine(root, path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, apperr.NotFound("archive not found: %s", path)
		}
		return nil, 0, apperr.Wrap(apperr.KindInternal, "open archive", err)
	}
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, apperr.NotFound("archive not found: %s", path)
	}
	return f, st.Size(), nil
}

func confine(root, p string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", apperr.New(apperr.KindInternal, "projects root is not configured")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "resolve projects root", err)
	}
	full, err := filepath.Abs(p)
	if err != nil {
		return "", apperr.InvalidInput("invalid archive path: %s", p)
	}
	rel, err := filepath.Rel(realPath(absRoot), realPath(full))
	if err != nil || !filepath.IsLocal(rel) {
		return "", apperr.InvalidInput("archive path is outside the projects root: %s", p)
	}
	return full, nil
}

// realPath resolves symlinks in the longest existing prefix of p.
func realPath(p string) string {
	rest := ""
	for cur := p; ; {
		if r, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(r, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}
