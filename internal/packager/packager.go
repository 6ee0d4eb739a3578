// Package packager materializes generated files on disk and zips them.
package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/collection"
	"f2b/internal/reqctx"
	"f2b/internal/store/artifact"
)

const (
	OutputDir   = "api"
	ArchiveName = "api.zip"
	ChunkSize   = 8 * 1024
)

type Packager struct {
	mirror artifact.Store
	log    zerolog.Logger
}

// New returns a Packager. mirror may be nil.
func New(mirror artifact.Store, log zerolog.Logger) *Packager {
	return &Packager{mirror: mirror, log: log}
}

type fileRecord struct {
	FilePath *string `json:"file_path"`
	Code     *string `json:"code"`
}

// Package writes the files listed in fileListPath to a fresh api/ directory
// beside it and zips that directory into api.zip. A postman_collection.json
// beside the list is added at the archive root.
func (p *Packager) Package(ctx context.Context, fileListPath string) (string, error) {
	ctx = reqctx.WithStage(ctx, "packaging")
	log := p.log.With().Str("project_id", reqctx.ProjectID(ctx)).Str("file_list", fileListPath).Logger()

	raw, err := os.ReadFile(fileListPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.NotFound("file list not found: %s", fileListPath)
		}
		return "", apperr.Persistence("read file list", err)
	}
	var records []fileRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return "", apperr.Integrity("file list is not a JSON array of files: %v", err)
	}

	dir := filepath.Dir(fileListPath)
	outDir := filepath.Join(dir, OutputDir)
	if err := os.RemoveAll(outDir); err != nil {
		return "", apperr.Persistence("clear output dir", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", apperr.Persistence("create output dir", err)
	}

	written := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if r.FilePath == nil || r.Code == nil || strings.TrimSpace(*r.FilePath) == "" {
			continue
		}
		dst, ok := safeJoin(outDir, *r.FilePath)
		if !ok {
			log.Warn().Str("file_path", *r.FilePath).Msg("packager: path escapes output dir, skipped")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", apperr.Persistence("create parent dir", err)
		}
		if err := os.WriteFile(dst, []byte(*r.Code), 0o644); err != nil {
			return "", apperr.Persistence("write "+*r.FilePath, err)
		}
		written++
	}
	if written == 0 {
		return "", apperr.Integrity("no files to package in %s", fileListPath)
	}

	archive := filepath.Join(dir, ArchiveName)
	if err := os.Remove(archive); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", apperr.Persistence("remove stale archive", err)
	}
	var extras []string
	if c := filepath.Join(dir, collection.FileCollection); fileExists(c) {
		if fileExists(filepath.Join(outDir, collection.FileCollection)) {
			log.Warn().Str("collection", c).Msg("packager: generated files already carry a collection, extra skipped")
		} else {
			extras = append(extras, c)
		}
	}
	if err := zipDir(archive, outDir, extras); err != nil {
		_ = os.Remove(archive)
		return "", apperr.Persistence("build archive", err)
	}
	if !fileExists(archive) {
		return "", apperr.Integrity("archive missing after packaging: %s", archive)
	}
	log.Info().Int("files", written).Bool("collection", len(extras) > 0).Str("archive", archive).Msg("packager: archive ready")
	return archive, nil
}

// Mirror uploads the archive to the configured store and returns its
// download URL ("" when the store has none or no store is configured).
func (p *Packager) Mirror(ctx context.Context, projectID, archivePath string) (string, error) {
	if p.mirror == nil {
		return "", nil
	}
	b, err := os.ReadFile(archivePath)
	if err != nil {
		return "", fmt.Errorf("packager: read archive: %w", err)
	}
	name := filepath.Base(archivePath)
	if err := p.mirror.Put(ctx, projectID, name, b); err != nil {
		return "", fmt.Errorf("packager: mirror archive: %w", err)
	}
	return p.mirror.GetURL(ctx, projectID, name)
}

// safeJoin resolves a slash separated relative path under root.
func safeJoin(root, rel string) (string, bool) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, `\`, "/"))
	if clean == "/" {
		return "", false
	}
	dst := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if dst != root && !strings.HasPrefix(dst, root+string(filepath.Separator)) {
		return "", false
	}
	return dst, true
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func zipDir(archive, root string, extras []string) error {
	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, filepath.ToSlash(rel))
	})
	if walkErr == nil {
		for _, e := range extras {
			if walkErr = addFile(zw, e, filepath.Base(e)); walkErr != nil {
				break
			}
		}
	}
	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := f.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	return walkErr
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
