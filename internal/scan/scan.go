package scan

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// DefaultIgnoreDirs are never descended into.
var DefaultIgnoreDirs = []string{".git", "node_modules", "dist", "build", ".next", "coverage", "vendor"}

// SourceExts are the frontend source extensions considered by discovery.
var SourceExts = []string{".js", ".jsx", ".ts", ".tsx"}

// FileVisit carries per-entry metadata to user callbacks.
type FileVisit struct {
	// Repo-relative path using forward slashes (e.g., "src/App.tsx").
	Path    string
	AbsPath string
	Ext     string
	Size    int64
}

type VisitFunc func(f FileVisit)

// Walk visits every regular file under root, skipping ignored directories.
// Entries are visited in lexical order.
func Walk(root string, ignoreDirs []string, cb VisitFunc) error {
	if ignoreDirs == nil {
		ignoreDirs = DefaultIgnoreDirs
	}
	skip := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		skip[d] = struct{}{}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if _, ok := skip[d.Name()]; ok && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		var size int64
		if fi, e := d.Info(); e == nil {
			size = fi.Size()
		}
		cb(FileVisit{
			Path:    filepath.ToSlash(rel),
			AbsPath: path,
			Ext:     strings.ToLower(filepath.Ext(path)),
			Size:    size,
		})
		return nil
	})
}

// SourceFiles lists repo-relative paths of every frontend source file.
func SourceFiles(root string) ([]string, error) {
	var out []string
	err := Walk(root, nil, func(f FileVisit) {
		if isSourceExt(f.Ext) {
			out = append(out, f.Path)
		}
	})
	return out, err
}

func isSourceExt(ext string) bool {
	for _, e := range SourceExts {
		if e == ext {
			return true
		}
	}
	return false
}
