// Package safeio reads files of a cloned repository without letting a path
// leave the clone directory.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MaxFileSize caps a single read. Larger files are bundles or assets.
const MaxFileSize = 2 << 20

var (
	ErrOutsideRoot = errors.New("safeio: path escapes root")
	ErrTooLarge    = errors.New("safeio: file too large")
)

type SafeFS struct {
	root string // absolute, symlinks resolved
}

func NewSafeFS(root string) (*SafeFS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("safeio: %s is not a directory", abs)
	}
	return &SafeFS{root: abs}, nil
}

func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// ReadFile reads a regular file given relative to the root, or as an
// absolute path inside it.
func (s *SafeFS) ReadFile(p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return nil, fmt.Errorf("safeio: %s is a directory", p)
	case info.Size() > MaxFileSize:
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, p, info.Size())
	}
	return os.ReadFile(full)
}

// ReadText is ReadFile decoded with DecodeText.
func (s *SafeFS) ReadText(p string) (string, error) {
	b, err := s.ReadFile(p)
	if err != nil {
		return "", err
	}
	return DecodeText(b)
}

// DecodeText returns b as a string. Bytes that are not valid UTF-8 are read
// as ISO-8859-1, which maps every byte.
func DecodeText(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("safeio: decode latin-1: %w", err)
	}
	return string(out), nil
}

func (s *SafeFS) resolve(p string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if strings.TrimSpace(p) == "" {
		return "", errors.New("safeio: empty path")
	}
	rel := p
	if filepath.IsAbs(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			p = resolved
		}
		r, err := filepath.Rel(s.root, filepath.Clean(p))
		if err != nil {
			return "", ErrOutsideRoot
		}
		rel = r
	}
	if rel != "." && !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	full, err := filepath.EvalSymlinks(filepath.Join(s.root, rel))
	if err != nil {
		return "", err
	}
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return full, nil
}
