package synth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

// TemplateStore supplies reference files that steer code generation.
type TemplateStore interface {
	Load(name string) ([]types.GeneratedFile, error)
}

// FileTemplates reads <dir>/<name>.json arrays of {file_path, code} and
// keeps decoded sets in an LRU cache.
type FileTemplates struct {
	dir   string
	cache *lru.Cache[string, []types.GeneratedFile]
}

func NewFileTemplates(dir string) (*FileTemplates, error) {
	cache, err := lru.New[string, []types.GeneratedFile](32)
	if err != nil {
		return nil, err
	}
	return &FileTemplates{dir: dir, cache: cache}, nil
}

// Load returns the named template set. A missing file reports an error
// matching os.ErrNotExist.
func (t *FileTemplates) Load(name string) ([]types.GeneratedFile, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".json")
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("synth: invalid template name %q", name)
	}
	if files, ok := t.cache.Get(name); ok {
		return cloneFiles(files), nil
	}
	path := filepath.Join(t.dir, name+".json")
	var files []types.GeneratedFile
	if err := jsonutil.ReadFile(path, &files); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("synth: template %s: %w", path, err)
	}
	t.cache.Add(name, files)
	return cloneFiles(files), nil
}

// StaticTemplates serves template sets from memory.
type StaticTemplates map[string][]types.GeneratedFile

func (s StaticTemplates) Load(name string) ([]types.GeneratedFile, error) {
	files, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("synth: template %q: %w", name, os.ErrNotExist)
	}
	return cloneFiles(files), nil
}

func cloneFiles(in []types.GeneratedFile) []types.GeneratedFile {
	return append([]types.GeneratedFile(nil), in...)
}
