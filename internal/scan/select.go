package scan

import (
	"context"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Discovery modes accepted in configuration.
const (
	ModeAllFiles   = "all_files"
	ModeAPIFiles   = "api_files"
	ModeReactHooks = "react_hooks"
	ModeAuthFiles  = "auth_files"
)

var (
	// Always searched: the hooks that usually wrap data fetching.
	baseContentPatterns = []string{"useEffect", "useQuery", "useMutation", "useState"}
	hookPatterns        = []string{"useEffect", "useQuery", "useMutation", "useApi", "useFetch", "useHttp", "useRequest"}
	authPatterns        = []string{"auth", "login", "logout", "signin", "signup", "token", "jwt", "password"}

	apiGlobs = []string{
		"**/*api*.{js,jsx,ts,tsx}",
		"**/*service*.{js,ts}",
		"**/*client*.{js,ts}",
		"**/*http*.{js,ts}",
		"src/api/**/*.{js,ts}",
		"src/services/**/*.{js,ts}",
	}
	indexNames = []string{"index.js", "index.jsx", "index.ts", "index.tsx"}
)

// Options selects which candidate files discovery analyzes.
type Options struct {
	AllFiles   bool
	APIFiles   bool
	ReactHooks bool
	AuthFiles  bool
	// MaxFiles caps the selection after de-duplication; 0 means no cap.
	MaxFiles int
}

// OptionsFromModes builds Options from configured mode names.
func OptionsFromModes(modes []string, maxFiles int) Options {
	o := Options{MaxFiles: maxFiles}
	for _, m := range modes {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case ModeAllFiles:
			o.AllFiles = true
		case ModeAPIFiles:
			o.APIFiles = true
		case ModeReactHooks:
			o.ReactHooks = true
		case ModeAuthFiles:
			o.AuthFiles = true
		}
	}
	return o
}

// Select returns repo-relative paths to analyze, de-duplicated in
// first-seen order. The base set is api files, all files, or index files
// (in that precedence); files using data hooks are always added, then the
// optional hook and auth matches.
func Select(ctx context.Context, root string, opts Options, log zerolog.Logger) ([]string, error) {
	sources, err := SourceFiles(root)
	if err != nil {
		return nil, err
	}

	var selected []string
	switch {
	case opts.APIFiles:
		selected = matchGlobs(sources, apiGlobs)
	case opts.AllFiles:
		selected = append(selected, sources...)
	default:
		selected = matchIndex(sources)
	}

	selected = append(selected, Grep(ctx, root, sources, baseContentPatterns, false, log)...)
	if opts.ReactHooks {
		selected = append(selected, Grep(ctx, root, sources, hookPatterns, false, log)...)
	}
	if opts.AuthFiles {
		selected = append(selected, Grep(ctx, root, sources, authPatterns, true, log)...)
	}

	out := dedupe(selected)
	if opts.MaxFiles > 0 && len(out) > opts.MaxFiles {
		out = out[:opts.MaxFiles]
	}
	log.Debug().Int("candidates", len(sources)).Int("selected", len(out)).Msg("scan: files selected")
	return out, ctx.Err()
}

func matchGlobs(files, globs []string) []string {
	var out []string
	for _, f := range files {
		for _, g := range globs {
			if ok, _ := doublestar.Match(g, f); ok {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func matchIndex(files []string) []string {
	var out []string
	for _, f := range files {
		base := path.Base(f)
		for _, n := range indexNames {
			if base == n {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
