package scan

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"f2b/internal/safeio"
)

// Overridable for tests.
var (
	lookPath = exec.LookPath
	runRG    = func(ctx context.Context, bin string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, bin, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		var exitErr *exec.ExitError
		// rg exits 1 when nothing matched.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return out, nil
		}
		if err != nil && stderr.Len() > 0 {
			return out, errors.New(strings.TrimSpace(stderr.String()))
		}
		return out, err
	}
)

// Grep returns the candidates whose content matches any of patterns, in
// candidate order. ripgrep is used when available; otherwise (or when it
// fails) each candidate is read and matched in-process.
func Grep(ctx context.Context, root string, candidates, patterns []string, ignoreCase bool, log zerolog.Logger) []string {
	if len(candidates) == 0 || len(patterns) == 0 {
		return nil
	}
	if bin, err := lookPath("rg"); err == nil {
		hits, err := grepRG(ctx, bin, root, patterns, ignoreCase)
		if err == nil {
			return filterOrdered(candidates, hits)
		}
		log.Debug().Err(err).Msg("scan: ripgrep failed, falling back to regexp search")
	}
	return grepRegexp(root, candidates, patterns, ignoreCase)
}

func grepRG(ctx context.Context, bin, root string, patterns []string, ignoreCase bool) (map[string]struct{}, error) {
	args := []string{"-l", "--no-messages", "--no-ignore", "--hidden"}
	if ignoreCase {
		args = append(args, "-i")
	}
	for _, ext := range SourceExts {
		args = append(args, "-g", "*"+ext)
	}
	for _, p := range patterns {
		args = append(args, "-e", p)
	}
	args = append(args, root)

	out, err := runRG(ctx, bin, args...)
	if err != nil {
		return nil, err
	}
	hits := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rel, err := filepath.Rel(root, line)
		if err != nil {
			continue
		}
		hits[filepath.ToSlash(rel)] = struct{}{}
	}
	return hits, nil
}

func grepRegexp(root string, candidates, patterns []string, ignoreCase bool) []string {
	expr := "(?:" + strings.Join(patterns, ")|(?:") + ")"
	if ignoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	var out []string
	for _, rel := range candidates {
		b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		text, err := safeio.DecodeText(b)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			out = append(out, rel)
		}
	}
	return out
}

func filterOrdered(candidates []string, hits map[string]struct{}) []string {
	var out []string
	for _, c := range candidates {
		if _, ok := hits[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
