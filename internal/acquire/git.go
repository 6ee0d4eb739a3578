package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Cloner fetches a repository into dest.
type Cloner interface {
	Clone(ctx context.Context, url, dest string) error
}

// GitError is a failed git invocation with its captured stderr.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Err }

// runGit is injectable in tests.
var runGit = func(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Never block on a credential prompt.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	if err := cmd.Run(); err != nil {
		return stdout.String(), &GitError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// GitCloner shells out to `git clone`. Depth 0 clones the full history.
type GitCloner struct {
	Depth int
}

func (g GitCloner) Clone(ctx context.Context, url, dest string) error {
	args := []string{"clone"}
	if g.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(g.Depth))
	}
	_, err := runGit(ctx, append(args, url, dest)...)
	return err
}

// ClonerFunc adapts a function to Cloner.
type ClonerFunc func(ctx context.Context, url, dest string) error

func (f ClonerFunc) Clone(ctx context.Context, url, dest string) error { return f(ctx, url, dest) }
