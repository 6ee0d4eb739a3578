package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"f2b/internal/apperr"
	"f2b/internal/types"
)

var (
	reHTTPS = regexp.MustCompile(`^https://github\.com/[^/]+/[^/]+(\.git)?/?$`)
	reSSH   = regexp.MustCompile(`^git@github\.com:[^/]+/[^/]+(\.git)?$`)

	// Matched against lower-cased stderr. Only the remote repository itself
	// counts; a missing branch or a missing git binary is not a 404.
	reRepoMissing = regexp.MustCompile(`repository( '[^']*')? (not found|does not exist)`)
)

// Acquirer clones a GitHub repository into a fresh project directory.
type Acquirer struct {
	root   string
	cloner Cloner
	log    zerolog.Logger
	newID  func() string
}

// New returns an Acquirer that places projects under root. A nil cloner
// uses git.
func New(root string, cloner Cloner, log zerolog.Logger) *Acquirer {
	if cloner == nil {
		cloner = GitCloner{}
	}
	if strings.TrimSpace(root) == "" {
		root = "Projects"
	}
	return &Acquirer{root: root, cloner: cloner, log: log, newID: uuid.NewString}
}

// ValidateURL reports whether raw is a GitHub https or ssh repository URL.
func ValidateURL(raw string) error {
	if reHTTPS.MatchString(raw) || reSSH.MatchString(raw) {
		return nil
	}
	return apperr.InvalidInput("invalid GitHub URL %q: expected https://github.com/<owner>/<repo> or git@github.com:<owner>/<repo>", raw)
}

// RepoName returns the last path segment of a GitHub URL without ".git".
func RepoName(raw string) string {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(s, ".git")
}

// Acquire validates sourceURL, creates <root>/<uuid> and clones the
// repository into <root>/<uuid>/<repo>.
func (a *Acquirer) Acquire(ctx context.Context, sourceURL string) (*types.Project, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if err := ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	id := a.newID()
	dir, err := filepath.Abs(filepath.Join(a.root, id))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "resolve project directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Persistence("create project directory", err)
	}

	name := RepoName(sourceURL)
	dest := filepath.Join(dir, name)
	log := a.log.With().Str("project_id", id).Str("repo", name).Logger()
	log.Info().Str("url", sourceURL).Msg("acquire: cloning")

	if err := a.cloner.Clone(ctx, sourceURL, dest); err != nil {
		return nil, classify(err)
	}

	entries, err := os.ReadDir(dest)
	if err != nil {
		return nil, apperr.Integrity("repository directory was not created at %s", dest)
	}
	if len(entries) == 0 {
		return nil, apperr.Integrity("repository directory %s is empty", dest)
	}

	p := &types.Project{ID: id, RepoName: name, RepoPath: dest, Dir: dir}
	p.CommitCount = CommitCount(ctx, dest)
	log.Info().Int("commits", p.CommitCount).Msg("acquire: cloned")
	return p, nil
}

// CommitCount returns the number of commits reachable from HEAD, or 0.
func CommitCount(ctx context.Context, repoPath string) int {
	out, err := runGit(ctx, "-C", repoPath, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindExternalGeneric, "git clone interrupted", err)
	}
	detail := err.Error()
	var gitErr *GitError
	if errors.As(err, &gitErr) && gitErr.Stderr != "" {
		detail = gitErr.Stderr
	}
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(detail, "Authentication failed"), strings.Contains(detail, "could not read Username"):
		return apperr.Wrap(apperr.KindExternalAuth, "private repository or authentication required", err)
	case reRepoMissing.MatchString(lower):
		return apperr.Wrap(apperr.KindExternalNotFound, "repository not found, please check the URL", err)
	default:
		return apperr.Wrap(apperr.KindExternalGeneric, "git clone failed: "+detail, err)
	}
}
