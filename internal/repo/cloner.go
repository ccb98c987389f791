package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/MohamedBiize/DocAI/internal/loader"
)

var ErrInvalidURL = errors.New("invalid repository url")

// Cloner materializes a remote repository as a shallow checkout.
type Cloner struct {
	git     string
	baseDir string
	runner  loader.CommandRunner
}

// NewCloner clones into temporary directories under baseDir, or the system
// temp dir when baseDir is empty.
func NewCloner(baseDir string, runner loader.CommandRunner) *Cloner {
	if runner == nil {
		runner = loader.ExecRunner{}
	}
	return &Cloner{git: "git", baseDir: baseDir, runner: runner}
}

// Clone checks out branch of repoURL and returns the checkout directory and a
// cleanup func that removes it.
func (c *Cloner) Clone(ctx context.Context, repoURL, branch string) (string, func(), error) {
	if err := ValidateURL(repoURL); err != nil {
		return "", nil, err
	}
	if branch == "" {
		branch = "main"
	}

	if c.baseDir != "" {
		if err := os.MkdirAll(c.baseDir, 0o750); err != nil {
			return "", nil, err
		}
	}
	dir, err := os.MkdirTemp(c.baseDir, "clone-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("failed to remove checkout", "dir", dir, "error", err)
		}
	}

	slog.InfoContext(ctx, "cloning repository", "repo_url", repoURL, "branch", branch)
	if _, err := c.runner.Run(ctx, c.git, "clone", "--depth", "1", "--branch", branch, "--", repoURL, dir); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("clone %s@%s: %w", repoURL, branch, err)
	}
	return dir, cleanup, nil
}

// ValidateURL accepts http(s) and ssh style repository URLs.
func ValidateURL(repoURL string) error {
	s := strings.TrimSpace(repoURL)
	if s == "" || strings.HasPrefix(s, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}
	if strings.HasPrefix(s, "git@") && strings.Contains(s, ":") {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
		return nil
	}
	return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
}
