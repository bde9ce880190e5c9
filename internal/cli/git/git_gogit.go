package git

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"

	libgit "github.com/AkaraChen/fama/pkg/fama/git"
)

// GoGitClient implements GitClient by reading the repository with go-git.
// It needs no git binary.
type GoGitClient struct {
	logger *slog.Logger
}

// NewGoGitClient creates a GoGitClient.
func NewGoGitClient(loggerHandler slog.Handler) *GoGitClient {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "go-git"))
	return &GoGitClient{logger: logger}
}

func (c *GoGitClient) open(dir string) (*git.Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, libgit.Errorf("failed to get absolute path for '%s': %w", dir, err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, libgit.Errorf("repository not found at or above path '%s': %w", abs, err)
		}
		return nil, libgit.Errorf("failed to open repository at '%s': %w", abs, err)
	}
	return repo, nil
}

// RepositoryRoot returns the worktree root of the repository containing dir.
func (c *GoGitClient) RepositoryRoot(_ context.Context, dir string) (string, error) {
	repo, err := c.open(dir)
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", libgit.Errorf("failed to get worktree for '%s': %w", dir, err)
	}
	return filepath.Clean(wt.Filesystem.Root()), nil
}

// ChangedFiles reads the worktree status. Staged lists index entries added,
// copied or modified relative to HEAD; otherwise worktree modifications not
// yet staged are listed.
func (c *GoGitClient) ChangedFiles(ctx context.Context, root string, staged bool) ([]string, error) {
	repo, err := c.open(root)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, libgit.Errorf("failed to get worktree for '%s': %w", root, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, libgit.Errorf("failed to read status of '%s': %w", root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, libgit.Errorf("status of '%s': %w", root, err)
	}

	var files []string
	for path, st := range status {
		keep := st.Worktree == git.Modified
		if staged {
			keep = st.Staging == git.Added || st.Staging == git.Copied || st.Staging == git.Modified
		}
		if keep {
			files = append(files, filepath.ToSlash(path))
		}
	}
	sort.Strings(files)
	c.logger.Debug("Listed changed files", slog.String("root", root), slog.Bool("staged", staged), slog.Int("count", len(files)))
	return files, nil
}
