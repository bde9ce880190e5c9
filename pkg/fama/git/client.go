package git

import (
	"context"
	"errors"
	"fmt"
)

// ErrGitOperation indicates a failure talking to git: the path is not inside a
// repository, the git binary is missing, or the repository could not be read.
// Implementations wrap their underlying error with it.
var ErrGitOperation = errors.New("git operation failed")

// GitClient answers the two questions the --staged and --changed filters ask.
//
// Implementations may shell out to git or read the repository directly. They
// must be safe to call from a single goroutine before the run starts; the
// engine never calls them concurrently.
type GitClient interface {
	// RepositoryRoot returns the top-level directory of the repository that
	// contains dir, or an error wrapping ErrGitOperation if there is none.
	RepositoryRoot(ctx context.Context, dir string) (string, error)

	// ChangedFiles lists paths, relative to root and slash separated, that
	// were added, copied or modified. With staged set only the index is
	// compared against HEAD; otherwise the worktree is compared against the
	// index. Deleted files are never listed.
	ChangedFiles(ctx context.Context, root string, staged bool) ([]string, error)
}

// Errorf returns a formatted error that wraps ErrGitOperation.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrGitOperation}, args...)...)
}
