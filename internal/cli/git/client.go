// Package git provides the GitClient implementations used by the --staged
// and --changed filters.
package git

import (
	"log/slog"

	libgit "github.com/AkaraChen/fama/pkg/fama/git"
)

var (
	_ libgit.GitClient = (*ExecGitClient)(nil)
	_ libgit.GitClient = (*GoGitClient)(nil)
)

// NewClient returns an ExecGitClient when git is on PATH and a GoGitClient
// otherwise.
func NewClient(loggerHandler slog.Handler) libgit.GitClient {
	if c := NewExecGitClient(loggerHandler); c.IsGitAvailable() {
		return c
	}
	return NewGoGitClient(loggerHandler)
}
