package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	libgit "github.com/AkaraChen/fama/pkg/fama/git"
)

// setupRepo creates a repository with one commit, then leaves a.js modified
// in the worktree, b.js modified and staged, c.js added and staged and d.js
// untracked.
func setupRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	write := func(name, content string) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("a.js", "a;\n")
	write("b.js", "b;\n")
	write("src/keep.js", "k;\n")
	for _, p := range []string{"a.js", "b.js", "src/keep.js"} {
		_, err := wt.Add(p)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	write("a.js", "a  ;\n")
	write("b.js", "b  ;\n")
	write("c.js", "c;\n")
	write("d.js", "d;\n")
	_, err = wt.Add("b.js")
	require.NoError(t, err)
	_, err = wt.Add("c.js")
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func clients(t *testing.T) map[string]libgit.GitClient {
	t.Helper()
	out := map[string]libgit.GitClient{"go-git": NewGoGitClient(nil)}
	if execClient := NewExecGitClient(nil); execClient.IsGitAvailable() {
		out["exec"] = execClient
	}
	return out
}

func TestChangedFiles(t *testing.T) {
	root := setupRepo(t)
	for name, client := range clients(t) {
		t.Run(name, func(t *testing.T) {
			staged, err := client.ChangedFiles(context.Background(), root, true)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"b.js", "c.js"}, staged)

			changed, err := client.ChangedFiles(context.Background(), root, false)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a.js"}, changed)
		})
	}
}

func TestRepositoryRoot(t *testing.T) {
	root := setupRepo(t)
	for name, client := range clients(t) {
		t.Run(name, func(t *testing.T) {
			got, err := client.RepositoryRoot(context.Background(), filepath.Join(root, "src"))
			require.NoError(t, err)
			resolved, err := filepath.EvalSymlinks(got)
			require.NoError(t, err)
			assert.Equal(t, root, resolved)
		})
	}
}

func TestRepositoryRootOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	for name, client := range clients(t) {
		t.Run(name, func(t *testing.T) {
			_, err := client.RepositoryRoot(context.Background(), dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, libgit.ErrGitOperation)
		})
	}
}

func TestExecGitClientMissingDirectory(t *testing.T) {
	c := NewExecGitClient(nil)
	_, err := c.RepositoryRoot(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, libgit.ErrGitOperation)
}

func TestNewClientPrefersExec(t *testing.T) {
	c := NewClient(nil)
	if _, err := exec.LookPath("git"); err == nil {
		assert.IsType(t, &ExecGitClient{}, c)
	} else {
		assert.IsType(t, &GoGitClient{}, c)
	}
}
