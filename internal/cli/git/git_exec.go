package git

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	libgit "github.com/AkaraChen/fama/pkg/fama/git"
)

// commandTimeout bounds a single git invocation.
const commandTimeout = 60 * time.Second

// ExecGitClient implements GitClient by running the git binary.
type ExecGitClient struct {
	logger *slog.Logger
	binary string
}

// NewExecGitClient creates an ExecGitClient using git from PATH.
func NewExecGitClient(loggerHandler slog.Handler) *ExecGitClient {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitClient"), slog.String("backend", "exec"))
	return &ExecGitClient{logger: logger, binary: "git"}
}

// IsGitAvailable reports whether the git command is on PATH.
func (c *ExecGitClient) IsGitAvailable() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

func (c *ExecGitClient) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", libgit.Errorf("command 'git %s' in %s: %w", strings.Join(args, " "), dir, ctxErr)
		}
		c.logger.Debug("git command failed", slog.String("dir", dir), slog.Any("args", args), slog.String("stderr", stderrStr))
		return "", libgit.Errorf("command 'git %s' failed in %s: %v: %s", strings.Join(args, " "), dir, err, stderrStr)
	}
	return stdout.String(), nil
}

// RepositoryRoot runs "git rev-parse --show-toplevel" in dir.
func (c *ExecGitClient) RepositoryRoot(ctx context.Context, dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", libgit.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", libgit.Errorf("%s is not a directory", dir)
	}
	out, err := c.run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	root := filepath.Clean(strings.TrimSpace(out))
	c.logger.Debug("Resolved repository root", slog.String("dir", dir), slog.String("root", root))
	return root, nil
}

// ChangedFiles runs "git diff --name-only --diff-filter=ACM", adding
// --cached when staged is set.
func (c *ExecGitClient) ChangedFiles(ctx context.Context, root string, staged bool) ([]string, error) {
	args := []string{"-c", "core.quotepath=off", "diff", "--name-only", "--diff-filter=ACM"}
	if staged {
		args = append(args, "--cached")
	}
	out, err := c.run(ctx, root, args...)
	if err != nil {
		return nil, err
	}

	var files []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		files = append(files, filepath.ToSlash(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, libgit.Errorf("failed to parse git diff output: %w", err)
	}
	c.logger.Debug("Listed changed files", slog.String("root", root), slog.Bool("staged", staged), slog.Int("count", len(files)))
	return files, nil
}
