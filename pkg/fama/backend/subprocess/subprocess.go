// Package subprocess adapts external formatter executables to the
// backend.Capability contract. Each FormatOne call runs one process that reads
// the source on stdin and writes the formatted source on stdout.
package subprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/AkaraChen/fama/pkg/fama/backend"
)

const (
	// maxLogOutputBytes limits how much of stdout is echoed into logs when a
	// batch response cannot be decoded.
	maxLogOutputBytes = 1024
	// maxReadBytes caps stdout and stderr capture.
	maxReadBytes = 10 * 1024 * 1024
)

var errOutputLimit = fmt.Errorf("stdout exceeded limit of %d bytes", maxReadBytes)

// Config describes one external formatter.
type Config struct {
	Name string `mapstructure:"name"`
	// Command and its arguments, executed without a shell.
	Command []string `mapstructure:"command"`
	// PathArg, when set, is appended to Command followed by the file path
	// (for example "--stdin-filepath").
	PathArg string `mapstructure:"pathArg"`
	// BatchCommand speaks the JSON batch protocol. Optional.
	BatchCommand []string      `mapstructure:"batchCommand"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Backend runs an external formatter. It is safe for concurrent use.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Backend.
func New(cfg Config, loggerHandler slog.Handler) (*Backend, error) {
	if cfg.Name == "" {
		return nil, errors.New("subprocess backend requires a name")
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("subprocess backend '%s': command cannot be empty", cfg.Name)
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "subprocess"), slog.String("backend", cfg.Name))
	return &Backend{cfg: cfg, logger: logger}, nil
}

func (b *Backend) Name() string { return b.cfg.Name }

// UsesPath reports whether the file path is passed to the command.
func (b *Backend) UsesPath() bool { return b.cfg.PathArg != "" }

// FormatOne runs the command once with source on stdin.
func (b *Backend) FormatOne(ctx context.Context, source []byte, path string) ([]byte, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	argv := append([]string(nil), b.cfg.Command...)
	if b.cfg.PathArg != "" {
		argv = append(argv, b.cfg.PathArg, path)
	}
	res, err := b.exec(ctx, argv, source, path)
	if err != nil {
		return nil, err
	}
	if res.waitErr != nil {
		if res.stderr != "" {
			return nil, backend.Errorf(b.Name(), backend.ErrParse, "%s", res.stderr)
		}
		return nil, backend.Errorf(b.Name(), backend.ErrAmbiguous, "exited with code %d and no diagnostics", res.exitCode)
	}
	if err := b.checkOutput(source, res.stdout); err != nil {
		return nil, err
	}
	return res.stdout, nil
}

// checkOutput applies the rules every successful answer must pass, whether
// it came from a single call or from one element of a batch.
func (b *Backend) checkOutput(source, out []byte) error {
	if len(out) == 0 && len(bytes.TrimSpace(source)) > 0 {
		return backend.Errorf(b.Name(), backend.ErrAmbiguous, "empty output for non-empty input")
	}
	return backend.CheckUTF8(b.Name(), out)
}

// FormatMany sends all requests to BatchCommand in one process. Without a
// batch command it formats the requests one by one.
func (b *Backend) FormatMany(ctx context.Context, reqs []backend.Request) []backend.Result {
	if len(b.cfg.BatchCommand) == 0 {
		return backend.FormatSequential(ctx, b, reqs)
	}
	if len(reqs) == 0 {
		return nil
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	failAll := func(err error) []backend.Result {
		results := make([]backend.Result, len(reqs))
		for i := range results {
			results[i] = backend.Result{Err: err}
		}
		return results
	}

	input := BatchInput{SchemaVersion: SchemaVersion, Files: make([]BatchFile, len(reqs))}
	for i, req := range reqs {
		input.Files[i] = BatchFile{Path: req.Path, Source: string(req.Source)}
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return failAll(backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to marshal batch input"))
	}

	res, err := b.exec(ctx, b.cfg.BatchCommand, payload, fmt.Sprintf("<batch of %d>", len(reqs)))
	if err != nil {
		return failAll(err)
	}
	if res.waitErr != nil {
		return failAll(backend.Errorf(b.Name(), backend.ErrTransport, "batch command exited with code %d: %s", res.exitCode, res.stderr))
	}

	prefix := string(res.stdout)
	if len(prefix) > maxLogOutputBytes {
		prefix = prefix[:maxLogOutputBytes] + "... (truncated)"
	}
	if err := validateBatchOutput(res.stdout); err != nil {
		b.logger.Error("Batch output rejected", slog.Any("error", err), slog.String("stdout_prefix", prefix))
		return failAll(backend.Wrap(b.Name(), backend.ErrTransport, err, "invalid batch output"))
	}
	var output BatchOutput
	if err := json.Unmarshal(res.stdout, &output); err != nil {
		b.logger.Error("Failed to unmarshal batch output", slog.Any("error", err), slog.String("stdout_prefix", prefix))
		return failAll(backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to unmarshal batch output"))
	}
	if output.SchemaVersion != SchemaVersion {
		b.logger.Error("Batch schema version mismatch",
			slog.String("expected_schema", SchemaVersion), slog.String("backend_schema", output.SchemaVersion))
		return failAll(backend.Errorf(b.Name(), backend.ErrTransport,
			"incompatible schema version '%s', expected '%s'", output.SchemaVersion, SchemaVersion))
	}
	if len(output.Results) != len(reqs) {
		return failAll(backend.Errorf(b.Name(), backend.ErrTransport,
			"batch returned %d results for %d files", len(output.Results), len(reqs)))
	}

	results := make([]backend.Result, len(reqs))
	for i, r := range output.Results {
		if r.Error != "" {
			results[i] = backend.Result{Err: backend.Errorf(b.Name(), backend.ErrParse, "%s", r.Error)}
			continue
		}
		out := []byte(r.Output)
		if err := b.checkOutput(reqs[i].Source, out); err != nil {
			results[i] = backend.Result{Err: err}
			continue
		}
		results[i] = backend.Result{Output: out}
	}
	return results
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, b.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

type execResult struct {
	stdout   []byte
	stderr   string
	exitCode int
	waitErr  error
}

// exec runs argv with input on stdin. The returned error is a transport
// failure; a process that ran but exited non-zero is reported through
// execResult.waitErr.
func (b *Backend) exec(ctx context.Context, argv []string, input []byte, path string) (execResult, error) {
	logArgs := []any{slog.String("path", path)}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to create stdin pipe")
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to create stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		b.logger.Error("Failed to start formatter process",
			append(logArgs, slog.String("command", strings.Join(argv, " ")), slog.Any("error", err))...)
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, err, "failed to start '%s'", argv[0])
	}
	b.logger.Debug("Formatter process started", logArgs...)

	var wg sync.WaitGroup
	var writeErr, readErr error
	var stdoutData, stderrData []byte

	wg.Add(3)
	go func() {
		defer wg.Done()
		defer func() {
			if closeErr := stdinPipe.Close(); closeErr != nil && !errors.Is(closeErr, syscall.EPIPE) && !errors.Is(closeErr, os.ErrClosed) {
				b.logger.Warn("Error closing formatter stdin", append(logArgs, slog.Any("error", closeErr))...)
			}
		}()
		if _, writeErr = stdinPipe.Write(input); writeErr != nil {
			b.logger.Warn("Error writing to formatter stdin", append(logArgs, slog.Any("error", writeErr))...)
		}
	}()
	go func() {
		defer wg.Done()
		stdoutData, readErr = readLimited(stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		stderrData, _ = readLimited(stderrPipe)
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	stderr := strings.TrimSpace(string(stderrData))
	if stderr != "" {
		logArgs = append(logArgs, slog.String("stderr", stderr))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		b.logger.Error("Formatter cancelled or timed out", append(logArgs, slog.Any("error", ctxErr))...)
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, ctxErr, "cancelled or timed out")
	}
	if writeErr != nil && !errors.Is(writeErr, syscall.EPIPE) && !errors.Is(writeErr, os.ErrClosed) {
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, writeErr, "failed writing input")
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		b.logger.Debug("Formatter exited non-zero", append(logArgs, slog.Int("exitCode", exitCode))...)
		return execResult{stderr: stderr, exitCode: exitCode, waitErr: waitErr}, nil
	}
	if readErr != nil {
		return execResult{}, backend.Wrap(b.Name(), backend.ErrTransport, readErr, "failed reading output")
	}
	if stderr != "" {
		b.logger.Debug("Formatter stderr output (on success)", logArgs...)
	}
	return execResult{stdout: stdoutData, stderr: stderr}, nil
}

// readLimited reads r up to maxReadBytes and drains the rest so the process
// can exit.
func readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxReadBytes))
	if err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
		return buf.Bytes(), err
	}
	if n >= maxReadBytes {
		if extra, _ := io.Copy(io.Discard, r); extra > 0 {
			return buf.Bytes(), errOutputLimit
		}
	}
	return buf.Bytes(), nil
}
