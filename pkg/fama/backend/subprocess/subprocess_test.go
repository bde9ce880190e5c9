package subprocess

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaraChen/fama/pkg/fama/backend"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "ext"
	}
	b, err := New(cfg, nil)
	require.NoError(t, err)
	return b
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Name: "x"}, nil)
	assert.Error(t, err)
	_, err = New(Config{Command: []string{"cat"}}, nil)
	assert.Error(t, err)
}

func TestFormatOneOutcomes(t *testing.T) {
	requireShell(t)

	testCases := []struct {
		name    string
		script  string
		input   string
		want    string
		wantErr error
		errText string
	}{
		{name: "success", script: "tr a-z A-Z", input: "abc\n", want: "ABC\n"},
		{name: "parse error with stderr", script: "cat >/dev/null; echo 'line 1: oops' >&2; exit 1", input: "x", wantErr: backend.ErrParse, errText: "line 1: oops"},
		{name: "non-zero exit without diagnostics", script: "cat >/dev/null; exit 3", input: "x", wantErr: backend.ErrAmbiguous, errText: "code 3"},
		{name: "invalid utf-8 output", script: `cat >/dev/null; printf '\377\376'`, input: "x", wantErr: backend.ErrDecode},
		{name: "empty output for non-empty input", script: "cat >/dev/null", input: "x", wantErr: backend.ErrAmbiguous},
		{name: "formatter ignores stdin", script: "printf done", input: "x", want: "done"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBackend(t, Config{Command: []string{"sh", "-c", tc.script}})
			out, err := b.FormatOne(context.Background(), []byte(tc.input), "a.txt")
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), tc.errText)
				assert.Nil(t, out)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}
}

func TestFormatOneSpawnFailure(t *testing.T) {
	b := newBackend(t, Config{Command: []string{"/nonexistent/formatter-binary"}})
	_, err := b.FormatOne(context.Background(), []byte("x"), "a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestFormatOnePassesPath(t *testing.T) {
	requireShell(t)
	b := newBackend(t, Config{
		Command: []string{"sh", "-c", `cat >/dev/null; printf '%s %s' "$0" "$1"`},
		PathArg: "--stdin-filepath",
	})
	out, err := b.FormatOne(context.Background(), []byte("x"), "src/a.kt")
	require.NoError(t, err)
	assert.Equal(t, "--stdin-filepath src/a.kt", string(out))
}

func TestFormatOneTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	b := newBackend(t, Config{Command: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := b.FormatOne(context.Background(), []byte("x"), "a.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestFormatManyFallsBackToSequential(t *testing.T) {
	requireShell(t)
	b := newBackend(t, Config{Command: []string{"sh", "-c", "tr a-z A-Z"}})
	reqs := []backend.Request{{Source: []byte("ab"), Path: "a"}, {Source: []byte("cd"), Path: "b"}}

	results := b.FormatMany(context.Background(), reqs)
	require.Len(t, results, 2)
	for i, req := range reqs {
		one, err := b.FormatOne(context.Background(), req.Source, req.Path)
		require.NoError(t, err)
		require.NoError(t, results[i].Err)
		assert.Equal(t, string(one), string(results[i].Output))
	}
}

func TestFormatManyBatchProtocol(t *testing.T) {
	requireShell(t)
	reqs := []backend.Request{{Source: []byte("a"), Path: "a.rb"}, {Source: []byte("b"), Path: "b.rb"}}

	testCases := []struct {
		name     string
		response string
		check    func(t *testing.T, results []backend.Result)
	}{
		{
			name:     "per element results",
			response: `{"$schemaVersion":"1.0","results":[{"output":"A\n"},{"error":"syntax error"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				require.NoError(t, results[0].Err)
				assert.Equal(t, "A\n", string(results[0].Output))
				assert.ErrorIs(t, results[1].Err, backend.ErrParse)
				assert.Contains(t, results[1].Err.Error(), "syntax error")
			},
		},
		{
			name:     "schema mismatch",
			response: `{"$schemaVersion":"0.9","results":[{"output":"A"},{"output":"B"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
					assert.Contains(t, r.Err.Error(), "0.9")
				}
			},
		},
		{
			name:     "count mismatch",
			response: `{"$schemaVersion":"1.0","results":[{"output":"A"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
				}
			},
		},
		{
			name:     "output of wrong type",
			response: `{"$schemaVersion":"1.0","results":[{"output":1},{"output":"B"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
					assert.Contains(t, r.Err.Error(), "violates protocol")
				}
			},
		},
		{
			name:     "output and error together",
			response: `{"$schemaVersion":"1.0","results":[{"output":"A","error":"x"},{"output":"B"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
				}
			},
		},
		{
			name:     "missing results",
			response: `{"$schemaVersion":"1.0"}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
					assert.Contains(t, r.Err.Error(), "results")
				}
			},
		},
		{
			name:     "result without output or error",
			response: `{"$schemaVersion":"1.0","results":[{},{"output":"B"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
					assert.Nil(t, r.Output)
				}
			},
		},
		{
			name:     "empty output for non-empty source",
			response: `{"$schemaVersion":"1.0","results":[{"output":""},{"output":"B"}]}`,
			check: func(t *testing.T, results []backend.Result) {
				assert.ErrorIs(t, results[0].Err, backend.ErrAmbiguous)
				assert.Nil(t, results[0].Output)
				require.NoError(t, results[1].Err)
				assert.Equal(t, "B", string(results[1].Output))
			},
		},
		{
			name:     "not json",
			response: `garbage`,
			check: func(t *testing.T, results []backend.Result) {
				for _, r := range results {
					assert.ErrorIs(t, r.Err, backend.ErrTransport)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBackend(t, Config{
				Command:      []string{"cat"},
				BatchCommand: []string{"sh", "-c", "cat >/dev/null; printf '%s' '" + tc.response + "'"},
			})
			results := b.FormatMany(context.Background(), reqs)
			require.Len(t, results, len(reqs))
			tc.check(t, results)
		})
	}
}

func TestFormatManyBatchReceivesAllFiles(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("grep"); err != nil {
		t.Skip("grep not available")
	}
	// the response only succeeds when both paths were sent
	script := `in=$(cat); echo "$in" | grep -q '"path":"one.rb"' && echo "$in" | grep -q '"path":"two.rb"' && ` +
		`printf '{"$schemaVersion":"1.0","results":[{"output":"1"},{"output":"2"}]}'`
	b := newBackend(t, Config{Command: []string{"cat"}, BatchCommand: []string{"sh", "-c", script}})

	results := b.FormatMany(context.Background(), []backend.Request{
		{Source: []byte("x"), Path: "one.rb"},
		{Source: []byte("y"), Path: "two.rb"},
	})
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "1", string(results[0].Output))
	assert.Equal(t, "2", string(results[1].Output))
}

func TestFormatManyEmptyElementMatchesFormatOne(t *testing.T) {
	requireShell(t)
	b := newBackend(t, Config{
		Command:      []string{"sh", "-c", "cat >/dev/null"},
		BatchCommand: []string{"sh", "-c", `cat >/dev/null; printf '%s' '{"$schemaVersion":"1.0","results":[{"output":""}]}'`},
	})
	req := backend.Request{Source: []byte("fn main() {}\n"), Path: "a.rs"}

	_, oneErr := b.FormatOne(context.Background(), req.Source, req.Path)
	require.Error(t, oneErr)
	assert.ErrorIs(t, oneErr, backend.ErrAmbiguous)

	results := b.FormatMany(context.Background(), []backend.Request{req})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, backend.ErrAmbiguous)
	assert.Equal(t, oneErr.Error(), results[0].Err.Error())
}

func TestUsesPath(t *testing.T) {
	assert.False(t, newBackend(t, Config{Command: []string{"cat"}}).UsesPath())
	assert.True(t, newBackend(t, Config{Command: []string{"cat"}, PathArg: "--stdin-filepath"}).UsesPath())
}
