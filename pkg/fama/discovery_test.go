package fama_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AkaraChen/fama/internal/testutil"
	"github.com/AkaraChen/fama/pkg/fama"
)

func slashed(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.ToSlash(p)
	}
	return out
}

func TestDiscoverDefaultPattern(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		"a.js":              "",
		"src/b.ts":          "",
		"src/deep/c.css":    "",
		"notes.xyz":         "",
		"Makefile":          "",
		"docker/Dockerfile": "",
		".git/hooks/x.js":   "",
		".github/ci.yml":    "",
		".eslintrc.json":    "",
	})

	paths, err := fama.Discover(context.Background(), testOptions(root), "")
	require.NoError(t, err)
	assert.Equal(t, []string{".eslintrc.json", ".github/ci.yml", "a.js", "docker/Dockerfile", "src/b.ts", "src/deep/c.css"}, slashed(paths))
}

func TestDiscoverPatterns(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		"a.js":       "",
		"src/b.ts":   "",
		"src/x/c.ts": "",
		"src/x/d.js": "",
		"other/e.ts": "",
	})

	testCases := []struct {
		name    string
		pattern string
		want    []string
	}{
		{"recursive glob", "src/**/*.ts", []string{"src/b.ts", "src/x/c.ts"}},
		{"single level", "*.js", []string{"a.js"}},
		{"directory", "src", []string{"src/b.ts", "src/x/c.ts", "src/x/d.js"}},
		{"literal file", "src/x/d.js", []string{"src/x/d.js"}},
		{"alternation", "{other,src/x}/*.ts", []string{"other/e.ts", "src/x/c.ts"}},
		{"no match", "*.go", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			paths, err := fama.Discover(context.Background(), testOptions(root), filepath.FromSlash(tc.pattern))
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, paths)
				return
			}
			assert.Equal(t, tc.want, slashed(paths))
		})
	}
}

func TestDiscoverUnsupportedLiteral(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{"notes.xyz": "", "LICENSE": ""})

	_, err := fama.Discover(context.Background(), testOptions(root), "notes.xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, fama.ErrUnsupportedExtension)
	assert.Equal(t, "unsupported file extension '.xyz': notes.xyz", err.Error())

	_, err = fama.Discover(context.Background(), testOptions(root), "LICENSE")
	assert.ErrorIs(t, err, fama.ErrUnsupportedExtension)
	assert.Contains(t, err.Error(), "'(none)'")
}

func TestDiscoverInvalidPattern(t *testing.T) {
	_, err := fama.Discover(context.Background(), testOptions(t.TempDir()), "src/[a-")
	require.Error(t, err)
	assert.ErrorIs(t, err, fama.ErrInvalidPattern)
	assert.Contains(t, err.Error(), "src/[a-")
}

func TestDiscoverHonorsIgnoreFiles(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		".gitignore":        "build/\n*.gen.js\n",
		fama.IgnoreFileName: "fixtures/\n",
		".git/info/exclude": "local.js\n",
		"a.js":              "",
		"a.gen.js":          "",
		"local.js":          "",
		"styles.min.css":    "",
		"build/out.js":      "",
		"fixtures/f.js":     "",
		"sub/.gitignore":    "!keep.gen.js\nsecret.ts\n",
		"sub/keep.gen.js":   "",
		"sub/drop.gen.js":   "",
		"sub/secret.ts":     "",
		"sub/b.ts":          "",
		"other/secret.ts":   "",
	})
	opts := testOptions(root)
	opts.IgnorePatterns = []string{"*.min.css"}

	paths, err := fama.Discover(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "other/secret.ts", "sub/b.ts", "sub/keep.gen.js"}, slashed(paths))
}

func TestDiscoverNestedBaseSeesParentIgnores(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		".gitignore":   "*.gen.ts\n",
		"src/a.ts":     "",
		"src/b.gen.ts": "",
	})
	paths, err := fama.Discover(context.Background(), testOptions(root), "src/**/*.ts")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.ts"}, slashed(paths))
}

func TestDiscoverVendored(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		"src/a.js":                  "",
		"node_modules/pkg/index.js": "",
	})
	opts := testOptions(root)

	paths, err := fama.Discover(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	opts.SkipVendored = true
	paths, err = fama.Discover(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.js"}, slashed(paths))
}

func TestDiscoverShebang(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{
		"bin/tool":   "#!/bin/sh\necho hi\n",
		"bin/script": "#!/usr/bin/env node\nconsole.log(1)\n",
		"bin/data":   "no shebang\n",
	})
	opts := testOptions(root)

	paths, err := fama.Discover(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Empty(t, paths)

	opts.SniffShebang = true
	opts.ShebangOverrides = map[string]string{"node": "javascript"}
	paths, err = fama.Discover(context.Background(), opts, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/script", "bin/tool"}, slashed(paths))
}

func TestDiscoverPatternsMergesAndReportsUnmatched(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{"a.js": "", "b.js": ""})
	hooks := testutil.NewRecordingHooks()
	opts := testOptions(root)
	opts.EventHooks = hooks

	res, err := fama.DiscoverPatterns(context.Background(), opts, []string{"b.js", "*.js", "*.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "b.js"}, res.Paths)
	assert.Equal(t, []string{"*.go"}, res.Unmatched)
	assert.Equal(t, []string{"a.js", "b.js"}, hooks.Discovered)
}

func TestDiscoverAbsolutePattern(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	testutil.CreateTree(t, outside, map[string]string{".gitignore": "skip.js\n", "a.js": "", "skip.js": ""})

	paths, err := fama.Discover(context.Background(), testOptions(root), outside)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(outside, "a.js")}, paths)
}

func TestDiscoverMixedSpellingsYieldOnePath(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{"a.js": "", "src/b.js": ""})

	testCases := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"relative then absolute", []string{"a.js", filepath.Join(root, "a.js")}, []string{"a.js"}},
		{"absolute then relative", []string{filepath.Join(root, "a.js"), "a.js"}, []string{filepath.Join(root, "a.js")}},
		{"dot prefix", []string{"./a.js", "a.js"}, []string{"a.js"}},
		{"glob and absolute directory", []string{"**/*.js", filepath.Join(root, "src")}, []string{"a.js", "src/b.js"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			paths, err := fama.DiscoverAll(context.Background(), testOptions(root), tc.patterns)
			require.NoError(t, err)
			assert.Equal(t, slashed(tc.want), slashed(paths))
		})
	}
}

func TestDiscoverGitFilter(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTree(t, root, map[string]string{"a.js": "", "sub/b.js": "", "c.js": ""})
	gitClient := new(testutil.MockGitClient)
	gitClient.On("RepositoryRoot", mock.Anything, root).Return(root, nil)
	gitClient.On("ChangedFiles", mock.Anything, root, true).Return([]string{"a.js", "sub/b.js", "deleted.js"}, nil)

	opts := testOptions(root)
	opts.GitFilter = fama.GitFilterStaged
	opts.GitClient = gitClient

	paths, err := fama.DiscoverAll(context.Background(), opts, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", "sub/b.js"}, slashed(paths))
	gitClient.AssertExpectations(t)
}

func TestDiscoverGitFilterErrors(t *testing.T) {
	root := t.TempDir()
	testutil.CreateDummyFile(t, filepath.Join(root, "a.js"), "")
	opts := testOptions(root)
	opts.GitFilter = fama.GitFilterChanged

	_, err := fama.DiscoverAll(context.Background(), opts, nil)
	assert.ErrorIs(t, err, fama.ErrConfigValidation)

	gitClient := new(testutil.MockGitClient)
	gitClient.On("RepositoryRoot", mock.Anything, root).Return("", errors.Join(fama.ErrGitOperation, errors.New("not a git repository")))
	opts.GitClient = gitClient
	_, err = fama.DiscoverAll(context.Background(), opts, nil)
	assert.ErrorIs(t, err, fama.ErrGitOperation)
	gitClient.AssertNotCalled(t, "ChangedFiles", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscoverDeterministic(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, dir := range []string{"z", "a", "m/n", "m/a", "b"} {
		for _, name := range []string{"9.js", "1.ts", "x.css", "k.json"} {
			files[dir+"/"+name] = ""
		}
	}
	testutil.CreateTree(t, root, files)

	patterns := []string{"**/*.ts", "m/**", "**/*.js", "a/1.ts"}
	opts := testOptions(root)
	first, err := fama.DiscoverAll(context.Background(), opts, patterns)
	require.NoError(t, err)
	require.Len(t, first, 14)

	for _, concurrency := range []int{1, 4, 16} {
		opts.Concurrency = concurrency
		again, err := fama.DiscoverAll(context.Background(), opts, patterns)
		require.NoError(t, err)
		if diff := cmp.Diff(slashed(first), slashed(again)); diff != "" {
			t.Errorf("discovery order changed (-first +again):\n%s", diff)
		}
	}

	reversed := []string{"a/1.ts", "**/*.js", "m/**", "**/*.ts"}
	other, err := fama.DiscoverAll(context.Background(), opts, reversed)
	require.NoError(t, err)
	if diff := cmp.Diff(slashed(first), slashed(other)); diff != "" {
		t.Errorf("pattern order changed the result (-first +other):\n%s", diff)
	}
}
