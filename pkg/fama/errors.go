package fama

import (
	"errors"

	"github.com/AkaraChen/fama/pkg/fama/cache"
	"github.com/AkaraChen/fama/pkg/fama/git"
)

// Errors returned by Discover, Engine.Run and the per-file pipeline. Library
// users can check against these using errors.Is; backend failures carry the
// kinds defined in the backend package instead.
var (
	// ErrUnsupportedExtension is returned by discovery for a literal file path
	// the classifier does not recognise. It is fatal to the run.
	ErrUnsupportedExtension = errors.New("unsupported file extension")

	// ErrInvalidPattern is returned by discovery for a malformed glob.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrReadFailed indicates a source file could not be read, for example
	// because it was deleted after discovery. The backend is not invoked.
	ErrReadFailed = errors.New("failed to read file")

	// ErrNotUTF8 indicates a file that is binary or not valid UTF-8.
	ErrNotUTF8 = errors.New("file is not UTF-8 text")

	// ErrWriteFailed indicates formatted output could not be written back.
	// The formatted content is lost; the original file is untouched.
	ErrWriteFailed = errors.New("formatted but not written")

	// ErrConfigValidation indicates Options failed validation. It is
	// returned before any file is touched.
	ErrConfigValidation = errors.New("invalid configuration options provided")

	// ErrGitOperation indicates the --staged or --changed filter could not
	// query git.
	ErrGitOperation = git.ErrGitOperation

	// ErrCacheLoad and ErrCachePersist are logged, never fatal.
	ErrCacheLoad    = cache.ErrCacheLoad
	ErrCachePersist = cache.ErrCachePersist
)
