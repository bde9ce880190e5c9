package backend

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Capability wraps exactly one of these
// so callers can classify failures with errors.Is.
var (
	// ErrNotSupported is returned by Registry.Resolve for tags with no capability.
	ErrNotSupported = errors.New("no formatter for language")

	// ErrParse indicates the backend rejected the source (syntax error).
	ErrParse = errors.New("backend reported a parse error")

	// ErrTransport indicates the backend could not be reached or misbehaved at
	// the boundary: spawn failure, module instantiation failure, missing
	// symbol, null result, unknown status code.
	ErrTransport = errors.New("backend transport failure")

	// ErrDecode indicates the backend returned bytes that are not valid UTF-8.
	ErrDecode = errors.New("backend returned invalid UTF-8")

	// ErrAmbiguous indicates a non-zero exit with no diagnostic output.
	ErrAmbiguous = errors.New("backend failed without diagnostics")

	// ErrUnsupportedDialect marks a lenient passthrough: the capability
	// tolerates the dialect but could not parse it, and returned the source
	// unchanged alongside this error.
	ErrUnsupportedDialect = errors.New("dialect not fully supported, source left unchanged")
)

// FormatError carries the backend name and failure kind for one file.
type FormatError struct {
	Backend string
	Kind    error
	Msg     string
	Err     error
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Backend == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Backend, msg)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *FormatError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Errorf builds a FormatError of the given kind for backend name.
func Errorf(name string, kind error, format string, args ...any) error {
	return &FormatError{Backend: name, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a FormatError of the given kind around cause.
func Wrap(name string, kind error, cause error, format string, args ...any) error {
	return &FormatError{Backend: name, Kind: kind, Msg: fmt.Sprintf(format, args...) + ": " + cause.Error(), Err: cause}
}

// IsPassthrough reports whether err marks a lenient passthrough.
func IsPassthrough(err error) bool {
	return errors.Is(err, ErrUnsupportedDialect)
}
