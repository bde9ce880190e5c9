//go:build !(darwin || linux || freebsd)

package native

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/AkaraChen/fama/pkg/fama/style"
)

// New reports that native libraries cannot be loaded on this platform.
func New(cfg Config, _ style.FormatConfig, _ slog.Handler) (*Backend, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("native backend '%s': loading libraries is not supported on %s", cfg.Name, runtime.GOOS)
}
