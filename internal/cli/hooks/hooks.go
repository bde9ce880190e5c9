// Package hooks bridges engine events to the terminal: the interactive TUI,
// per-file debug lines, or plain logging.
package hooks

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/AkaraChen/fama/pkg/fama"
)

// FileDiscoveredMsg signals that discovery selected a file.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a file's processing status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   fama.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg signals the end of the run.
type RunCompleteMsg struct{ Report fama.Report }

// TUIProgram is the part of tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

var _ TUIProgram = (*tea.Program)(nil)

// NoOpTUIProgram discards every message.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// CLIHooks implements fama.Hooks for the command line.
type CLIHooks struct {
	logger     *slog.Logger
	tuiEnabled bool
	tuiProgram TUIProgram

	mu       sync.Mutex
	debugOut io.Writer
	green    *color.Color
	red      *color.Color
}

// NewCLIHooks creates hooks that forward to tuiProg when tuiEnabled is set.
// A non-nil debugOut receives one line per finished file.
func NewCLIHooks(logger *slog.Logger, tuiEnabled bool, tuiProg TUIProgram, debugOut io.Writer, useColor bool) fama.Hooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	if useColor {
		green.EnableColor()
		red.EnableColor()
	} else {
		green.DisableColor()
		red.DisableColor()
	}
	return &CLIHooks{
		logger:     logger.With(slog.String("component", "hooks")),
		tuiEnabled: tuiEnabled,
		tuiProgram: tuiProg,
		debugOut:   debugOut,
		green:      green,
		red:        red,
	}
}

// OnFileDiscovered implements fama.Hooks.
func (h *CLIHooks) OnFileDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{Path: path})
		return nil
	}
	h.logger.Debug("File discovered", slog.String("path", path))
	return nil
}

// OnFileStatusUpdate implements fama.Hooks. It is called from worker
// goroutines.
func (h *CLIHooks) OnFileStatusUpdate(path string, status fama.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	attrs := []any{slog.String("path", path), slog.String("status", string(status))}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if status == fama.StatusFailed {
		h.logger.Debug("File processing failed", append(attrs, slog.String("error", message))...)
	} else {
		h.logger.Debug("File status updated", attrs...)
	}

	if h.debugOut == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	switch status {
	case fama.StatusChanged:
		_, err = h.green.Fprintf(h.debugOut, "%s\n", path)
	case fama.StatusUnchanged, fama.StatusCached:
		_, err = fmt.Fprintf(h.debugOut, "%s\n", path)
	case fama.StatusFailed:
		_, err = h.red.Fprintf(h.debugOut, "%s: %s\n", path, message)
	}
	return err
}

// OnRunComplete implements fama.Hooks.
func (h *CLIHooks) OnRunComplete(report fama.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	h.logger.Debug("Run complete",
		slog.Int("formatted", report.Stats.Formatted),
		slog.Int("unchanged", report.Stats.Unchanged),
		slog.Int("errors", len(report.Stats.Errors)))
	return nil
}
