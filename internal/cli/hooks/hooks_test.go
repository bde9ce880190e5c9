package hooks

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AkaraChen/fama/pkg/fama"
)

type MockTUIProgram struct {
	mock.Mock
}

func (m *MockTUIProgram) Send(msg tea.Msg) {
	m.Called(msg)
}

func debugLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCLIHooks_OnFileDiscovered(t *testing.T) {
	testPath := "src/main.ts"

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", FileDiscoveredMsg{Path: testPath}).Once()

		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(debugLogger(logBuf), true, mockTUI, nil, false)
		require.NoError(t, hooks.OnFileDiscovered(testPath))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, logBuf.String())
	})

	t.Run("TUI Disabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(debugLogger(logBuf), false, mockTUI, nil, false)
		require.NoError(t, hooks.OnFileDiscovered(testPath))

		mockTUI.AssertNotCalled(t, "Send", mock.Anything)
		assert.Contains(t, logBuf.String(), `"msg":"File discovered"`)
		assert.Contains(t, logBuf.String(), `"path":"`+testPath+`"`)
		assert.Contains(t, logBuf.String(), `"component":"hooks"`)
	})
}

func TestCLIHooks_OnFileStatusUpdate(t *testing.T) {
	testPath := "src/style.css"
	testDuration := 50 * time.Millisecond

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", mock.MatchedBy(func(msg FileStatusUpdateMsg) bool {
			return msg.Path == testPath && msg.Status == fama.StatusChanged && msg.Duration == testDuration
		})).Once()

		debugOut := &bytes.Buffer{}
		hooks := NewCLIHooks(nil, true, mockTUI, debugOut, false)
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, fama.StatusChanged, "", testDuration))
		mockTUI.AssertExpectations(t)
		assert.Empty(t, debugOut.String(), "the TUI owns the terminal")
	})

	t.Run("Debug Lines", func(t *testing.T) {
		testCases := []struct {
			status  fama.Status
			message string
			want    string
		}{
			{fama.StatusProcessing, "", ""},
			{fama.StatusChanged, "", testPath + "\n"},
			{fama.StatusUnchanged, "", testPath + "\n"},
			{fama.StatusCached, "", testPath + "\n"},
			{fama.StatusFailed, "parse error", testPath + ": parse error\n"},
		}
		for _, tc := range testCases {
			t.Run(string(tc.status), func(t *testing.T) {
				debugOut := &bytes.Buffer{}
				hooks := NewCLIHooks(nil, false, nil, debugOut, false)
				require.NoError(t, hooks.OnFileStatusUpdate(testPath, tc.status, tc.message, testDuration))
				assert.Equal(t, tc.want, debugOut.String())
			})
		}
	})

	t.Run("Debug Lines Colored", func(t *testing.T) {
		debugOut := &bytes.Buffer{}
		hooks := NewCLIHooks(nil, false, nil, debugOut, true)
		require.NoError(t, hooks.OnFileStatusUpdate("a.js", fama.StatusChanged, "", 0))
		require.NoError(t, hooks.OnFileStatusUpdate("b.js", fama.StatusFailed, "boom", 0))
		assert.Contains(t, debugOut.String(), "\x1b[32ma.js")
		assert.Contains(t, debugOut.String(), "\x1b[31mb.js: boom")
	})

	t.Run("Failures Logged", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(debugLogger(logBuf), false, nil, nil, false)
		require.NoError(t, hooks.OnFileStatusUpdate(testPath, fama.StatusFailed, "Failure reason", testDuration))
		out := logBuf.String()
		assert.Contains(t, out, `"msg":"File processing failed"`)
		assert.Contains(t, out, `"error":"Failure reason"`)
		assert.Contains(t, out, `"status":"failed"`)
		assert.Contains(t, out, `"duration":`)
	})

	t.Run("Concurrent Writers", func(t *testing.T) {
		debugOut := &bytes.Buffer{}
		hooks := NewCLIHooks(nil, false, nil, debugOut, false)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = hooks.OnFileStatusUpdate("x.js", fama.StatusUnchanged, "", 0)
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, bytes.Count(debugOut.Bytes(), []byte("x.js\n")))
	})
}

func TestCLIHooks_OnRunComplete(t *testing.T) {
	report := fama.Report{Stats: fama.FormatStats{Formatted: 2, Unchanged: 1}}

	t.Run("TUI Enabled", func(t *testing.T) {
		mockTUI := new(MockTUIProgram)
		mockTUI.On("Send", RunCompleteMsg{Report: report}).Once()
		hooks := NewCLIHooks(nil, true, mockTUI, nil, false)
		require.NoError(t, hooks.OnRunComplete(report))
		mockTUI.AssertExpectations(t)
	})

	t.Run("TUI Disabled", func(t *testing.T) {
		logBuf := &bytes.Buffer{}
		hooks := NewCLIHooks(debugLogger(logBuf), false, nil, nil, false)
		require.NoError(t, hooks.OnRunComplete(report))
		assert.Contains(t, logBuf.String(), `"formatted":2`)
	})
}
