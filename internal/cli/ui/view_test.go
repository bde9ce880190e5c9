package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AkaraChen/fama/pkg/fama"
)

func newViewModel(width, height int, phase string, items []listItem, summary Summary, check bool) *Model {
	m := NewModel("1.2.3", check)
	m.width = width
	m.height = height
	m.initialized = true
	m.phaseMessage = phase
	m.summary = summary
	if m.summary.StartTime.IsZero() {
		m.summary.StartTime = time.Now().Add(-10 * time.Second)
	}

	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
		m.itemMap[item.path] = i
	}
	m.fileItems = items
	m.list.SetSize(width, max(height-listHeightMargin, 1))
	m.list.SetItems(listItems)
	return m
}

func TestView_Initializing(t *testing.T) {
	assert.Equal(t, phaseInitializing, NewModel("1.2.3", false).View())
}

func TestView_Quitting(t *testing.T) {
	m := newViewModel(80, 25, phaseComplete, nil, Summary{}, false)
	m.quitting = true
	assert.Equal(t, "Exiting...\n", m.View())
}

func TestView_BasicLayout(t *testing.T) {
	items := []listItem{
		{path: "src/app.ts", status: fama.StatusChanged, duration: 50 * time.Millisecond},
		{path: "styles/site.css", status: fama.StatusProcessing},
	}
	summary := Summary{TotalFiles: 3, ChangedCount: 1}
	m := newViewModel(160, 12, phaseFormatting, items, summary, false)
	view := m.View()

	assert.Contains(t, view, "fama v1.2.3")
	assert.Contains(t, view, phaseFormatting)
	assert.Contains(t, view, m.spinner.View())
	assert.Contains(t, view, "src/app.ts")
	assert.Contains(t, view, "styles/site.css")
	assert.Contains(t, view, "[✓]")
	assert.Contains(t, view, "[…]")
	assert.Contains(t, view, "50ms")
	assert.Contains(t, view, "Formatted: 1")
	assert.Contains(t, view, "Unchanged: 0 (Cached: 0)")
	assert.Contains(t, view, "Failed: 0")
	assert.Contains(t, view, "Total: 3")
	assert.Contains(t, view, "Elapsed:")
	assert.Contains(t, view, "q: quit")

	lines := strings.Split(strings.TrimSpace(view), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "fama v1.2.3")
	assert.Contains(t, lines[0], phaseFormatting, "header fits on one line")
	assert.Contains(t, lines[len(lines)-1], "Formatted:")
	assert.Contains(t, lines[len(lines)-1], "q: quit", "footer fits on one line")
	for _, line := range lines {
		assert.LessOrEqual(t, lipgloss.Width(line), 160)
	}
}

func TestView_CheckMode(t *testing.T) {
	m := newViewModel(160, 10, phaseComplete, nil, Summary{ChangedCount: 2, ErrorCount: 1}, true)
	view := m.View()
	assert.Contains(t, view, "Would reformat: 2")
	assert.Contains(t, view, "Failed: 1")
	assert.NotContains(t, view, m.spinner.View(), "no spinner once complete")
}

func TestView_EmptyList(t *testing.T) {
	m := newViewModel(160, 10, phaseScanning, nil, Summary{}, false)
	view := m.View()
	assert.Contains(t, view, "fama v1.2.3")
	assert.Contains(t, view, "Total: 0")
}

func TestContentWidth(t *testing.T) {
	assert.Equal(t, 158, contentWidth(HeaderStyle, 160))
	assert.Equal(t, 158, contentWidth(FooterStyle, 160))
	assert.Equal(t, 0, contentWidth(HeaderStyle, 1))
}

func TestSpread(t *testing.T) {
	line := spread(20, "left", "right")
	assert.True(t, strings.HasPrefix(line, "left"))
	assert.True(t, strings.HasSuffix(line, "right"))
	assert.Equal(t, "leftright", spread(3, "left", "right"), "no padding when there is no room")
}
