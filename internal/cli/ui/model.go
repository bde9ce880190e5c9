// Package ui is the interactive progress view shown while fama formats files
// on a terminal.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AkaraChen/fama/internal/cli/hooks"
	"github.com/AkaraChen/fama/pkg/fama"
)

const (
	listHeightMargin = 4

	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseFormatting   = "Formatting..."
	phaseChecking     = "Checking..."
	phaseComplete     = "Complete"
)

// Model is the bubbletea model for a run. Messages arrive through
// tea.Program.Send, so Update runs on the program goroutine only.
type Model struct {
	list    list.Model
	spinner spinner.Model
	width   int
	height  int

	initialized bool
	quitting    bool
	check       bool
	version     string

	fileItems    []listItem
	itemMap      map[string]int
	summary      Summary
	phaseMessage string
	// updatePending coalesces list refreshes between ticks.
	updatePending bool
}

type listItem struct {
	path     string
	status   fama.Status
	message  string
	duration time.Duration
}

// Summary holds the counters shown in the footer.
type Summary struct {
	TotalFiles     int
	ChangedCount   int
	UnchangedCount int
	CachedCount    int
	ErrorCount     int
	StartTime      time.Time
}

// NewModel creates the initial model. check switches the wording to
// "would reformat".
func NewModel(version string, check bool) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.
		Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.
		Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return &Model{
		list:         l,
		spinner:      s,
		check:        check,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
	}
}

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update applies one message.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: fama.StatusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.FileStatusUpdateMsg:
		idx, ok := m.itemMap[msg.Path]
		if !ok {
			m.addItem(listItem{path: msg.Path, status: fama.StatusPending})
			idx = m.itemMap[msg.Path]
		}
		item := &m.fileItems[idx]
		wasFinal := isFinalStatus(item.status)
		if isFinalStatus(msg.Status) && !wasFinal {
			m.summary.count(msg.Status, 1)
		} else if !isFinalStatus(msg.Status) && wasFinal {
			m.summary.count(item.status, -1)
		}
		item.status = msg.Status
		item.message = msg.Message
		item.duration = msg.Duration
		cmds = append(cmds, m.scheduleListUpdate())

		if msg.Status == fama.StatusProcessing && m.phaseMessage != phaseComplete {
			m.phaseMessage = phaseFormatting
			if m.check {
				m.phaseMessage = phaseChecking
			}
		}

	case hooks.RunCompleteMsg:
		m.phaseMessage = phaseComplete
		m.summary.ChangedCount = msg.Report.Stats.Formatted
		m.summary.UnchangedCount = msg.Report.Stats.Unchanged
		m.summary.CachedCount = msg.Report.Summary.CachedCount
		m.summary.ErrorCount = len(msg.Report.Stats.Errors)
		m.summary.TotalFiles = max(m.summary.TotalFiles, msg.Report.Summary.TotalFiles)

	case UpdateListMsg:
		m.updatePending = false
		items := make([]list.Item, len(m.fileItems))
		for i, item := range m.fileItems {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) addItem(item listItem) {
	m.fileItems = append(m.fileItems, item)
	m.itemMap[item.path] = len(m.fileItems) - 1
	m.summary.TotalFiles++
}

// View renders the model.
func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := fmt.Sprintf("fama v%s", m.version)
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseComplete && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(contentWidth(HeaderStyle, m.width), headerLeft, headerRight))

	changedLabel := "Formatted"
	if m.check {
		changedLabel = "Would reformat"
	}
	footerLeft := fmt.Sprintf("%s: %d | Unchanged: %d (Cached: %d) | Failed: %d | Total: %d | Elapsed: %s",
		changedLabel,
		m.summary.ChangedCount,
		m.summary.UnchangedCount,
		m.summary.CachedCount,
		m.summary.ErrorCount,
		m.summary.TotalFiles,
		time.Since(m.summary.StartTime).Round(time.Millisecond),
	)
	footer := FooterStyle.Width(m.width).Render(spread(contentWidth(FooterStyle, m.width), footerLeft, "q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), footer)
}

// contentWidth is the room left inside style's padding and border on a line
// of the given width.
func contentWidth(style lipgloss.Style, width int) int {
	return max(width-style.GetHorizontalFrameSize(), 0)
}

// spread places left and right at the edges of a line of the given width.
func spread(width int, left, right string) string {
	center := ""
	if gap := width - lipgloss.Width(left) - lipgloss.Width(right); gap > 0 {
		center = lipgloss.PlaceHorizontal(gap, lipgloss.Center, " ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, center, right)
}

func isFinalStatus(status fama.Status) bool {
	switch status {
	case fama.StatusChanged, fama.StatusUnchanged, fama.StatusFailed, fama.StatusCached:
		return true
	}
	return false
}

// count adds delta to the counter for a final status. Cached files are also
// unchanged.
func (s *Summary) count(status fama.Status, delta int) {
	switch status {
	case fama.StatusChanged:
		s.ChangedCount += delta
	case fama.StatusUnchanged:
		s.UnchangedCount += delta
	case fama.StatusCached:
		s.UnchangedCount += delta
		s.CachedCount += delta
	case fama.StatusFailed:
		s.ErrorCount += delta
	}
}

// FilterValue implements list.Item.
func (i listItem) FilterValue() string { return i.path }

// Title implements list.Item.
func (i listItem) Title() string { return i.path }

// Description implements list.DefaultItem.
func (i listItem) Description() string {
	var style lipgloss.Style
	var icon string
	switch i.status {
	case fama.StatusChanged:
		style, icon = StatusStyleChanged, "✓"
	case fama.StatusUnchanged:
		style, icon = StatusStyleUnchanged, "="
	case fama.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
	case fama.StatusCached:
		style, icon = StatusStyleCached, "C"
	case fama.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	default:
		style, icon = StatusStylePending, " "
	}

	details := ""
	switch i.status {
	case fama.StatusFailed:
		details = i.message
	case fama.StatusChanged, fama.StatusUnchanged:
		details = formatDuration(i.duration)
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// UpdateListMsg asks the model to push its items into the list component.
type UpdateListMsg struct{}

const listUpdateInterval = 50 * time.Millisecond

// scheduleListUpdate returns a tick that refreshes the list, or nil when one
// is already pending.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.updatePending {
		return nil
	}
	m.updatePending = true
	return tea.Tick(listUpdateInterval, func(time.Time) tea.Msg { return UpdateListMsg{} })
}
