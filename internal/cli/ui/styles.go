package ui

import "github.com/charmbracelet/lipgloss"

const (
	ColorHeaderFg = lipgloss.Color("252")
	ColorHeaderBg = lipgloss.Color("62")

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg     = lipgloss.Color("250")
	ColorNormalDescFg = lipgloss.Color("244")

	ColorSelectedFg     = lipgloss.Color("255")
	ColorSelectedBg     = lipgloss.Color("56")
	ColorSelectedDescFg = lipgloss.Color("248")

	ColorStatusChanged    = lipgloss.Color("40")
	ColorStatusUnchanged  = lipgloss.Color("250")
	ColorStatusFailed     = lipgloss.Color("196")
	ColorStatusCached     = lipgloss.Color("39")
	ColorStatusPending    = lipgloss.Color("244")
	ColorStatusProcessing = lipgloss.Color("205")
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	StatusStyleChanged    = lipgloss.NewStyle().Foreground(ColorStatusChanged)
	StatusStyleUnchanged  = lipgloss.NewStyle().Foreground(ColorStatusUnchanged)
	StatusStyleFailed     = lipgloss.NewStyle().Foreground(ColorStatusFailed)
	StatusStyleCached     = lipgloss.NewStyle().Foreground(ColorStatusCached)
	StatusStylePending    = lipgloss.NewStyle().Foreground(ColorStatusPending)
	StatusStyleProcessing = lipgloss.NewStyle().Foreground(ColorStatusProcessing)
)
