package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/theme"
)

// Layout frames the active view between a one-line header and a
// one-line status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left for the active view.
func (l Layout) ContentHeight() int {
	return max(l.Height-2, 0)
}

// RenderHeader renders the title, an unread badge when unread > 0, and
// the already-styled channel status flush right.
func (l Layout) RenderHeader(title string, unread int, channel string) string {
	left := theme.HeaderStyle.Render(title)
	if unread > 0 {
		badge := theme.HeaderStyle.
			Foreground(theme.ColorYellow).
			PaddingLeft(0).
			Render(fmt.Sprintf("[%d new]", unread))
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, badge)
	}
	return l.spread(theme.HeaderStyle, left, channel)
}

// RenderStatusBar renders key hints on the left and message, if any, on
// the right.
func (l Layout) RenderStatusBar(hints, message string) string {
	left := theme.StatusBarStyle.Render(hints)
	right := ""
	if message != "" {
		right = theme.StatusBarStyle.Bold(true).Render(message)
	}
	return l.spread(theme.StatusBarStyle, left, right)
}

// spread pads the gap between left and right with bar's background so
// the bar spans the full width.
func (l Layout) spread(bar lipgloss.Style, left, right string) string {
	gap := max(l.Width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(bar.GetBackground()).
		Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
