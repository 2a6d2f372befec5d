package notifications

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Message }

// Title returns the notification title for the list.
func (i Item) Title() string { return i.Notification.Title }

// Description returns the notification message.
func (i Item) Description() string { return i.Notification.Message }

// Respondable reports whether the item is an invitation still awaiting
// an answer.
func (i Item) Respondable() bool {
	n := i.Notification
	return n.Kind == model.KindInvitationCreated &&
		n.Status() == model.InvitationPending &&
		n.Payload.String("token") != ""
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct {
	// now is overridable for deterministic rendering in tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.renderLine(it, index == m.Index()))
}

func (d ItemDelegate) renderLine(it Item, selected bool) string {
	n := it.Notification

	mark := " "
	if !n.Read {
		mark = theme.UnreadMarkStyle.Render("●")
	}

	kindBadge := theme.KindLabelStyle(string(n.Kind)).Render(kindLabel(n.Kind))

	statusBadge := ""
	if status := n.Status(); status != "" {
		statusBadge = " " + theme.StatusStyle(status).Render(status)
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.CreatedAt, now()))

	line := fmt.Sprintf("%s %s %s%s  %s", mark, kindBadge, n.Message, statusBadge, timeStr)

	if n.Read {
		line = theme.DimmedStyle.Render(line)
	}

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// kindLabel returns a short badge for the given kind.
func kindLabel(k model.Kind) string {
	switch k {
	case model.KindInvitationCreated:
		return "INV"
	case model.KindInvitationResponded:
		return "RSP"
	case model.KindMemberRemoved:
		return "TEAM"
	default:
		return "INFO"
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
