package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps overlays such as help, the command palette and the
// sign-in form.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// DimmedStyle renders read notifications and secondary text.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadMarkStyle renders the unread dot.
var UnreadMarkStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorOrange)

// ErrorStyle renders transient error messages in the status bar.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed).
	Bold(true)

// StatusStyle returns a color-coded style for an invitation status.
func StatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "pending":
		return base.Foreground(ColorYellow)
	case "accepted":
		return base.Foreground(ColorGreen)
	case "rejected", "revoked", "expired":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// KindLabelStyle returns a color-coded style for a notification kind label.
func KindLabelStyle(kind string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch kind {
	case "invitation.created":
		return base.Foreground(ColorBlue)
	case "invitation.responded":
		return base.Foreground(ColorMagenta)
	case "team.member.removed":
		return base.Foreground(ColorOrange)
	default:
		return base.Foreground(ColorGray)
	}
}

// ChannelStateStyle returns a color-coded style for the channel state
// shown in the header.
func ChannelStateStyle(state string) lipgloss.Style {
	base := HeaderStyle

	switch state {
	case "online":
		return base.Foreground(ColorGreen)
	case "connecting", "retrying":
		return base.Foreground(ColorYellow)
	case "failed":
		return base.Foreground(ColorRed)
	default:
		return base
	}
}
