package app

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ggcraft/internal/api"
	"github.com/nhle/ggcraft/internal/keys"
	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/notify"
	appsync "github.com/nhle/ggcraft/internal/sync"
	"github.com/nhle/ggcraft/internal/theme"
	"github.com/nhle/ggcraft/internal/ui"
	"github.com/nhle/ggcraft/internal/ui/command"
	helpview "github.com/nhle/ggcraft/internal/ui/help"
	"github.com/nhle/ggcraft/internal/ui/notifications"
	"github.com/nhle/ggcraft/internal/ui/signin"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
	ViewCommand
	ViewSignIn
)

// Authenticator is the sign-in surface the UI drives.
type Authenticator interface {
	Identity() model.Identity
	Login(ctx context.Context, email, password string) error
	SignIn(ctx context.Context, token string) error
	SignOut(ctx context.Context) error
}

// Channel is the supervised notification channel.
type Channel interface {
	Status() appsync.Status
	Reconnect()
	Stop()
	WaitForNextResult() tea.Cmd
}

// InvitationResponder answers team invitations on the backend.
type InvitationResponder interface {
	RespondInvitation(ctx context.Context, credential, token string, accept bool) error
}

// Deps bundles the services the root model talks to.
type Deps struct {
	Registry    *notify.Registry
	Auth        Authenticator
	Channel     Channel
	Invitations InvitationResponder
	Logger      *slog.Logger
}

// startupMsg is sent once on Init to decide the first view.
type startupMsg struct{}

// signInResultMsg reports the outcome of a sign-in attempt.
type signInResultMsg struct {
	err error
}

// signOutResultMsg reports the outcome of a sign-out.
type signOutResultMsg struct {
	err error
}

// respondResultMsg reports the outcome of answering an invitation.
type respondResultMsg struct {
	token  string
	status string
	err    error
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and access to the notification registry.
type Model struct {
	currentView   ViewState
	previousView  ViewState
	layout        ui.Layout
	keys          *keys.KeyMap
	registry      *notify.Registry
	auth          Authenticator
	channel       Channel
	invitations   InvitationResponder
	logger        *slog.Logger
	list          notifications.Model
	signinView    signin.Model
	helpView      helpview.Model
	commandView   command.Model
	status        appsync.Status
	ready         bool
	unreadCount   int
	statusMessage string
}

// New creates a new root application model.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := Model{
		currentView: ViewList,
		keys:        k,
		registry:    d.Registry,
		auth:        d.Auth,
		channel:     d.Channel,
		invitations: d.Invitations,
		logger:      logger,
		list:        notifications.New(k, 80, 24),
		signinView:  signin.New(80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		status:      d.Channel.Status(),
	}
	m.refresh()
	return m
}

// Init waits for channel updates and checks whether a sign-in is needed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startupMsg{} },
		m.channel.WaitForNextResult(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.list.SetSize(contentWidth, contentHeight)
		m.signinView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case startupMsg:
		if !m.auth.Identity().Usable() {
			return m, m.openSignIn("")
		}
		return m, nil

	case appsync.StatusMsg:
		m.status = msg.Status
		if msg.State == appsync.StateFailed && api.IsAuthError(msg.Err) {
			m.statusMessage = "Session expired, press s to sign in again"
		}
		return m, m.channel.WaitForNextResult()

	case appsync.NotificationsChangedMsg:
		cmd := m.refresh()
		return m, tea.Batch(cmd, m.channel.WaitForNextResult())

	case notifications.MarkReadMsg:
		r := m.registry
		return m, func() tea.Msg {
			r.MarkAsRead(context.Background(), msg.ID)
			return nil
		}

	case notifications.MarkAllReadMsg:
		return m, m.markAllRead()

	case notifications.ClearMsg:
		return m, m.clear()

	case notifications.RespondMsg:
		return m, m.respond(msg.Token, msg.Accept)

	case respondResultMsg:
		if msg.err != nil {
			m.logger.Warn("answering invitation", "error", msg.err)
			m.statusMessage = fmt.Sprintf("Could not answer invitation: %v", msg.err)
			if api.IsAuthError(msg.err) {
				return m, m.openSignIn("Your session has expired.")
			}
			return m, nil
		}
		m.statusMessage = "Invitation " + msg.status
		r := m.registry
		token, status := msg.token, msg.status
		return m, func() tea.Msg {
			r.UpdateStatus(context.Background(), token, status)
			return nil
		}

	case signin.SubmitMsg:
		return m, m.signIn(msg)

	case signin.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case signInResultMsg:
		if msg.err != nil {
			return m, m.openSignIn(signInError(msg.err))
		}
		m.currentView = ViewList
		m.statusMessage = "Signed in as " + displayName(m.auth.Identity())
		return m, nil

	case signOutResultMsg:
		if msg.err != nil {
			m.logger.Warn("signing out", "error", msg.err)
			m.statusMessage = fmt.Sprintf("Sign-out failed: %v", msg.err)
			return m, nil
		}
		m.statusMessage = "Signed out"
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		// Global keys that work regardless of current view
		switch msg.String() {
		case "ctrl+c":
			m.channel.Stop()
			return m, tea.Quit

		case "q":
			if m.currentView == ViewList {
				m.channel.Stop()
				return m, tea.Quit
			}

		case "esc":
			if m.currentView != ViewList {
				m.currentView = m.previousView
				return m, nil
			}

		case "?":
			// Do not intercept while a text field has focus
			if m.currentView == ViewSignIn || m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case ":":
			if m.currentView == ViewSignIn {
				break
			}
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case "r":
			if m.currentView == ViewList {
				m.statusMessage = ""
				return m, m.reconnect()
			}

		case "s":
			if m.currentView == ViewList {
				return m, m.openSignIn("")
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewSignIn:
		m.signinView, cmd = m.signinView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("GGCraft", m.unreadCount, m.channelStatus())
	content := m.renderContent()
	message := ""
	if m.currentView == ViewList {
		message = m.statusMessage
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints(), message)

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.list.View()
	case ViewSignIn:
		return m.signinView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// channelStatus renders the channel state for the header.
func (m Model) channelStatus() string {
	state := m.status.State.String()
	text := state
	if m.status.State == appsync.StateRetrying && m.status.Attempt > 0 {
		text = fmt.Sprintf("%s (%d)", state, m.status.Attempt)
	}
	if id := m.auth.Identity(); id.Usable() {
		text = displayName(id) + " · " + text
	}
	return theme.ChannelStateStyle(state).Render(text)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "tab complete | enter execute | esc back"
	case ViewSignIn:
		return "enter submit | esc cancel"
	default:
		return "q quit | ? help | : command | enter read | A read all | y/n answer | r reconnect | s sign in"
	}
}

// refresh reloads the list and unread count from the registry.
func (m *Model) refresh() tea.Cmd {
	m.unreadCount = m.registry.UnreadCount()
	return m.list.SetItems(m.registry.Items())
}

func (m *Model) openSignIn(errMsg string) tea.Cmd {
	if m.currentView != ViewSignIn {
		m.previousView = m.currentView
	}
	m.currentView = ViewSignIn
	return m.signinView.Start(errMsg)
}

func (m Model) signIn(msg signin.SubmitMsg) tea.Cmd {
	a := m.auth
	return func() tea.Msg {
		var err error
		if msg.Method == signin.MethodToken {
			err = a.SignIn(context.Background(), msg.Token)
		} else {
			err = a.Login(context.Background(), msg.Email, msg.Password)
		}
		return signInResultMsg{err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	a := m.auth
	return func() tea.Msg {
		return signOutResultMsg{err: a.SignOut(context.Background())}
	}
}

func (m Model) respond(token string, accept bool) tea.Cmd {
	inv := m.invitations
	credential := m.auth.Identity().Credential
	return func() tea.Msg {
		status := model.InvitationRejected
		if accept {
			status = model.InvitationAccepted
		}
		err := inv.RespondInvitation(context.Background(), credential, token, accept)
		return respondResultMsg{token: token, status: status, err: err}
	}
}

func (m Model) reconnect() tea.Cmd {
	ch := m.channel
	return func() tea.Msg {
		ch.Reconnect()
		return nil
	}
}

func (m Model) markAllRead() tea.Cmd {
	r := m.registry
	return func() tea.Msg {
		r.MarkAllAsRead(context.Background())
		return nil
	}
}

func (m Model) clear() tea.Cmd {
	r := m.registry
	return func() tea.Msg {
		r.Clear(context.Background())
		return nil
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "read all", "read":
		return m.markAllRead()
	case "clear":
		return m.clear()
	case "reconnect":
		m.statusMessage = ""
		return m.reconnect()
	case "signin", "login":
		return m.openSignIn("")
	case "signout", "logout":
		return m.signOut()
	case "quit", "q":
		m.channel.Stop()
		return tea.Quit
	default:
		m.statusMessage = fmt.Sprintf("Unknown command %q", cmd)
		return nil
	}
}

func displayName(id model.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return "user " + id.SubjectID
}

func signInError(err error) string {
	if api.IsAuthError(err) {
		return "Those credentials were not accepted."
	}
	return err.Error()
}
