package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/ggcraft/internal/api"
	"github.com/nhle/ggcraft/internal/model"
)

// ChannelState is the supervisor's view of the notification channel.
type ChannelState int

const (
	StateOffline ChannelState = iota
	StateConnecting
	StateOnline
	StateRetrying
	StateFailed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	}
	return "offline"
}

// Status is a snapshot of the channel state.
type Status struct {
	State   ChannelState
	Attempt int
	Err     error
	Since   time.Time
}

// StatusMsg is a tea.Msg sent whenever the channel state changes.
type StatusMsg struct {
	Status
}

// NotificationsChangedMsg is a tea.Msg sent after the registry changed.
type NotificationsChangedMsg struct{}

// Connector opens and closes the notification channel.
type Connector interface {
	Connect(ctx context.Context, identity model.Identity) error
	Disconnect() error
	Done() <-chan struct{}
}

// defaultStableAfter is how long a session must stay up before a later
// drop starts a fresh retry budget.
const defaultStableAfter = 10 * time.Second

var errConnectionLost = errors.New("connection lost")

// Supervisor keeps the notification channel in line with the signed-in
// identity and re-establishes it with exponential backoff after it drops.
type Supervisor struct {
	conn   Connector
	policy model.ReconnectConfig
	logger *slog.Logger

	// stableAfter is the uptime after which the retry budget resets.
	stableAfter time.Duration

	// ctl serializes restarts and Stop.
	ctl gosync.Mutex

	mu       gosync.Mutex
	status   Status
	identity model.Identity
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopped  bool

	resultCh chan tea.Msg
	stopCh   chan struct{}
}

// New creates an idle supervisor for conn.
func New(conn Connector, policy model.ReconnectConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		conn:        conn,
		policy:      policy,
		logger:      logger,
		stableAfter: defaultStableAfter,
		status:      Status{State: StateOffline, Since: time.Now()},
		resultCh:    make(chan tea.Msg, 16),
		stopCh:      make(chan struct{}),
	}
}

// SetIdentity connects the channel for identity, replacing any previous
// connection. An unusable identity disconnects.
func (s *Supervisor) SetIdentity(identity model.Identity) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.identity = identity
	s.mu.Unlock()

	s.restart()
}

// Reconnect drops and re-establishes the channel for the current identity.
func (s *Supervisor) Reconnect() {
	s.restart()
}

// Stop disconnects and halts the supervisor. It is safe to call more
// than once.
func (s *Supervisor) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.halt()
	if err := s.conn.Disconnect(); err != nil {
		s.logger.Warn("disconnecting on stop", "error", err)
	}
	close(s.stopCh)
}

// Status returns the current channel status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Watch forwards change signals as NotificationsChangedMsg until the
// supervisor stops.
func (s *Supervisor) Watch(changes <-chan struct{}) {
	go func() {
		for {
			select {
			case <-s.stopCh:
				return
			case <-changes:
				s.sendResult(NotificationsChangedMsg{})
			}
		}
	}()
}

// Messages returns the channel carrying StatusMsg and
// NotificationsChangedMsg values.
func (s *Supervisor) Messages() <-chan tea.Msg {
	return s.resultCh
}

// WaitForNextResult returns a tea.Cmd that waits for the next message.
// It should be called again after each message to keep listening.
func (s *Supervisor) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.resultCh:
			return msg
		case <-s.stopCh:
			return nil
		}
	}
}

// restart stops the running loop, if any, and starts a new one for the
// current identity.
func (s *Supervisor) restart() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if !s.identity.Usable() {
		if err := s.conn.Disconnect(); err != nil {
			s.logger.Warn("disconnecting", "error", err)
		}
		s.setStatusLocked(StateOffline, 0, nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done

	go func(identity model.Identity) {
		defer close(done)
		s.run(ctx, identity)
	}(s.identity)
}

// halt cancels the running loop and waits for it to exit.
func (s *Supervisor) halt() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// run connects and then watches the session, reconnecting each time it
// drops, until ctx is cancelled or the retry budget runs out. One backoff
// spans the whole loop so a session that keeps dropping right after it
// comes up is throttled and counted like a failed connect. The backoff
// resets only once a session has stayed up for stableAfter.
func (s *Supervisor) run(ctx context.Context, identity model.Identity) {
	b := s.newBackOff(ctx)
	attempt := 0
	s.setStatus(StateConnecting, 0, nil)

	for {
		attempt++
		err := s.conn.Connect(ctx, identity)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			s.setStatus(StateOnline, 0, nil)
			up := time.Now()

			select {
			case <-ctx.Done():
				return
			case <-s.conn.Done():
			}

			uptime := time.Since(up)
			s.logger.Warn("notification channel dropped", "uptime", uptime)
			if !s.policy.Enabled {
				s.setStatus(StateOffline, 0, errConnectionLost)
				return
			}
			if uptime >= s.stableAfter {
				b.Reset()
				attempt = 0
			}
			err = errConnectionLost
		} else if api.IsAuthError(err) {
			s.logger.Error("notification channel rejected", "error", err)
			s.setStatus(StateFailed, attempt, err)
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.logger.Error("notification channel unavailable", "attempts", attempt, "error", err)
			s.setStatus(StateFailed, attempt, err)
			return
		}

		s.logger.Warn("connecting notification channel",
			"attempt", attempt, "retry_in", wait, "error", err)
		s.setStatus(StateRetrying, attempt, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Supervisor) newBackOff(ctx context.Context) backoff.BackOff {
	if !s.policy.Enabled {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.policy.InitialInterval()
	exp.MaxInterval = s.policy.MaxInterval()
	exp.MaxElapsedTime = 0
	exp.Reset()

	var b backoff.BackOff = exp
	if s.policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(s.policy.MaxAttempts))
	}
	return backoff.WithContext(b, ctx)
}

func (s *Supervisor) setStatus(state ChannelState, attempt int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(state, attempt, err)
}

func (s *Supervisor) setStatusLocked(state ChannelState, attempt int, err error) {
	s.status = Status{State: state, Attempt: attempt, Err: err, Since: time.Now()}
	s.sendResult(StatusMsg{Status: s.status})
}

// sendResult sends msg without blocking. Messages are dropped when the
// consumer falls behind.
func (s *Supervisor) sendResult(msg tea.Msg) {
	select {
	case s.resultCh <- msg:
	default:
	}
}
