package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nhle/ggcraft/internal/metrics"
	"github.com/nhle/ggcraft/internal/model"
)

// Transport opens authenticated push sessions.
type Transport interface {
	Open(ctx context.Context, credential string) (Session, error)
}

// Session is one live transport connection.
type Session interface {
	// Subscribe joins a channel, authorizing it when private.
	Subscribe(ctx context.Context, channel string) (Channel, error)

	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}

	// Close terminates the session. It is safe to call more than once.
	Close() error
}

// Channel is a subscribed channel delivering named events. Handlers run
// sequentially in arrival order.
type Channel interface {
	Name() string
	Bind(event string, fn func(data []byte))
	BindGlobal(fn func(event string, data []byte))
	UnbindAll()
	Unsubscribe() error
}

// State is the lifecycle state of the user channel.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// subscription owns everything a live connection holds: the transport
// session, the subscribed channel and its handlers. It is released as a
// whole.
type subscription struct {
	subject string
	session Session
	channel Channel
	bound   int
}

// release unbinds every handler, leaves the channel and closes the session.
func (s *subscription) release() error {
	var errs []error
	if s.channel != nil {
		s.channel.UnbindAll()
		if err := s.channel.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", s.channel.Name(), err))
		}
	}
	if err := s.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing session: %w", err))
	}
	return errors.Join(errs...)
}

// Manager keeps at most one user channel subscription alive, bound to
// the registry through the event translators.
type Manager struct {
	mu        sync.Mutex
	transport Transport
	registry  *Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sub       *subscription
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics records channel activity.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a disconnected manager.
func NewManager(t Transport, r *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport: t,
		registry:  r,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect replaces any current subscription with one for identity. An
// identity without both a credential and a subject id is ignored.
func (m *Manager) Connect(ctx context.Context, identity model.Identity) error {
	if !identity.Usable() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	session, err := m.transport.Open(ctx, identity.Credential)
	if err != nil {
		m.metrics.ObserveConnect(err)
		return fmt.Errorf("opening channel transport: %w", err)
	}

	name := identity.UserChannel()
	channel, err := session.Subscribe(ctx, name)
	if err != nil {
		_ = session.Close()
		m.metrics.ObserveConnect(err)
		return fmt.Errorf("subscribing to %s: %w", name, err)
	}

	sub := &subscription{
		subject: identity.SubjectID,
		session: session,
		channel: channel,
	}
	for _, event := range model.EventNames {
		channel.Bind(string(event), func(data []byte) {
			m.ingest(event, data)
		})
		sub.bound++
	}
	channel.BindGlobal(m.fallback)
	sub.bound++

	m.sub = sub
	m.metrics.ObserveConnect(nil)
	m.logger.Info("notification channel connected",
		"channel", name, "handlers", sub.bound)
	return nil
}

// Disconnect releases the current subscription, if any.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked()
}

func (m *Manager) releaseLocked() error {
	if m.sub == nil {
		return nil
	}
	sub := m.sub
	m.sub = nil

	m.metrics.ObserveDisconnect()
	err := sub.release()
	if err != nil {
		m.logger.Warn("releasing notification channel", "subject", sub.subject, "error", err)
	} else {
		m.logger.Info("notification channel disconnected", "subject", sub.subject)
	}
	return err
}

// State reports whether a live subscription exists. A subscription whose
// session has dropped counts as disconnected.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub == nil {
		return Disconnected
	}
	select {
	case <-m.sub.session.Done():
		return Disconnected
	default:
		return Connected
	}
}

// Done returns a channel closed when the current session ends, or nil
// when there is no subscription.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sub == nil {
		return nil
	}
	return m.sub.session.Done()
}

// ingest runs one bound event through its translator into the registry.
func (m *Manager) ingest(event model.EventName, data []byte) {
	defer m.recoverHandler(string(event))
	m.metrics.ObserveEvent(string(event))

	ctx := context.Background()
	t := Translate(event, data)
	if t.Record != nil && m.registry.Add(ctx, *t.Record) {
		m.logger.Info("notification received",
			"kind", t.Record.Kind, "message", t.Record.Message)
	}
	if t.Patch != nil {
		n := m.registry.UpdateStatus(ctx, t.Patch.Token, t.Patch.Status)
		m.logger.Debug("status patch applied",
			"status", t.Patch.Status, "records", n)
	}
}

// fallback handles every event on the channel and patches status for
// events without a dedicated translator.
func (m *Manager) fallback(event string, data []byte) {
	defer m.recoverHandler(event)

	patch, ok := FallbackPatch(event, data)
	if !ok {
		return
	}
	m.metrics.ObserveEvent(event)
	n := m.registry.UpdateStatus(context.Background(), patch.Token, patch.Status)
	m.logger.Debug("fallback status patch applied",
		"event", event, "status", patch.Status, "records", n)
}

func (m *Manager) recoverHandler(event string) {
	if r := recover(); r != nil {
		m.logger.Error("notification handler panicked", "event", event, "panic", r)
	}
}
