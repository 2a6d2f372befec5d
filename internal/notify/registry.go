package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/ggcraft/internal/metrics"
	"github.com/nhle/ggcraft/internal/model"
)

// Registry is the bounded, newest-first notification list. Every
// mutation is written through to the Persister before it returns.
//
// Records are replaced rather than modified, so the slices returned by
// Items share payload maps with the registry; callers must not modify them.
type Registry struct {
	mu      sync.Mutex
	items   []model.Notification
	persist Persister
	newID   IDGenerator
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	subs    []chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRegistryMetrics records registry activity.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithRegistryIDGenerator overrides the id generator.
func WithRegistryIDGenerator(gen IDGenerator) RegistryOption {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithRegistryClock overrides the clock used to stamp ingested records.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a registry hydrated from p.
func NewRegistry(ctx context.Context, p Persister, opts ...RegistryOption) *Registry {
	r := &Registry{
		persist: p,
		newID:   NewID,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.items = r.hydrate(p.Load(ctx))
	r.metrics.SetUnread(r.unreadLocked())
	return r
}

// hydrate enforces the bound and id uniqueness on a loaded list.
func (r *Registry) hydrate(loaded []model.Notification) []model.Notification {
	if len(loaded) > model.MaxItems {
		loaded = loaded[:model.MaxItems]
	}

	seen := make(map[string]bool, len(loaded))
	items := make([]model.Notification, 0, len(loaded))
	for _, n := range loaded {
		if n.ID == "" || seen[n.ID] {
			n.ID = r.newID()
		}
		seen[n.ID] = true
		items = append(items, n)
	}
	return items
}

// Add stores n at the head of the list unless a record with the same
// kind and payload id already exists. It fills a missing id, kind and
// creation time, and reports whether n was stored.
func (r *Registry) Add(ctx context.Context, n model.Notification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.Kind == "" {
		n.Kind = model.KindInfo
	}

	if key := n.Payload.String("id"); key != "" {
		for _, existing := range r.items {
			if existing.Kind == n.Kind && existing.Payload.String("id") == key {
				r.metrics.ObserveDeduplicated()
				r.logger.Debug("duplicate notification suppressed",
					"kind", n.Kind, "payload_id", key)
				return false
			}
		}
	}

	if n.ID == "" || r.indexLocked(n.ID) >= 0 {
		n.ID = r.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	n.Payload = n.Payload.Clone()

	size := len(r.items) + 1
	if size > model.MaxItems {
		size = model.MaxItems
	}
	items := make([]model.Notification, 0, size)
	items = append(items, n)
	items = append(items, r.items[:size-1]...)
	r.items = items

	r.metrics.ObserveIngested(string(n.Kind))
	r.commitLocked(ctx)
	return true
}

// UpdateStatus sets payload.status on every patchable record whose
// payload token or id equals token. It persists only when something
// matched and returns the number of records changed.
func (r *Registry) UpdateStatus(ctx context.Context, token, status string) int {
	if token == "" {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	items := make([]model.Notification, len(r.items))
	for i, n := range r.items {
		if n.Kind.Patchable() &&
			(n.Payload.String("token") == token || n.Payload.String("id") == token) {
			payload := n.Payload.Clone()
			if payload == nil {
				payload = model.Payload{}
			}
			payload["status"] = status
			n.Payload = payload
			changed++
		}
		items[i] = n
	}

	if changed == 0 {
		return 0
	}

	r.items = items
	r.metrics.ObservePatched(changed)
	r.commitLocked(ctx)
	return changed
}

// MarkAsRead marks the record with the given id as read. The list is
// persisted even when nothing changed.
func (r *Registry) MarkAsRead(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Notification, len(r.items))
	for i, n := range r.items {
		if n.ID == id {
			n.Read = true
		}
		items[i] = n
	}
	r.items = items
	r.commitLocked(ctx)
}

// MarkAllAsRead marks every record as read.
func (r *Registry) MarkAllAsRead(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]model.Notification, len(r.items))
	for i, n := range r.items {
		n.Read = true
		items[i] = n
	}
	r.items = items
	r.commitLocked(ctx)
}

// Clear removes every record.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = []model.Notification{}
	r.commitLocked(ctx)
}

// UnreadCount returns the number of unread records.
func (r *Registry) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unreadLocked()
}

// Items returns a copy of the list, newest first.
func (r *Registry) Items() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of stored records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Get returns the record with the given id.
func (r *Registry) Get(id string) (model.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(id); i >= 0 {
		return r.items[i], true
	}
	return model.Notification{}, false
}

// Subscribe returns a channel that receives a value after mutations.
// Signals are coalesced: a slow reader sees at most one pending signal.
func (r *Registry) Subscribe() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan struct{}, 1)
	r.subs = append(r.subs, ch)
	return ch
}

func (r *Registry) indexLocked(id string) int {
	for i, n := range r.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) unreadLocked() int {
	count := 0
	for _, n := range r.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// commitLocked persists the list and signals subscribers.
func (r *Registry) commitLocked(ctx context.Context) {
	r.persist.Save(ctx, r.items)
	r.metrics.SetUnread(r.unreadLocked())

	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
