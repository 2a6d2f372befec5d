package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/store"
)

// StorageKey is the single durable key holding the cached notifications.
const StorageKey = "ggcraft.notifications"

// defaultTitle replaces a missing title on load.
const defaultTitle = "Notification"

// saveTimeout bounds a single write to the durable store.
const saveTimeout = 5 * time.Second

// Persister loads and saves the bounded notification list.
type Persister interface {
	Load(ctx context.Context) []model.Notification
	Save(ctx context.Context, items []model.Notification)
}

// Persistence stores the notification list as a JSON array under one key
// of a store.KV. It never returns errors: failures are logged and a load
// failure yields an empty list.
type Persistence struct {
	kv     store.KV
	key    string
	newID  IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

// PersistenceOption configures a Persistence.
type PersistenceOption func(*Persistence)

// WithStorageKey overrides StorageKey.
func WithStorageKey(key string) PersistenceOption {
	return func(p *Persistence) {
		p.key = key
	}
}

// WithPersistenceLogger sets the logger used for load/save failures.
func WithPersistenceLogger(logger *slog.Logger) PersistenceOption {
	return func(p *Persistence) {
		p.logger = logger
	}
}

// WithIDGenerator overrides the generator used for records stored without an id.
func WithIDGenerator(gen IDGenerator) PersistenceOption {
	return func(p *Persistence) {
		p.newID = gen
	}
}

// WithPersistenceClock overrides the clock used for records stored without a timestamp.
func WithPersistenceClock(now func() time.Time) PersistenceOption {
	return func(p *Persistence) {
		p.now = now
	}
}

// NewPersistence creates a Persistence writing to kv.
func NewPersistence(kv store.KV, opts ...PersistenceOption) *Persistence {
	p := &Persistence{
		kv:     kv,
		key:    StorageKey,
		newID:  NewID,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load reads and normalizes the stored list. A missing key, a value that
// is not a JSON array, or a decode failure all yield an empty list.
// Elements that are not JSON objects are skipped.
func (p *Persistence) Load(ctx context.Context) []model.Notification {
	raw, err := p.kv.Get(ctx, p.key)
	if errors.Is(err, store.ErrNotFound) {
		return []model.Notification{}
	}
	if err != nil {
		p.logger.Warn("loading notification cache", "error", err)
		return []model.Notification{}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		p.logger.Warn("notification cache is not a JSON array", "error", err)
		return []model.Notification{}
	}

	items := make([]model.Notification, 0, len(elems))
	for _, elem := range elems {
		fields, err := decodeObject(elem)
		if err != nil {
			p.logger.Debug("skipping malformed cached notification", "error", err)
			continue
		}
		items = append(items, p.normalize(fields))
	}
	return items
}

// Save writes the first model.MaxItems records.
func (p *Persistence) Save(ctx context.Context, items []model.Notification) {
	if len(items) > model.MaxItems {
		items = items[:model.MaxItems]
	}
	if items == nil {
		items = []model.Notification{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		p.logger.Error("encoding notification cache", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	if err := p.kv.Set(ctx, p.key, data); err != nil {
		p.logger.Error("saving notification cache", "error", err)
	}
}

// normalize builds a record from a loosely typed stored object, filling
// defaults for anything missing or of the wrong type.
func (p *Persistence) normalize(fields model.Payload) model.Notification {
	n := model.Notification{
		ID:      fields.String("id"),
		Title:   fields.String("title"),
		Message: fields.String("message"),
		Payload: fields.Object("payload"),
		Read:    truthy(fields["read"]),
	}

	kind := fields.String("kind")
	if kind == "" {
		// Caches written by the web client store the kind as "type".
		kind = fields.String("type")
	}
	n.Kind = model.ParseKind(kind)

	if n.ID == "" {
		n.ID = p.newID()
	}
	if n.Title == "" {
		n.Title = defaultTitle
	}

	n.CreatedAt = p.now()
	if ts := fields.String("createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			n.CreatedAt = t
		}
	}

	return n
}

// decodeObject decodes a JSON object keeping numbers as json.Number so
// numeric ids survive a round trip unchanged.
func decodeObject(data []byte) (model.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decoding object: null")
	}
	return model.Payload(fields), nil
}

// truthy coerces a loosely typed stored value to a bool.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false":
			return false
		}
		return true
	}
	return false
}
