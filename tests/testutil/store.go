// Package testutil provides store fixtures shared by package tests.
package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/nhle/ggcraft/internal/store"
)

// ErrStoreDown is returned by every FailingStore call.
var ErrStoreDown = errors.New("store unavailable")

// NewTestStore opens an in-memory SQLite store with migrations applied and
// closes it when the test ends.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Seed writes raw under key, failing the test on error. Use it to load a
// store with a hand-written persisted document.
func Seed(t *testing.T, kv store.KV, key, raw string) {
	t.Helper()
	if err := kv.Set(context.Background(), key, []byte(raw)); err != nil {
		t.Fatalf("seeding %s: %v", key, err)
	}
}

// FailingStore is a store.KV whose reads and writes always fail.
type FailingStore struct{}

var _ store.KV = FailingStore{}

func (FailingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrStoreDown }

func (FailingStore) Set(context.Context, string, []byte) error { return ErrStoreDown }

func (FailingStore) Close() error { return nil }
