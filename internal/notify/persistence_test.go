package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/internal/store"
	"github.com/nhle/ggcraft/tests/testutil"
)

// PersistenceSuite tests loading and saving the notification cache.
type PersistenceSuite struct {
	suite.Suite
	ctx   context.Context
	kv    store.KV
	p     *Persistence
	clock time.Time
}

func TestPersistenceSuite(t *testing.T) {
	suite.Run(t, new(PersistenceSuite))
}

func (s *PersistenceSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv = testutil.NewTestStore(s.T())
	s.clock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.p = NewPersistence(s.kv,
		WithIDGenerator(sequentialIDs("gen")),
		WithPersistenceClock(func() time.Time { return s.clock }),
	)
}

func (s *PersistenceSuite) put(raw string) {
	testutil.Seed(s.T(), s.kv, StorageKey, raw)
}

func (s *PersistenceSuite) TestLoadMissingKey() {
	items := s.p.Load(s.ctx)
	s.NotNil(items)
	s.Empty(items)
}

func (s *PersistenceSuite) TestRoundTrip() {
	created := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	in := []model.Notification{
		{
			ID:        "a",
			Kind:      model.KindInvitationCreated,
			Title:     "Team invitation",
			Message:   "“Core” invited you to join",
			Payload:   model.Payload{"id": json.Number("7"), "token": "tok", "status": "pending"},
			CreatedAt: created,
		},
		{ID: "b", Kind: model.KindInfo, Title: "Hello", Read: true, CreatedAt: created},
	}

	s.p.Save(s.ctx, in)
	out := s.p.Load(s.ctx)

	s.Require().Len(out, 2)
	s.Equal(in[0].ID, out[0].ID)
	s.Equal(in[0].Kind, out[0].Kind)
	s.Equal(in[0].Message, out[0].Message)
	s.Equal("7", out[0].Payload.String("id"))
	s.Equal("pending", out[0].Status())
	s.True(created.Equal(out[0].CreatedAt))
	s.False(out[0].Read)
	s.True(out[1].Read)
	s.Nil(out[1].Payload)
}

func (s *PersistenceSuite) TestSaveTruncates() {
	in := make([]model.Notification, model.MaxItems+10)
	for i := range in {
		in[i] = model.Notification{ID: fmt.Sprintf("n%d", i), Kind: model.KindInfo, Title: "t"}
	}

	s.p.Save(s.ctx, in)
	out := s.p.Load(s.ctx)

	s.Require().Len(out, model.MaxItems)
	s.Equal("n0", out[0].ID)
	s.Equal(fmt.Sprintf("n%d", model.MaxItems-1), out[model.MaxItems-1].ID)
}

func (s *PersistenceSuite) TestSaveNilWritesEmptyArray() {
	s.p.Save(s.ctx, nil)

	raw, err := s.kv.Get(s.ctx, StorageKey)
	s.Require().NoError(err)
	s.JSONEq(`[]`, string(raw))
}

func (s *PersistenceSuite) TestLoadCorruptData() {
	s.Run("not json", func() {
		s.put(`{{{`)
		s.Empty(s.p.Load(s.ctx))
	})

	s.Run("object instead of array", func() {
		s.put(`{"id":"x"}`)
		s.Empty(s.p.Load(s.ctx))
	})

	s.Run("scalar", func() {
		s.put(`42`)
		s.Empty(s.p.Load(s.ctx))
	})

	s.Run("non-object elements skipped", func() {
		s.put(`[1, "x", null, {"id":"keep","title":"ok"}]`)
		items := s.p.Load(s.ctx)
		s.Require().Len(items, 1)
		s.Equal("keep", items[0].ID)
	})
}

func (s *PersistenceSuite) TestLoadFillsDefaults() {
	s.put(`[{"message":"m","createdAt":"garbage","read":"yes","payload":"not-an-object"}]`)

	items := s.p.Load(s.ctx)
	s.Require().Len(items, 1)

	n := items[0]
	s.Equal("gen-1", n.ID)
	s.Equal(model.KindInfo, n.Kind)
	s.Equal("Notification", n.Title)
	s.Equal("m", n.Message)
	s.True(s.clock.Equal(n.CreatedAt))
	s.True(n.Read)
	s.Nil(n.Payload)
}

func (s *PersistenceSuite) TestLoadLegacyTypeField() {
	s.put(`[
		{"id":"a","type":"invitation.created","title":"t"},
		{"id":"b","kind":"team.member.removed","type":"info","title":"t"},
		{"id":"c","type":"something.new","title":"t"}
	]`)

	items := s.p.Load(s.ctx)
	s.Require().Len(items, 3)
	s.Equal(model.KindInvitationCreated, items[0].Kind)
	s.Equal(model.KindMemberRemoved, items[1].Kind)
	s.Equal(model.KindInfo, items[2].Kind)
}

func (s *PersistenceSuite) TestLoadReadCoercion() {
	s.put(`[
		{"id":"1","read":true},
		{"id":"2","read":1},
		{"id":"3","read":0},
		{"id":"4","read":"false"},
		{"id":"5","read":"0"},
		{"id":"6","read":null},
		{"id":"7"}
	]`)

	items := s.p.Load(s.ctx)
	s.Require().Len(items, 7)

	read := make([]bool, len(items))
	for i, n := range items {
		read[i] = n.Read
	}
	s.Equal([]bool{true, true, false, false, false, false, false}, read)
}

func (s *PersistenceSuite) TestStoreFailuresAreSwallowed() {
	p := NewPersistence(testutil.FailingStore{})

	s.NotPanics(func() {
		s.Empty(p.Load(s.ctx))
		p.Save(s.ctx, []model.Notification{{ID: "x"}})
	})
}

// sequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
