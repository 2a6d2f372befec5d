package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nhle/ggcraft/internal/model"
	"github.com/nhle/ggcraft/tests/testutil"
)

type fakeTransport struct {
	mu           sync.Mutex
	opened       []*fakeSession
	credentials  []string
	openErr      error
	subscribeErr error
}

func (t *fakeTransport) Open(_ context.Context, credential string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openErr != nil {
		return nil, t.openErr
	}
	s := &fakeSession{done: make(chan struct{}), subscribeErr: t.subscribeErr}
	t.opened = append(t.opened, s)
	t.credentials = append(t.credentials, credential)
	return s, nil
}

func (t *fakeTransport) sessions() []*fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeSession(nil), t.opened...)
}

type fakeSession struct {
	mu           sync.Mutex
	done         chan struct{}
	closed       int
	channel      *fakeChannel
	subscribeErr error
}

func (s *fakeSession) Subscribe(_ context.Context, name string) (Channel, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = &fakeChannel{name: name, handlers: map[string][]func([]byte){}}
	return s.channel, nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == 0 {
		close(s.done)
	}
	s.closed++
	return nil
}

// drop simulates the server ending the session.
func (s *fakeSession) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == 0 {
		close(s.done)
		s.closed++
	}
}

type fakeChannel struct {
	mu           sync.Mutex
	name         string
	handlers     map[string][]func([]byte)
	globals      []func(string, []byte)
	unsubscribed int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Bind(event string, fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

func (c *fakeChannel) BindGlobal(fn func(event string, data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globals = append(c.globals, fn)
}

func (c *fakeChannel) UnbindAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = map[string][]func([]byte){}
	c.globals = nil
}

func (c *fakeChannel) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed++
	return nil
}

func (c *fakeChannel) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.globals)
	for _, h := range c.handlers {
		n += len(h)
	}
	return n
}

// emit delivers an event the way a transport would: specific handlers
// first, then global ones.
func (c *fakeChannel) emit(event, data string) {
	c.mu.Lock()
	handlers := append([]func([]byte){}, c.handlers[event]...)
	globals := append([]func(string, []byte){}, c.globals...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn([]byte(data))
	}
	for _, fn := range globals {
		fn(event, []byte(data))
	}
}

// ManagerSuite tests the channel lifecycle manager.
type ManagerSuite struct {
	suite.Suite
	ctx       context.Context
	transport *fakeTransport
	reg       *Registry
	mgr       *Manager
	identity  model.Identity
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.transport = &fakeTransport{}
	s.reg = NewRegistry(s.ctx, NewPersistence(testutil.NewTestStore(s.T())),
		WithRegistryClock(func() time.Time { return time.Unix(0, 0) }))
	s.mgr = NewManager(s.transport, s.reg)
	s.identity = model.Identity{Credential: "jwt", SubjectID: "42"}
}

func (s *ManagerSuite) connect() *fakeChannel {
	s.Require().NoError(s.mgr.Connect(s.ctx, s.identity))
	sessions := s.transport.sessions()
	s.Require().NotEmpty(sessions)
	return sessions[len(sessions)-1].channel
}

func (s *ManagerSuite) TestConnectWithoutIdentityIsNoop() {
	for _, id := range []model.Identity{
		{},
		{Credential: "jwt"},
		{SubjectID: "42"},
	} {
		s.NoError(s.mgr.Connect(s.ctx, id))
	}
	s.Empty(s.transport.sessions())
	s.Equal(Disconnected, s.mgr.State())
	s.Nil(s.mgr.Done())
}

func (s *ManagerSuite) TestConnectSubscribesUserChannel() {
	ch := s.connect()

	s.Equal("private-users.42", ch.Name())
	s.Equal([]string{"jwt"}, s.transport.credentials)
	s.Equal(Connected, s.mgr.State())
	s.Equal(len(model.EventNames)+1, ch.handlerCount())
}

func (s *ManagerSuite) TestConnectErrors() {
	s.Run("open failure", func() {
		s.transport.openErr = errors.New("refused")
		err := s.mgr.Connect(s.ctx, s.identity)
		s.ErrorContains(err, "opening channel transport")
		s.Equal(Disconnected, s.mgr.State())
		s.transport.openErr = nil
	})

	s.Run("subscribe failure closes the session", func() {
		s.transport.subscribeErr = errors.New("403")
		err := s.mgr.Connect(s.ctx, s.identity)
		s.ErrorContains(err, "subscribing to private-users.42")
		s.Equal(Disconnected, s.mgr.State())

		sessions := s.transport.sessions()
		s.Require().Len(sessions, 1)
		s.Equal(1, sessions[0].closed)
	})
}

func (s *ManagerSuite) TestDisconnectTwiceIsSafe() {
	ch := s.connect()

	s.NoError(s.mgr.Disconnect())
	s.NoError(s.mgr.Disconnect())

	s.Equal(Disconnected, s.mgr.State())
	s.Equal(1, ch.unsubscribed)
	s.Zero(ch.handlerCount())
	s.Equal(1, s.transport.sessions()[0].closed)
}

func (s *ManagerSuite) TestReconnectReleasesPreviousSubscription() {
	first := s.connect()

	s.identity = model.Identity{Credential: "jwt-2", SubjectID: "43"}
	second := s.connect()

	s.Equal(1, first.unsubscribed)
	s.Zero(first.handlerCount())
	s.Equal("private-users.43", second.Name())
	s.Equal(len(model.EventNames)+1, second.handlerCount())

	sessions := s.transport.sessions()
	s.Require().Len(sessions, 2)
	s.Equal(1, sessions[0].closed)
	s.Zero(sessions[1].closed)
}

func (s *ManagerSuite) TestEventsAreIngested() {
	ch := s.connect()

	ch.emit(string(model.EventInvitationCreated),
		`{"id":7,"token":"tok","team":{"name":"Core"}}`)
	ch.emit(string(model.EventInvitationCreated),
		`{"id":7,"token":"tok","team":{"name":"Core"}}`)

	items := s.reg.Items()
	s.Require().Len(items, 1)
	s.Equal(model.KindInvitationCreated, items[0].Kind)
	s.Equal(model.InvitationPending, items[0].Status())

	ch.emit(string(model.EventInvitationResponded),
		`{"token":"tok","status":"accepted","user":{"name":"Dana"}}`)

	items = s.reg.Items()
	s.Require().Len(items, 2)
	s.Equal(model.KindInvitationResponded, items[0].Kind)
	s.Equal(model.InvitationAccepted, items[1].Status())
	s.Equal(2, s.reg.UnreadCount())
}

func (s *ManagerSuite) TestFallbackPatchesUnknownEvents() {
	ch := s.connect()
	ch.emit(string(model.EventInvitationCreated), `{"id":7,"token":"tok"}`)

	ch.emit("invitation.revoked", `{"token":"tok","status":"revoked"}`)
	s.Equal("revoked", s.reg.Items()[0].Status())
	s.Equal(1, s.reg.Len())

	ch.emit("noise", `{"foo":"bar"}`)
	s.Equal(1, s.reg.Len())
}

func (s *ManagerSuite) TestDroppedSessionReportsDisconnected() {
	s.connect()
	done := s.mgr.Done()
	s.Require().NotNil(done)

	s.transport.sessions()[0].drop()

	select {
	case <-done:
	default:
		s.Fail("done not closed")
	}
	s.Equal(Disconnected, s.mgr.State())
}
