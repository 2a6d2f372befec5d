package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("pusher connection closed")

// clientName and clientVersion identify this library in the handshake query.
const (
	clientName    = "ggcraft-go"
	clientVersion = "1.0.0"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultActivityTimeout  = 120 * time.Second
	pongTimeout             = 30 * time.Second
	writeTimeout            = 10 * time.Second
)

// Authorizer signs private channel subscriptions.
type Authorizer interface {
	// Authorize returns the auth signature for subscribing socketID to
	// channel on behalf of the holder of credential.
	Authorize(ctx context.Context, credential, socketID, channel string) (string, error)
}

// Dialer opens connections to a Pusher-compatible server
// (Pusher, Soketi, Laravel WebSockets, Reverb).
type Dialer struct {
	url        string
	authorizer Authorizer
	ws         *websocket.Dialer
	logger     *slog.Logger
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithLogger sets the connection logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		d.logger = logger
	}
}

// WithWebsocketDialer overrides the underlying websocket dialer.
func WithWebsocketDialer(ws *websocket.Dialer) Option {
	return func(d *Dialer) {
		d.ws = ws
	}
}

// NewDialer creates a Dialer for the application endpoint appURL, e.g.
// ws://localhost:6001/app/<key>. authorizer may be nil when only public
// channels are used.
func NewDialer(appURL string, authorizer Authorizer, opts ...Option) *Dialer {
	d := &Dialer{
		url:        appURL,
		authorizer: authorizer,
		ws: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects and waits for the server handshake. credential is kept
// for authorizing private channels on this connection.
func (d *Dialer) Dial(ctx context.Context, credential string) (*Conn, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("parsing websocket url: %w", err)
	}
	q := u.Query()
	q.Set("protocol", protocolVersion)
	q.Set("client", clientName)
	q.Set("version", clientVersion)
	q.Set("flash", "false")
	u.RawQuery = q.Encode()

	ws, _, err := d.ws.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Host, err)
	}

	established, err := handshake(ctx, ws)
	if err != nil {
		ws.Close()
		return nil, err
	}

	activity := defaultActivityTimeout
	if established.ActivityTimeout > 0 {
		activity = time.Duration(established.ActivityTimeout) * time.Second
	}

	c := &Conn{
		ws:         ws,
		socketID:   established.SocketID,
		credential: credential,
		authorizer: d.authorizer,
		activity:   activity,
		channels:   make(map[string]*Channel),
		done:       make(chan struct{}),
		logger:     d.logger.With("socket_id", established.SocketID),
	}
	go c.readLoop()
	go c.keepalive()

	c.logger.Debug("pusher connection established")
	return c, nil
}

// handshake reads the first frame, which must establish the connection.
func handshake(ctx context.Context, ws *websocket.Conn) (connectionEstablished, error) {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	defer ws.SetReadDeadline(time.Time{})

	var f frame
	if err := ws.ReadJSON(&f); err != nil {
		return connectionEstablished{}, fmt.Errorf("reading handshake: %w", err)
	}

	switch f.Event {
	case eventConnectionEstablished:
		var est connectionEstablished
		if err := json.Unmarshal(f.payload(), &est); err != nil {
			return connectionEstablished{}, fmt.Errorf("decoding handshake: %w", err)
		}
		if est.SocketID == "" {
			return connectionEstablished{}, fmt.Errorf("handshake without socket id")
		}
		return est, nil
	case eventError:
		return connectionEstablished{}, parseProtocolError(f.payload())
	}
	return connectionEstablished{}, fmt.Errorf("unexpected handshake event %q", f.Event)
}

// Conn is a live Pusher connection. Channel events are dispatched from a
// single read goroutine in arrival order.
type Conn struct {
	ws         *websocket.Conn
	socketID   string
	credential string
	authorizer Authorizer
	activity   time.Duration
	logger     *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	channels map[string]*Channel

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// SocketID returns the server-assigned socket id.
func (c *Conn) SocketID() string {
	return c.socketID
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, or nil while it is open
// or after a clean Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Subscribe joins channel and waits for the server to confirm. Channels
// prefixed with "private-" or "presence-" are authorized first.
func (c *Conn) Subscribe(ctx context.Context, channel string) (*Channel, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	req := subscribeData{Channel: channel}
	if strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-") {
		if c.authorizer == nil {
			return nil, fmt.Errorf("no authorizer for %s", channel)
		}
		auth, err := c.authorizer.Authorize(ctx, c.credential, c.socketID, channel)
		if err != nil {
			return nil, fmt.Errorf("authorizing %s: %w", channel, err)
		}
		req.Auth = auth
	}

	ch := newChannel(channel, c)
	c.mu.Lock()
	c.channels[channel] = ch
	c.mu.Unlock()

	if err := c.send(eventSubscribe, "", req); err != nil {
		c.forget(channel)
		return nil, err
	}

	select {
	case err := <-ch.ready:
		if err != nil {
			c.forget(channel)
			return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
		}
		return ch, nil
	case <-ctx.Done():
		c.forget(channel)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// unsubscribe leaves channel.
func (c *Conn) unsubscribe(channel string) error {
	if !c.forget(channel) {
		return nil
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	return c.send(eventUnsubscribe, "", unsubscribeData{Channel: channel})
}

// forget drops channel from the dispatch table and reports whether it was present.
func (c *Conn) forget(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.channels[channel]; !ok {
		return false
	}
	delete(c.channels, channel)
	return true
}

// Close sends a close frame and tears the connection down. It does not
// wait for in-flight handlers.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// fail records err as the reason the connection ended and closes it.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		select {
		case <-c.done:
		default:
			c.err = err
		}
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *Conn) send(event, channel string, data any) error {
	msg, err := encodeFrame(event, channel, data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	return nil
}

// readLoop dispatches inbound frames until the connection ends. The read
// deadline is pushed forward on every frame; a silent server is detected
// after the activity timeout plus the pong grace period.
func (c *Conn) readLoop() {
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.activity + pongTimeout))

		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("pusher connection lost", "error", err)
				c.fail(fmt.Errorf("reading frame: %w", err))
			}
			return
		}

		c.handle(f)
	}
}

func (c *Conn) handle(f frame) {
	switch f.Event {
	case eventPing:
		if err := c.send(eventPong, "", struct{}{}); err != nil {
			c.logger.Debug("answering ping", "error", err)
		}
		return
	case eventPong:
		return
	case eventError:
		c.logger.Warn("pusher server error", "error", parseProtocolError(f.payload()))
		return
	}

	if f.Channel == "" {
		return
	}

	c.mu.Lock()
	ch := c.channels[f.Channel]
	c.mu.Unlock()
	if ch == nil {
		return
	}

	switch f.Event {
	case eventSubscriptionSucceeded:
		ch.settle(nil)
	case eventSubscriptionError:
		ch.settle(parseProtocolError(f.payload()))
	default:
		if strings.HasPrefix(f.Event, "pusher_internal:") {
			return
		}
		ch.dispatch(f.Event, f.payload())
	}
}

// keepalive pings the server after each activity period so idle
// connections are not dropped.
func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.activity)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(eventPing, "", struct{}{}); err != nil {
				c.logger.Debug("sending ping", "error", err)
			}
		}
	}
}
