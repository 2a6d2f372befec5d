package pusher

import "sync"

// Channel is a subscribed channel on a Conn.
type Channel struct {
	name  string
	conn  *Conn
	ready chan error
	once  sync.Once

	mu       sync.RWMutex
	handlers map[string][]func(data []byte)
	globals  []func(event string, data []byte)
	// gen advances on UnbindAll so a dispatch already in flight skips the
	// handlers it copied earlier.
	gen    uint64
	closed bool
}

func newChannel(name string, conn *Conn) *Channel {
	return &Channel{
		name:     name,
		conn:     conn,
		ready:    make(chan error, 1),
		handlers: make(map[string][]func(data []byte)),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Bind registers fn for event. Handlers for one event run in bind order.
func (c *Channel) Bind(event string, fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], fn)
}

// BindGlobal registers fn for every event on the channel. Global handlers
// run after the event-specific ones.
func (c *Channel) BindGlobal(fn func(event string, data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globals = append(c.globals, fn)
}

// UnbindAll removes every handler.
func (c *Channel) UnbindAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string][]func(data []byte))
	c.globals = nil
	c.gen++
}

// Unsubscribe leaves the channel. No handler runs once it returns.
// Calling it again is a no-op.
func (c *Channel) Unsubscribe() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.unsubscribe(c.name)
}

// settle resolves a pending Subscribe exactly once.
func (c *Channel) settle(err error) {
	c.once.Do(func() {
		c.ready <- err
	})
}

func (c *Channel) dispatch(event string, data []byte) {
	c.mu.RLock()
	gen := c.gen
	handlers := append([]func(data []byte){}, c.handlers[event]...)
	globals := append([]func(event string, data []byte){}, c.globals...)
	c.mu.RUnlock()

	for _, fn := range handlers {
		if !c.live(gen) {
			return
		}
		fn(data)
	}
	for _, fn := range globals {
		if !c.live(gen) {
			return
		}
		fn(event, data)
	}
}

// live reports whether handlers copied at gen may still run.
func (c *Channel) live(gen uint64) bool {
	select {
	case <-c.conn.done:
		return false
	default:
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.gen == gen
}
