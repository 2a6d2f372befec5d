package notify

import (
	"context"

	"github.com/nhle/ggcraft/internal/pusher"
)

// PusherTransport opens sessions on a Pusher-compatible server.
type PusherTransport struct {
	dialer *pusher.Dialer
}

// NewPusherTransport creates a Transport backed by dialer.
func NewPusherTransport(dialer *pusher.Dialer) *PusherTransport {
	return &PusherTransport{dialer: dialer}
}

// Open dials the server, authorizing private channels with credential.
func (t *PusherTransport) Open(ctx context.Context, credential string) (Session, error) {
	conn, err := t.dialer.Dial(ctx, credential)
	if err != nil {
		return nil, err
	}
	return pusherSession{conn}, nil
}

type pusherSession struct {
	*pusher.Conn
}

func (s pusherSession) Subscribe(ctx context.Context, channel string) (Channel, error) {
	ch, err := s.Conn.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
