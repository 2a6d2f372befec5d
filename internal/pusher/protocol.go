package pusher

import (
	"encoding/json"
	"fmt"
)

// Protocol event names.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionError     = "pusher:subscription_error"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

// protocolVersion is the Pusher channels protocol spoken by this client.
const protocolVersion = "7"

// frame is a single protocol message. Inbound data is usually a
// JSON-encoded string holding the event payload.
type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// payload returns the event data with one level of string encoding removed.
func (f frame) payload() []byte {
	if len(f.Data) > 0 && f.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(f.Data, &s); err == nil {
			return []byte(s)
		}
	}
	return f.Data
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// ProtocolError is an error frame sent by the server.
type ProtocolError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pusher error %d: %s", e.Code, e.Message)
}

func parseProtocolError(data []byte) *ProtocolError {
	perr := &ProtocolError{}
	if err := json.Unmarshal(data, perr); err != nil || perr.Message == "" {
		perr.Message = string(data)
	}
	return perr
}

func encodeFrame(event, channel string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s data: %w", event, err)
	}
	out, err := json.Marshal(frame{Event: event, Channel: channel, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", event, err)
	}
	return out, nil
}
