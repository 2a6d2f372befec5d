package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// MaxItems is the maximum number of notifications kept in memory and on disk.
const MaxItems = 50

// Kind identifies the category of a notification. It drives rendering as
// well as dedupe and status-patch eligibility.
type Kind string

const (
	KindInfo                Kind = "info"
	KindInvitationCreated   Kind = "invitation.created"
	KindInvitationResponded Kind = "invitation.responded"
	KindMemberRemoved       Kind = "team.member.removed"
)

// Kinds lists every known notification kind.
var Kinds = []Kind{
	KindInfo,
	KindInvitationCreated,
	KindInvitationResponded,
	KindMemberRemoved,
}

// ParseKind maps a stored kind string onto a known Kind. Unknown or empty
// values fall back to KindInfo.
func ParseKind(s string) Kind {
	for _, k := range Kinds {
		if string(k) == s {
			return k
		}
	}
	return KindInfo
}

// Patchable reports whether records of this kind may have their payload
// status rewritten by a later status update. Replies are a record of what
// happened and are never rewritten.
func (k Kind) Patchable() bool {
	switch k {
	case KindInvitationResponded:
		return false
	case KindInfo, KindInvitationCreated, KindMemberRemoved:
		return true
	}
	return false
}

// Payload is the opaque structured data carried over from the push event
// that produced a notification.
type Payload map[string]any

// String returns the value at key rendered as a string. Numbers are
// formatted without exponent so numeric ids compare equal to their
// string form. Missing, null and non-scalar values yield "".
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	return scalarString(p[key])
}

// Object returns the nested object at key, or nil.
func (p Payload) Object(key string) Payload {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v)
	case Payload:
		return v
	}
	return nil
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Notification is a single event-derived entry surfaced to the user.
type Notification struct {
	// ID is unique within the registry. Generated locally when absent.
	ID string `json:"id"`

	// Kind is the notification category.
	Kind Kind `json:"kind"`

	// Title and Message are display strings.
	Title   string `json:"title"`
	Message string `json:"message"`

	// Payload carries the originating event data (status, token, ids).
	Payload Payload `json:"payload,omitempty"`

	// CreatedAt is the local ingestion time.
	CreatedAt time.Time `json:"createdAt"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`
}

// Status returns the payload status, if any.
func (n Notification) Status() string {
	return n.Payload.String("status")
}
