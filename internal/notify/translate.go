package notify

import (
	"fmt"

	"github.com/nhle/ggcraft/internal/model"
)

// StatusPatch instructs the registry to rewrite the status of records
// correlated with Token.
type StatusPatch struct {
	Token  string
	Status string
}

// Translation is the result of classifying one inbound event. Either
// field may be nil.
type Translation struct {
	Record *model.Notification
	Patch  *StatusPatch
}

// Translate maps an inbound event payload onto a notification record
// and, for replies, a status patch. Malformed payloads degrade to
// placeholder text. The returned record has no id or timestamp; the
// registry assigns both on ingestion.
func Translate(name model.EventName, data []byte) Translation {
	event, err := decodeObject(data)
	if err != nil {
		event = model.Payload{}
	}

	switch name {
	case model.EventInvitationCreated:
		return Translation{Record: invitationCreated(event)}
	case model.EventInvitationResponded:
		return invitationResponded(event)
	case model.EventMemberRemoved:
		return Translation{Record: memberRemoved(event)}
	}
	return Translation{}
}

// FallbackPatch inspects an event without a dedicated translator for a
// token and status pair.
func FallbackPatch(event string, data []byte) (StatusPatch, bool) {
	if _, ok := model.ParseEventName(event); ok {
		return StatusPatch{}, false
	}

	payload, err := decodeObject(data)
	if err != nil {
		return StatusPatch{}, false
	}

	token, status := payload.String("token"), payload.String("status")
	if token == "" || status == "" {
		return StatusPatch{}, false
	}
	return StatusPatch{Token: token, Status: status}, true
}

func invitationCreated(event model.Payload) *model.Notification {
	team := firstNonEmpty(
		event.Object("team").String("name"),
		event.String("team_id"),
		event.Object("team").String("id"),
		"a team",
	)

	payload := event.Clone()
	if payload.String("status") == "" {
		payload["status"] = model.InvitationPending
	}

	return &model.Notification{
		Kind:    model.KindInvitationCreated,
		Title:   "Team invitation",
		Message: fmt.Sprintf("“%s” invited you to join", team),
		Payload: payload,
	}
}

func invitationResponded(event model.Payload) Translation {
	who := firstNonEmpty(event.Object("user").String("name"), "A member")
	status := event.String("status")

	t := Translation{
		Record: &model.Notification{
			Kind:    model.KindInvitationResponded,
			Title:   "Invitation update",
			Message: fmt.Sprintf("%s replied to the invitation: %s", who, firstNonEmpty(status, "unknown")),
			Payload: event.Clone(),
		},
	}

	if token := event.String("token"); token != "" && status != "" {
		t.Patch = &StatusPatch{Token: token, Status: status}
	}
	return t
}

func memberRemoved(event model.Payload) *model.Notification {
	team := firstNonEmpty(
		event.Object("team").String("name"),
		event.Object("team").String("id"),
		"unknown team",
	)

	return &model.Notification{
		Kind:    model.KindMemberRemoved,
		Title:   "Team notice",
		Message: fmt.Sprintf("You were removed from team “%s”", team),
		Payload: event.Clone(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
