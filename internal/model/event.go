package model

// EventName identifies an inbound push event bound on the user channel.
type EventName string

const (
	EventInvitationCreated   EventName = "team.invitation.created"
	EventInvitationResponded EventName = "team.invitation.responded"
	EventMemberRemoved       EventName = "team.member.removed"
)

// EventNames lists every event that has a dedicated translator.
var EventNames = []EventName{
	EventInvitationCreated,
	EventInvitationResponded,
	EventMemberRemoved,
}

// ParseEventName reports whether s names a bound event.
func ParseEventName(s string) (EventName, bool) {
	for _, e := range EventNames {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// Invitation status values carried in event payloads.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"
)
