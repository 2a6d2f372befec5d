package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ggcraft/internal/model"
)

func TestTranslateEveryEventYieldsRecord(t *testing.T) {
	for _, name := range model.EventNames {
		t.Run(string(name), func(t *testing.T) {
			tr := Translate(name, []byte(`{}`))
			require.NotNil(t, tr.Record)
			assert.NotEmpty(t, tr.Record.Title)
			assert.NotEmpty(t, tr.Record.Message)
			assert.Empty(t, tr.Record.ID)
		})
	}
}

func TestTranslateInvitationCreated(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		message string
		status  string
	}{
		{
			name:    "team name",
			data:    `{"id":5,"token":"abc","team":{"id":9,"name":"Core"}}`,
			message: "“Core” invited you to join",
			status:  model.InvitationPending,
		},
		{
			name:    "team_id fallback",
			data:    `{"team_id":12}`,
			message: "“12” invited you to join",
			status:  model.InvitationPending,
		},
		{
			name:    "team.id fallback",
			data:    `{"team":{"id":"t-1"}}`,
			message: "“t-1” invited you to join",
			status:  model.InvitationPending,
		},
		{
			name:    "no team",
			data:    `{"status":"accepted"}`,
			message: "“a team” invited you to join",
			status:  model.InvitationAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Translate(model.EventInvitationCreated, []byte(tt.data))
			require.NotNil(t, tr.Record)
			assert.Nil(t, tr.Patch)
			assert.Equal(t, model.KindInvitationCreated, tr.Record.Kind)
			assert.Equal(t, "Team invitation", tr.Record.Title)
			assert.Equal(t, tt.message, tr.Record.Message)
			assert.Equal(t, tt.status, tr.Record.Status())
		})
	}
}

func TestTranslateInvitationCreatedKeepsNumericID(t *testing.T) {
	tr := Translate(model.EventInvitationCreated, []byte(`{"id":1234567890123}`))
	require.NotNil(t, tr.Record)
	assert.Equal(t, "1234567890123", tr.Record.Payload.String("id"))
}

func TestTranslateInvitationResponded(t *testing.T) {
	t.Run("with token and status", func(t *testing.T) {
		tr := Translate(model.EventInvitationResponded,
			[]byte(`{"token":"abc","status":"accepted","user":{"name":"Dana"}}`))

		require.NotNil(t, tr.Record)
		assert.Equal(t, model.KindInvitationResponded, tr.Record.Kind)
		assert.Equal(t, "Invitation update", tr.Record.Title)
		assert.Equal(t, "Dana replied to the invitation: accepted", tr.Record.Message)

		require.NotNil(t, tr.Patch)
		assert.Equal(t, StatusPatch{Token: "abc", Status: "accepted"}, *tr.Patch)
	})

	t.Run("missing fields", func(t *testing.T) {
		tr := Translate(model.EventInvitationResponded, []byte(`{"token":"abc"}`))

		require.NotNil(t, tr.Record)
		assert.Equal(t, "A member replied to the invitation: unknown", tr.Record.Message)
		assert.Nil(t, tr.Patch)
	})
}

func TestTranslateMemberRemoved(t *testing.T) {
	tr := Translate(model.EventMemberRemoved, []byte(`{"team":{"id":3,"name":"Ops"}}`))
	require.NotNil(t, tr.Record)
	assert.Equal(t, model.KindMemberRemoved, tr.Record.Kind)
	assert.Equal(t, "Team notice", tr.Record.Title)
	assert.Equal(t, "You were removed from team “Ops”", tr.Record.Message)

	tr = Translate(model.EventMemberRemoved, []byte(`{}`))
	assert.Equal(t, "You were removed from team “unknown team”", tr.Record.Message)
}

func TestTranslateMalformedPayload(t *testing.T) {
	for _, data := range []string{``, `not json`, `[1,2]`, `null`, `"str"`} {
		tr := Translate(model.EventInvitationCreated, []byte(data))
		require.NotNil(t, tr.Record, "data %q", data)
		assert.Equal(t, "“a team” invited you to join", tr.Record.Message)
		assert.Equal(t, model.InvitationPending, tr.Record.Status())
	}
}

func TestTranslateUnknownEvent(t *testing.T) {
	tr := Translate(model.EventName("something.else"), []byte(`{}`))
	assert.Nil(t, tr.Record)
	assert.Nil(t, tr.Patch)
}

func TestFallbackPatch(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
		want  StatusPatch
		ok    bool
	}{
		{"token and status", "invitation.expired", `{"token":"t","status":"expired"}`, StatusPatch{"t", "expired"}, true},
		{"numeric token", "x", `{"token":7,"status":"done"}`, StatusPatch{"7", "done"}, true},
		{"missing status", "x", `{"token":"t"}`, StatusPatch{}, false},
		{"missing token", "x", `{"status":"s"}`, StatusPatch{}, false},
		{"malformed", "x", `nope`, StatusPatch{}, false},
		{"dedicated event skipped", string(model.EventInvitationResponded), `{"token":"t","status":"s"}`, StatusPatch{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FallbackPatch(tt.event, []byte(tt.data))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
