package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", srv.URL+"/api/broadcasting/auth", 0)
}

func TestMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"name":"Dana","email":"d@example.com","teams":[{"id":1,"name":"Core"}]}`))
	})

	profile, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(42), profile.ID)
	assert.Equal(t, "Dana", profile.Name)
	require.Len(t, profile.Teams, 1)
	assert.Equal(t, "Core", profile.Teams[0].Name)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "d@example.com", body.Email)
		assert.Equal(t, "pw", body.Password)

		_, _ = w.Write([]byte(`{"access_token":"jwt","token_type":"bearer","expires_in":3600}`))
	})

	resp, err := c.Login(context.Background(), "d@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "jwt", resp.AccessToken)
}

func TestAuthorize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/broadcasting/auth", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "1.2", r.PostForm.Get("socket_id"))
		assert.Equal(t, "private-users.42", r.PostForm.Get("channel_name"))

		_, _ = w.Write([]byte(`{"auth":"key:sig"}`))
	})

	auth, err := c.Authorize(context.Background(), "tok", "1.2", "private-users.42")
	require.NoError(t, err)
	assert.Equal(t, "key:sig", auth)
}

func TestRespondInvitation(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.RespondInvitation(context.Background(), "tok", "abc", true))
	require.NoError(t, c.RespondInvitation(context.Background(), "tok", "abc", false))
	assert.Equal(t, []string{"/api/invitations/abc/accept", "/api/invitations/abc/reject"}, paths)
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Me(context.Background(), "expired")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestErrorMessageSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invitation already used"}`))
	})

	err := c.RespondInvitation(context.Background(), "tok", "abc", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invitation already used")
	assert.False(t, IsAuthError(err))
}

func TestRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":1}`))
	})

	profile, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.ID)
	assert.Equal(t, int32(2), calls.Load())
}
