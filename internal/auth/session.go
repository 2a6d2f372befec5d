// Package auth tracks the signed-in identity that scopes the
// notification channel.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/ggcraft/internal/api"
	"github.com/nhle/ggcraft/internal/credential"
	"github.com/nhle/ggcraft/internal/model"
)

// Backend is the subset of the REST API the session needs.
type Backend interface {
	Login(ctx context.Context, email, password string) (*api.TokenResponse, error)
	Logout(ctx context.Context, credential string) error
	Me(ctx context.Context, credential string) (*api.UserProfile, error)
}

// Session holds the current identity and notifies listeners whenever it
// changes. The zero identity means signed out.
type Session struct {
	mu        sync.Mutex
	identity  model.Identity
	store     credential.Store
	backend   Backend
	listeners []func(model.Identity)
	logger    *slog.Logger
}

// NewSession creates a signed-out session.
func NewSession(store credential.Store, backend Backend, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		store:   store,
		backend: backend,
		logger:  logger,
	}
}

// Identity returns the current identity.
func (s *Session) Identity() model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// OnChange registers fn to run after every identity change. Listeners
// run synchronously on the goroutine that caused the change.
func (s *Session) OnChange(fn func(model.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Restore signs in with a token saved by a previous run, if any. A
// stored token the API rejects is discarded.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.store.Get(credential.TokenKey)
	if errors.Is(err, credential.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restoring session: %w", err)
	}

	err = s.SignIn(ctx, token)
	if api.IsAuthError(err) {
		s.logger.Info("stored credential rejected, signing out")
		_ = s.store.Delete(credential.TokenKey)
		return nil
	}
	return err
}

// Login exchanges an email and password for a token and signs in with it.
func (s *Session) Login(ctx context.Context, email, password string) error {
	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return s.SignIn(ctx, resp.AccessToken)
}

// SignIn resolves the subject behind token, stores the token and
// publishes the new identity.
func (s *Session) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("signing in: empty token")
	}

	identity, err := s.resolve(ctx, token)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	if err := s.store.Set(credential.TokenKey, token); err != nil {
		s.logger.Warn("token not persisted", "error", err)
	}

	s.logger.Info("signed in", "subject", identity.SubjectID)
	s.publish(identity)
	return nil
}

// SignOut forgets the token and publishes the zero identity. The server
// side revocation is best effort.
func (s *Session) SignOut(ctx context.Context) error {
	current := s.Identity()
	if current.Credential != "" {
		if err := s.backend.Logout(ctx, current.Credential); err != nil {
			s.logger.Debug("server logout failed", "error", err)
		}
	}

	err := s.store.Delete(credential.TokenKey)
	s.publish(model.Identity{})
	s.logger.Info("signed out")
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// resolve builds an identity for token. The subject comes from the JWT
// sub claim when present; the profile endpoint supplies the display name
// and fills the subject for opaque tokens.
func (s *Session) resolve(ctx context.Context, token string) (model.Identity, error) {
	identity := model.Identity{
		Credential: token,
		SubjectID:  subjectFromJWT(token),
	}

	profile, err := s.backend.Me(ctx, token)
	switch {
	case err == nil:
		identity.Name = profile.Name
		if identity.SubjectID == "" && profile.ID != 0 {
			identity.SubjectID = strconv.FormatInt(profile.ID, 10)
		}
	case api.IsAuthError(err):
		return model.Identity{}, err
	case identity.SubjectID == "":
		return model.Identity{}, fmt.Errorf("fetching profile: %w", err)
	default:
		s.logger.Warn("profile unavailable, using token subject", "error", err)
	}

	if identity.SubjectID == "" {
		return model.Identity{}, fmt.Errorf("no subject for token")
	}
	return identity, nil
}

// subjectFromJWT returns the sub claim of token without verifying the
// signature, or "" when token is not a JWT. The server verifies the token
// on every request.
func subjectFromJWT(token string) string {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithJSONNumber())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	switch sub := claims["sub"].(type) {
	case string:
		return sub
	case json.Number:
		// Some issuers encode sub as a number; keep its exact digits.
		return sub.String()
	}
	return ""
}

func (s *Session) publish(identity model.Identity) {
	s.mu.Lock()
	s.identity = identity
	listeners := append([]func(model.Identity){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
}
