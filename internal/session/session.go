// Package session holds the injected identity a portal workflow runs under:
// the user id and bearer token issued by the external identity service, plus
// the ephemeral cached profile image path. The session is always passed
// explicitly into resolvers and orchestrators, never looked up ambiently.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the identity context for a logged-in portal user.
type Session struct {
	UserID string
	Token  string

	mu           sync.RWMutex
	profileImage string
	expiresAt    *time.Time
}

// New constructs a Session from externally supplied values.
func New(userID, token string) *Session {
	return &Session{UserID: userID, Token: token}
}

// FromToken builds a Session by extracting the subject and expiry claims from
// a bearer token. The signature is NOT verified; the identity service owns
// token validity and the backend re-checks every request.
func FromToken(token string) (*Session, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject claim")
	}

	s := &Session{UserID: claims.Subject, Token: token}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		s.expiresAt = &t
	}
	return s, nil
}

// Expired reports whether the session's token expiry has passed. Tokens
// without an exp claim never expire from the client's point of view.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiresAt == nil {
		return false
	}
	return now.After(*s.expiresAt)
}

// SetProfileImagePath caches the user's profile image path for the lifetime of
// the session.
func (s *Session) SetProfileImagePath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileImage = path
}

// ProfileImagePath returns the cached profile image path, if any.
func (s *Session) ProfileImagePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileImage
}
