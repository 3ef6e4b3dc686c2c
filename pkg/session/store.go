package session

import (
	"sync"
	"time"

	"ai-chat-gateway/pkg/token"
)

// Session is the derived, in-memory view of the current token pair.
// It is a value snapshot; holders never observe partial mutations.
type Session struct {
	IsAuthenticated bool
	Subject         string
	Role            string
	IsSuperuser     bool
	ExpiresAt       time.Time
}

// IsAdmin mirrors token.Claims.IsAdmin for code that only holds a snapshot.
func (s Session) IsAdmin() bool {
	return s.Role == token.RoleAdmin || s.IsSuperuser
}

// Store holds the current access/refresh token pair for one client context.
//
// Exactly one Session is authoritative at a time. The store is mutated only
// by Rotate (the refresher's success path) and Clear (logout / refresh
// failure); every other component reads snapshots.
type Store struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	current      Session
}

func NewStore() *Store {
	return &Store{}
}

// Rotate installs a new access token and, when the boundary issued one, a
// new refresh token. An empty refreshToken keeps the existing one — the
// boundary is allowed to rotate only the access half.
func (s *Store) Rotate(accessToken, refreshToken string, claims *token.Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.current = Session{
		IsAuthenticated: true,
		Subject:         claims.Subject,
		Role:            claims.Role,
		IsSuperuser:     claims.IsSuperuser,
		ExpiresAt:       claims.ExpiresAt,
	}
}

// Clear drops both tokens and the derived identity. Clearing never fails;
// it is the local half of logout and of every refresh failure.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = ""
	s.refreshToken = ""
	s.current = Session{}
}

// Snapshot returns the current Session by value.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AccessToken returns the current access token, empty when unauthenticated.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, empty when unauthenticated.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}
