package cartsync

import "sync"

// Session tracks the current authentication identity and the one-shot login
// signal the orchestrator consumes. The signal transitions false→true exactly
// once per successful login and can only be reset by consumption (or logout).
type Session struct {
	mu            sync.Mutex
	userID        string
	token         string
	authenticated bool
	justLoggedIn  bool
}

func NewSession() *Session {
	return &Session{}
}

// Login records a successful login and arms the login signal. A repeated call
// for an already-authenticated session re-arms nothing.
func (s *Session) Login(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alreadyIn := s.authenticated && s.userID == userID
	s.userID = userID
	s.token = token
	s.authenticated = true
	if !alreadyIn {
		s.justLoggedIn = true
	}
}

// Logout clears the identity and disarms any pending login signal.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = ""
	s.token = ""
	s.authenticated = false
	s.justLoggedIn = false
}

// Authenticated returns the current user id and whether a user is signed in.
func (s *Session) Authenticated() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.authenticated
}

// Token returns the current bearer token, or "" when anonymous. Satisfies
// client.TokenSource.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ConsumeLoginSignal returns true at most once per login. Consumption resets
// the signal regardless of what the caller does next, which is what bounds a
// merge to a single attempt per login event.
func (s *Session) ConsumeLoginSignal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.justLoggedIn {
		return false
	}
	s.justLoggedIn = false
	return true
}

// LoginPending reports whether a login signal is armed, without consuming it.
func (s *Session) LoginPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.justLoggedIn
}
