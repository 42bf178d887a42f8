package domain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SessionState is the authentication state of a Session.
type SessionState string

const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
	StateExpired        SessionState = "expired"
)

// Sealer encrypts cached credentials while they sit in memory.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Session is the state of one caller: its signed token and, while it is
// authenticated, the credentials captured at login. A Session is never
// persisted and never shared between callers. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	id       string
	state    SessionState
	token    string
	sealer   Sealer
	creds    []byte
	lastSeen time.Time
}

// NewSession returns an anonymous session. A nil sealer keeps credentials
// unencrypted.
func NewSession(id string, sealer Sealer) *Session {
	return &Session{
		id:       id,
		state:    StateAnonymous,
		sealer:   sealer,
		lastSeen: time.Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the signed token, or "" when there is none.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// BeginLogin moves the session to Authenticating and drops any previous state.
func (s *Session) BeginLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = StateAuthenticating
}

// AbortLogin returns a session that failed to log in to Anonymous.
func (s *Session) AbortLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = StateAnonymous
}

// Authenticate stores the token and marks the session Authenticated.
func (s *Session) Authenticate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.state = StateAuthenticated
}

// ReplaceToken swaps the token of an authenticated session. Used for silent
// rotation; the state is left unchanged.
func (s *Session) ReplaceToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return
	}
	s.token = token
}

// Expire clears the session after its token stopped verifying.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = StateExpired
}

// Clear drops the token and credentials and returns to Anonymous. Calling it
// on an anonymous session is a no-op.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = StateAnonymous
}

// SetCredentials caches the credential pair, sealed when a Sealer is set.
func (s *Session) SetCredentials(c Credentials) error {
	if !c.Valid() {
		return fmt.Errorf("credentials require username and password")
	}
	plain, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	stored := plain
	if s.sealer != nil {
		stored, err = s.sealer.Seal(plain)
		wipe(plain)
		if err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wipe(s.creds)
	s.creds = stored
	return nil
}

// Credentials returns the cached credential pair, if any.
func (s *Session) Credentials() (Credentials, bool) {
	s.mu.Lock()
	stored := append([]byte(nil), s.creds...)
	s.mu.Unlock()

	if len(stored) == 0 {
		return Credentials{}, false
	}

	plain := stored
	if s.sealer != nil {
		var err error
		plain, err = s.sealer.Open(stored)
		if err != nil {
			return Credentials{}, false
		}
		defer wipe(plain)
	} else {
		defer wipe(stored)
	}

	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil || !c.Valid() {
		return Credentials{}, false
	}
	return c, true
}

// HasCredentials reports whether a credential pair is cached.
func (s *Session) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds) > 0
}

// ClearCredentials wipes the cached credential pair.
func (s *Session) ClearCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	wipe(s.creds)
	s.creds = nil
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) clearLocked() {
	s.token = ""
	wipe(s.creds)
	s.creds = nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
