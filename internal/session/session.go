// Package session owns the authentication token and identity. It is the only
// place that reads or writes persisted session state; every other component
// asks the session for the current token at call time.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leadstack/leadstack/internal/api"
)

// User is the authenticated identity as returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Credentials are the register/login request bodies. Name is only used by
// register.
type Credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User
	Token string `json:"token"`
}

// Session gates all network access: it holds the token, persists it across
// restarts, and acts as the TokenProvider for the API client.
type Session struct {
	mu      sync.Mutex
	client  *api.Client
	storage Storage
	token   string
	user    *User

	now func() time.Time
}

func New(client *api.Client, storage Storage) *Session {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &Session{client: client, storage: storage, now: time.Now}
}

// Initialize loads the persisted (token, identity) pair if present. It never
// touches the network.
func (s *Session) Initialize() error {
	state, err := s.storage.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state != nil {
		s.token = state.Token
		s.user = state.User
	}
	return nil
}

// Authenticated reports whether a token is currently held.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// User returns a copy of the current identity, or nil when logged out.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	copied := *s.user
	return &copied
}

// Token implements api.TokenProvider. It reads the current token fresh on
// every call so a logout takes effect on the very next request. A token that
// parses as a JWT with a passed exp claim is rejected without a network call.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return "", api.Unauthenticated("")
	}
	if expired, known := tokenExpired(token, s.now()); known && expired {
		return "", api.Unauthenticated("Session expired")
	}
	return token, nil
}

// tokenExpired decodes the exp claim without verifying the signature; the
// server remains the authority, this only avoids a doomed round trip. Opaque
// non-JWT tokens report known=false and are passed through.
func tokenExpired(token string, now time.Time) (expired, known bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, false
	}
	return now.After(exp.Time), true
}

// Register creates an account. On success the returned identity and token
// replace the session wholesale, in memory and in storage; on failure the
// prior state is left untouched.
func (s *Session) Register(ctx context.Context, creds Credentials) (*User, error) {
	return s.authenticate(ctx, "/auth/register", creds, "Registration failed")
}

// Login authenticates with the server. Same replacement semantics as Register.
func (s *Session) Login(ctx context.Context, creds Credentials) (*User, error) {
	return s.authenticate(ctx, "/auth/login", creds, "Login failed")
}

func (s *Session) authenticate(ctx context.Context, path string, creds Credentials, fallback string) (*User, error) {
	var resp authResponse
	if err := s.client.PostPublic(ctx, path, creds, &resp, fallback); err != nil {
		return nil, &api.Error{Kind: api.KindAuth, Message: api.Message(err, fallback), Err: err}
	}
	if strings.TrimSpace(resp.Token) == "" {
		return nil, &api.Error{Kind: api.KindAuth, Message: fallback}
	}
	user := resp.User

	// persist first: a reported failure must never leave the session
	// authenticated in memory only
	if err := s.storage.Save(&persistedSession{Token: resp.Token, User: &user}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.token = resp.Token
	s.user = &user
	s.mu.Unlock()

	copied := user
	return &copied, nil
}

// FetchProfile refreshes the current identity via GET /auth/me. The token is
// left unchanged. A 401 clears the session (forced logout); any other failure
// leaves the session as it was.
func (s *Session) FetchProfile(ctx context.Context) (*User, error) {
	var user User
	if err := s.client.Get(ctx, "/auth/me", nil, &user, "Failed to get user"); err != nil {
		if api.IsUnauthenticated(err) {
			_ = s.Logout()
		}
		return nil, err
	}
	s.mu.Lock()
	s.user = &user
	token := s.token
	s.mu.Unlock()

	if err := s.storage.Save(&persistedSession{Token: token, User: &user}); err != nil {
		return nil, err
	}
	copied := user
	return &copied, nil
}

// Logout clears the in-memory and persisted token and identity. Idempotent.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return s.storage.Clear()
}
