package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadstack/leadstack/internal/api"
	"github.com/leadstack/leadstack/internal/crmtest"
)

func newSessionAgainst(t *testing.T, handler http.Handler, storage Storage) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var sess *Session
	client := api.NewClient(api.ClientOptions{
		BaseURL: server.URL,
		TokenProvider: func(ctx context.Context) (string, error) {
			return sess.Token(ctx)
		},
		HTTPClient: server.Client(),
	})
	sess = New(client, storage)
	require.NoError(t, sess.Initialize())
	return sess
}

func TestLoginReplacesSessionAndPersists(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	storage := NewMemoryStorage()
	sess := newSessionAgainst(t, fake, storage)

	require.False(t, sess.Authenticated())
	user, err := sess.Login(context.Background(), Credentials{Email: "dana@x.com", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "Dana Reyes", user.Name)
	assert.True(t, sess.Authenticated())

	token, err := sess.Token(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	persisted, err := storage.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, token, persisted.Token)
	require.NotNil(t, persisted.User)
	assert.Equal(t, "u1", persisted.User.ID)
}

func TestLoginFailureKeepsPriorState(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	storage := NewMemoryStorage()
	sess := newSessionAgainst(t, fake, storage)

	_, err := sess.Login(context.Background(), Credentials{Email: "dana@x.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, api.IsAuth(err))
	assert.Equal(t, "Login failed", api.Message(err, ""))
	assert.False(t, sess.Authenticated())

	persisted, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted, "no token may be persisted after a rejected login")
}

// brokenStorage accepts reads but fails every write.
type brokenStorage struct {
	MemoryStorage
}

func (s *brokenStorage) Save(*persistedSession) error {
	return errors.New("disk full")
}

func TestLoginSaveFailureLeavesLoggedOut(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	sess := newSessionAgainst(t, fake, &brokenStorage{})

	_, err := sess.Login(context.Background(), Credentials{Email: "dana@x.com", Password: "hunter2"})
	require.Error(t, err)
	assert.False(t, sess.Authenticated(), "a login whose persistence failed must not look logged in")
	assert.Nil(t, sess.User())
	_, err = sess.Token(context.Background())
	assert.True(t, api.IsUnauthenticated(err))
}

func TestRegisterSurfacesServerMessage(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	sess := newSessionAgainst(t, fake, NewMemoryStorage())

	_, err := sess.Register(context.Background(), Credentials{Name: "Dana", Email: "dana@x.com", Password: "pw"})
	require.Error(t, err)
	assert.True(t, api.IsAuth(err))
	assert.Equal(t, "User already exists", api.Message(err, ""))
}

func TestInitializeRestoresPersistedState(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(&persistedSession{
		Token: "tok_persisted",
		User:  &User{ID: "u9", Name: "Restored"},
	}))

	sess := newSessionAgainst(t, crmtest.NewServer(), storage)
	assert.True(t, sess.Authenticated())
	token, err := sess.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok_persisted", token)
	require.NotNil(t, sess.User())
	assert.Equal(t, "Restored", sess.User().Name)
}

func TestLogoutIsIdempotentAndClearsEverything(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	storage := NewMemoryStorage()
	sess := newSessionAgainst(t, fake, storage)

	_, err := sess.Login(context.Background(), Credentials{Email: "dana@x.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, sess.Logout())
	require.NoError(t, sess.Logout())

	assert.False(t, sess.Authenticated())
	assert.Nil(t, sess.User())
	_, err = sess.Token(context.Background())
	assert.True(t, api.IsUnauthenticated(err))

	persisted, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestTokenRejectsExpiredJWTWithoutNetwork(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)

	var calls int32
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(&persistedSession{Token: signed}))
	sess := newSessionAgainst(t, handler, storage)

	_, err = sess.Token(context.Background())
	assert.True(t, api.IsUnauthenticated(err))
	assert.Equal(t, "Session expired", api.Message(err, ""))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestTokenPassesOpaqueTokensThrough(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(&persistedSession{Token: "opaque-token"}))
	sess := newSessionAgainst(t, crmtest.NewServer(), storage)

	token, err := sess.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token)
}

func TestFetchProfileMergesIdentity(t *testing.T) {
	fake := crmtest.NewServer()
	fake.SeedUser("u1", "Dana Reyes", "dana@x.com", "Manager", "hunter2")
	sess := newSessionAgainst(t, fake, NewMemoryStorage())

	_, err := sess.Login(context.Background(), Credentials{Email: "dana@x.com", Password: "hunter2"})
	require.NoError(t, err)
	tokenBefore, err := sess.Token(context.Background())
	require.NoError(t, err)

	user, err := sess.FetchProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Manager", user.Role)

	tokenAfter, err := sess.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tokenBefore, tokenAfter, "fetching the profile must not touch the token")
}

func TestFetchProfileUnauthorizedForcesLogout(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Token expired"}`))
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(&persistedSession{Token: "tok_stale", User: &User{ID: "u1"}}))
	sess := newSessionAgainst(t, handler, storage)
	require.True(t, sess.Authenticated())

	_, err := sess.FetchProfile(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthenticated(err))
	assert.False(t, sess.Authenticated(), "a rejected token clears the session")

	persisted, err := storage.Load()
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestFetchProfileServerErrorLeavesSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(&persistedSession{Token: "tok_ok", User: &User{ID: "u1", Name: "Kept"}}))
	sess := newSessionAgainst(t, handler, storage)

	_, err := sess.FetchProfile(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsServer(err))
	assert.True(t, sess.Authenticated(), "non-401 failures leave the session untouched")
	require.NotNil(t, sess.User())
	assert.Equal(t, "Kept", sess.User().Name)
}
