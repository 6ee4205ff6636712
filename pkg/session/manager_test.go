package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/kinetic/internal/browsertest"
	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/config"
	"github.com/entrhq/kinetic/pkg/logging"
)

const baseURL = "https://kinetic.example.com/apps/erp/home/"

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Login(ctx context.Context, page browser.Page, username, password string) error {
	args := m.Called(ctx, page, username, password)
	return args.Error(0)
}

// succeeding logs the session in, like a tenant accepting the credentials.
func succeeding() *mockAuthenticator {
	auth := &mockAuthenticator{}
	auth.On("Login", mock.Anything, mock.Anything, "manager", "s3cret").
		Run(func(args mock.Arguments) {
			page := args.Get(1).(*browsertest.Page)
			page.Session().Authenticated = true
			page.SetURL(baseURL + browsertest.HomeFragment)
		}).
		Return(nil)
	return auth
}

// memoryStore is a StateStore that counts traffic.
type memoryStore struct {
	state   []byte
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func (s *memoryStore) Load() ([]byte, error) {
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.state == nil {
		return nil, ErrNoState
	}
	return s.state, nil
}

func (s *memoryStore) Save(state []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.state = append([]byte(nil), state...)
	return nil
}

func (s *memoryStore) Location() string {
	return "memory"
}

func runtimeConfig(reuse bool) config.RuntimeConfig {
	return config.RuntimeConfig{
		BaseURL:    baseURL,
		Username:   "manager",
		Password:   "s3cret",
		Headless:   true,
		ReuseState: reuse,
	}
}

func newManager(t *testing.T, cfg config.RuntimeConfig, engine browser.Engine, store StateStore, auth Authenticator) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Config:        cfg,
		Engine:        engine,
		Store:         store,
		Authenticator: auth,
	})
	require.NoError(t, err)
	return m
}

func TestFreshLoginWithoutPersistedState(t *testing.T) {
	engine := browsertest.NewEngine()
	store := &memoryStore{}
	auth := succeeding()
	m := newManager(t, runtimeConfig(true), engine, store, auth)

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	auth.AssertNumberOfCalls(t, "Login", 1)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, browsertest.LiveState, store.state)
	assert.False(t, h.Reused)
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, 1, m.FreshLogins())

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 0, sessions[0].OpenPages(), "login page must be released")
	assert.Equal(t, 0, sessions[0].CloseCount())

	require.NoError(t, m.Close())
	assert.Equal(t, 1, sessions[0].CloseCount())
	assert.Equal(t, Closed, m.State())
}

func TestSecondRunReusesPersistedState(t *testing.T) {
	store := &memoryStore{}

	first := newManager(t, runtimeConfig(true), browsertest.NewEngine(), store, succeeding())
	_, err := first.AcquireSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	engine := browsertest.NewEngine()
	auth := succeeding()
	second := newManager(t, runtimeConfig(true), engine, store, auth)

	h, err := second.AcquireSession(context.Background())
	require.NoError(t, err)
	defer second.Close()

	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, h.Reused)
	assert.Equal(t, 0, second.FreshLogins())
	assert.Equal(t, 1, store.saves, "reuse must not rewrite state")

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, browsertest.LiveState, sessions[0].RestoredState)
	assert.Equal(t, 0, sessions[0].OpenPages(), "probe page must be released")
}

func TestStaleStateFallsBackToFreshLogin(t *testing.T) {
	engine := browsertest.NewEngine()
	store := &memoryStore{state: browsertest.ExpiredState}
	auth := succeeding()
	m := newManager(t, runtimeConfig(true), engine, store, auth)

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	auth.AssertNumberOfCalls(t, "Login", 1)
	assert.False(t, h.Reused)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, browsertest.LiveState, store.state, "stale state must be overwritten")

	sessions := engine.Sessions()
	require.Len(t, sessions, 2)
	stale, fresh := sessions[0], sessions[1]

	assert.Equal(t, browsertest.ExpiredState, stale.RestoredState)
	assert.Equal(t, 1, stale.CloseCount(), "stale session discarded exactly once")
	assert.Equal(t, 0, stale.OpenPages())
	assert.Nil(t, fresh.RestoredState)
	assert.Equal(t, 0, fresh.CloseCount())

	require.NoError(t, m.Close())
	assert.Equal(t, 1, stale.CloseCount())
	assert.Equal(t, 1, fresh.CloseCount())
}

func TestReuseDisabledAlwaysLogsIn(t *testing.T) {
	engine := browsertest.NewEngine()
	store := &memoryStore{state: browsertest.LiveState}
	auth := succeeding()
	m := newManager(t, runtimeConfig(false), engine, store, auth)

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	auth.AssertNumberOfCalls(t, "Login", 1)
	assert.False(t, h.Reused)
	assert.Equal(t, 0, store.loads)
	assert.Equal(t, 0, store.saves)
	assert.Len(t, engine.Sessions(), 1)
}

func TestFailedLoginIsFatal(t *testing.T) {
	engine := browsertest.NewEngine()
	engine.OnNewPage = func(p *browsertest.Page) {
		p.HTML = `<html><body><div class="alert">Invalid user name or password</div></body></html>`
	}
	store := &memoryStore{}

	auth := &mockAuthenticator{}
	auth.On("Login", mock.Anything, mock.Anything, "manager", "s3cret").Return(nil)

	var logs bytes.Buffer
	m, err := NewManager(Options{
		Config:        runtimeConfig(true),
		Engine:        engine,
		Store:         store,
		Authenticator: auth,
		Logger:        logging.NewWriterLogger("session", &logs),
	})
	require.NoError(t, err)

	h, err := m.AcquireSession(context.Background())
	assert.Nil(t, h)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, baseURL+browsertest.LoginFragment, authErr.URL)
	assert.Equal(t, "Invalid user name or password", authErr.Excerpt)
	assert.Contains(t, logs.String(), "Invalid user name or password")
	assert.NotContains(t, logs.String(), "s3cret")

	assert.Equal(t, 0, store.saves)
	assert.Equal(t, Closed, m.State())

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].CloseCount())
	assert.Equal(t, 0, sessions[0].OpenPages())

	// Teardown after a failed acquisition is harmless
	require.NoError(t, m.Close())
	assert.Equal(t, 1, sessions[0].CloseCount())
}

func TestLoginInteractionErrorPropagates(t *testing.T) {
	engine := browsertest.NewEngine()
	store := &memoryStore{}

	cause := browser.NewInteractionError("click", `role=button[name="Log in"]`, browser.ErrTimeout)
	auth := &mockAuthenticator{}
	auth.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(cause)

	m := newManager(t, runtimeConfig(true), engine, store, auth)
	_, err := m.AcquireSession(context.Background())

	var interactionErr *browser.InteractionError
	require.ErrorAs(t, err, &interactionErr)
	assert.Same(t, cause, interactionErr)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)

	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, engine.Sessions()[0].CloseCount())
}

func TestReuseProbeFailureClosesSession(t *testing.T) {
	engine := browsertest.NewEngine()
	engine.OnNewPage = func(p *browsertest.Page) {
		p.GotoErr = browsertest.ErrScripted
	}
	auth := succeeding()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{state: browsertest.LiveState}, auth)

	_, err := m.AcquireSession(context.Background())
	assert.ErrorIs(t, err, browsertest.ErrScripted)
	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	sessions := engine.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].CloseCount())
	assert.Equal(t, 0, sessions[0].OpenPages())
	assert.Equal(t, Closed, m.State())
}

func TestPersistFailureIsFatal(t *testing.T) {
	engine := browsertest.NewEngine()
	store := &memoryStore{saveErr: errors.New("disk full")}
	m := newManager(t, runtimeConfig(true), engine, store, succeeding())

	_, err := m.AcquireSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, engine.Sessions()[0].CloseCount())
}

func TestCorruptStateTriggersFreshLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epicor_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	engine := browsertest.NewEngine()
	auth := succeeding()
	var logs bytes.Buffer
	m, err := NewManager(Options{
		Config:        runtimeConfig(true),
		Engine:        engine,
		Store:         NewFileStateStore(path),
		Authenticator: auth,
		Logger:        logging.NewWriterLogger("session", &logs),
	})
	require.NoError(t, err)

	_, err = m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	auth.AssertNumberOfCalls(t, "Login", 1)
	assert.Contains(t, logs.String(), "[WARN] Ignoring persisted state")
	assert.Len(t, engine.Sessions(), 1, "corrupt state never reaches the engine")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, browsertest.LiveState, data)
}

func TestUnrestorableStateTriggersFreshLogin(t *testing.T) {
	engine := browsertest.NewEngine()
	calls := 0
	auth := succeeding()

	m := newManager(t, runtimeConfig(true), &rejectingEngine{Engine: engine, calls: &calls}, &memoryStore{state: browsertest.LiveState}, auth)
	_, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 2, calls)
	auth.AssertNumberOfCalls(t, "Login", 1)
}

// rejectingEngine refuses to restore any state.
type rejectingEngine struct {
	*browsertest.Engine
	calls *int
}

func (e *rejectingEngine) NewSession(state []byte) (browser.Session, error) {
	*e.calls++
	if len(state) > 0 {
		return nil, errors.New("failed to decode storage state")
	}
	return e.Engine.NewSession(state)
}

func TestOpenPage(t *testing.T) {
	engine := browsertest.NewEngine()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{}, succeeding())

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	page, err := h.OpenPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, baseURL+browsertest.HomeFragment, page.URL())

	fake := page.(*browsertest.Page)
	assert.Equal(t, []string{"goto " + baseURL, "network idle"}, fake.Actions)
	require.NoError(t, page.Close())
}

func TestOpenPageDetectsLostSession(t *testing.T) {
	engine := browsertest.NewEngine()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{}, succeeding())

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	// Server-side expiry mid-run
	engine.Sessions()[0].Authenticated = false

	page, err := h.OpenPage(context.Background())
	assert.Nil(t, page)

	var postErr *PostconditionError
	require.ErrorAs(t, err, &postErr)
	assert.Equal(t, baseURL+browsertest.LoginFragment, postErr.URL)
	assert.Equal(t, 0, engine.Sessions()[0].OpenPages())
	assert.Equal(t, Authenticated, m.State(), "no re-authentication mid-run")
}

func TestWithPageAlwaysClosesPage(t *testing.T) {
	engine := browsertest.NewEngine()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{}, succeeding())

	h, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	err = h.WithPage(context.Background(), func(page browser.Page) error {
		return browsertest.ErrScripted
	})
	assert.ErrorIs(t, err, browsertest.ErrScripted)

	var seen browser.Page
	err = h.WithPage(context.Background(), func(page browser.Page) error {
		seen = page
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)

	sess := engine.Sessions()[0]
	assert.Equal(t, 0, sess.OpenPages())
	assert.Same(t, sess, h.Session())
}

func TestCloseIsIdempotent(t *testing.T) {
	engine := browsertest.NewEngine()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{}, succeeding())

	_, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, engine.Sessions()[0].CloseCount())
}

func TestAcquireSessionOnlyOnce(t *testing.T) {
	m := newManager(t, runtimeConfig(true), browsertest.NewEngine(), &memoryStore{}, succeeding())

	_, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.AcquireSession(context.Background())
	assert.EqualError(t, err, "cannot acquire session in state authenticated")
}

func TestAcquireSessionCancelled(t *testing.T) {
	engine := browsertest.NewEngine()
	m := newManager(t, runtimeConfig(true), engine, &memoryStore{}, succeeding())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.AcquireSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.Sessions())
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Options{Store: &memoryStore{}, Authenticator: succeeding()})
	assert.EqualError(t, err, "session manager requires a browser engine")

	_, err = NewManager(Options{Engine: browsertest.NewEngine(), Authenticator: succeeding()})
	assert.EqualError(t, err, "session manager requires a state store")

	_, err = NewManager(Options{Engine: browsertest.NewEngine(), Store: &memoryStore{}})
	assert.EqualError(t, err, "session manager requires an authenticator")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "attempting-reuse", AttemptingReuse.String())
	assert.Equal(t, "fresh-login", FreshLogin.String())
	assert.Equal(t, "state(42)", State(42).String())
}
