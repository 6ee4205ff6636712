// Package session decides whether persisted browser state can be reused,
// falls back to a fresh login when it cannot, and hands out a session that
// is known to be past the login screen.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/config"
	"github.com/entrhq/kinetic/pkg/logging"
	"github.com/entrhq/kinetic/pkg/login"
	"github.com/entrhq/kinetic/pkg/readiness"
)

// State is the lifecycle position of a Manager.
type State int

const (
	NoSession State = iota
	AttemptingReuse
	FreshLogin
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case AttemptingReuse:
		return "attempting-reuse"
	case FreshLogin:
		return "fresh-login"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Authenticator performs the login motions on a page showing the login form.
type Authenticator interface {
	Login(ctx context.Context, page browser.Page, username, password string) error
}

// excerptLength bounds the page text attached to failure logs.
const excerptLength = 800

// Options configures a Manager.
type Options struct {
	Config        config.RuntimeConfig
	Engine        browser.Engine
	Store         StateStore
	Authenticator Authenticator

	NavigationTimeout time.Duration
	IdleTimeout       time.Duration

	Waiter *readiness.Waiter
	Logger *logging.Logger
}

// Manager owns the session for one run.
type Manager struct {
	cfg    config.RuntimeConfig
	engine browser.Engine
	store  StateStore
	auth   Authenticator

	navTimeout  time.Duration
	idleTimeout time.Duration

	waiter *readiness.Waiter
	logger *logging.Logger

	mu     sync.Mutex
	state  State
	handle *Handle
	logins int
}

// NewManager creates a Manager in the NoSession state.
func NewManager(opts Options) (*Manager, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("session manager requires a browser engine")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session manager requires a state store")
	}
	if opts.Authenticator == nil {
		return nil, fmt.Errorf("session manager requires an authenticator")
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = browser.DefaultNavigationTimeout
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = login.DefaultIdleTimeout
	}
	if opts.Waiter == nil {
		opts.Waiter = readiness.Default
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Manager{
		cfg:         opts.Config,
		engine:      opts.Engine,
		store:       opts.Store,
		auth:        opts.Authenticator,
		navTimeout:  opts.NavigationTimeout,
		idleTimeout: opts.IdleTimeout,
		waiter:      opts.Waiter,
		logger:      opts.Logger,
		state:       NoSession,
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FreshLogins counts fresh logins performed by this manager.
func (m *Manager) FreshLogins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	m.logger.Debugf("Session state %s -> %s", prev, s)
}

type outcomeKind int

const (
	outcomeStale outcomeKind = iota
	outcomeAuthenticated
	outcomeFatal
)

// outcome is the result of one acquisition attempt. Only an authenticated
// outcome carries a session; a fatal one carries the reason.
type outcome struct {
	kind    outcomeKind
	session browser.Session
	err     error
}

func stale() outcome {
	return outcome{kind: outcomeStale}
}

func authenticated(s browser.Session) outcome {
	return outcome{kind: outcomeAuthenticated, session: s}
}

func fatal(format string, args ...interface{}) outcome {
	return outcome{kind: outcomeFatal, err: fmt.Errorf(format, args...)}
}

// AcquireSession returns an authenticated session, reusing persisted state
// when allowed and still live, otherwise logging in. On failure every
// session it created has been closed. Call Close when the run ends.
func (m *Manager) AcquireSession(ctx context.Context) (*Handle, error) {
	if s := m.State(); s != NoSession {
		return nil, fmt.Errorf("cannot acquire session in state %s", s)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := stale()
	if m.cfg.ReuseState {
		out = m.attemptReuse(ctx)
	} else {
		m.logger.Infof("State reuse disabled, performing fresh login")
	}

	if out.kind == outcomeStale {
		out = m.freshLogin(ctx)
	}

	if out.kind == outcomeFatal {
		m.setState(Closed)
		return nil, out.err
	}

	reused := m.FreshLogins() == 0
	h := &Handle{
		manager: m,
		session: out.session,
		Reused:  reused,
	}

	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()
	m.setState(Authenticated)

	m.logger.Infof("Session ready (reused=%t)", reused)
	return h, nil
}

// attemptReuse restores persisted state and checks where the base URL
// lands. It returns stale when there is nothing usable to restore.
func (m *Manager) attemptReuse(ctx context.Context) outcome {
	state, err := m.store.Load()
	switch {
	case errors.Is(err, ErrNoState):
		m.logger.Infof("No persisted state at %s", m.store.Location())
		return stale()
	case errors.Is(err, ErrCorruptState):
		m.logger.Warnf("Ignoring persisted state: %v", err)
		return stale()
	case err != nil:
		return fatal("failed to load persisted state: %w", err)
	}

	m.setState(AttemptingReuse)
	m.logger.Infof("Attempting reuse of %s", m.store.Location())

	sess, err := m.engine.NewSession(state)
	if err != nil {
		m.logger.Warnf("Persisted state could not be restored: %v", err)
		return stale()
	}

	url, err := m.probe(ctx, sess)
	if err != nil {
		return fatal("reuse probe failed: %w", m.discard(sess, err))
	}

	if login.OnLoginRoute(url) {
		m.logger.Infof("Persisted state is stale (landed on %s), discarding", url)
		if err := sess.Close(); err != nil {
			m.logger.Warnf("Failed to close stale session: %v", err)
		}
		return stale()
	}

	return authenticated(sess)
}

// probe opens a throwaway page, navigates to the base URL and returns where
// it landed. The page is always closed.
func (m *Manager) probe(ctx context.Context, sess browser.Session) (url string, err error) {
	page, err := m.openAtBase(ctx, sess)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			m.logger.Warnf("Failed to close probe page: %v", cerr)
		}
	}()
	return page.URL(), nil
}

// freshLogin creates a clean session and drives the login form. The state
// is persisted only when the login verifiably left the login route.
func (m *Manager) freshLogin(ctx context.Context) outcome {
	m.setState(FreshLogin)

	sess, err := m.engine.NewSession(nil)
	if err != nil {
		return fatal("failed to create session: %w", err)
	}

	page, err := m.openAtBase(ctx, sess)
	if err != nil {
		return fatal("failed to open login page: %w", m.discard(sess, err))
	}

	err = m.loginOn(ctx, sess, page)
	if cerr := page.Close(); cerr != nil {
		m.logger.Warnf("Failed to close login page: %v", cerr)
	}
	if err != nil {
		return outcome{kind: outcomeFatal, err: m.discard(sess, err)}
	}

	m.mu.Lock()
	m.logins++
	m.mu.Unlock()

	return authenticated(sess)
}

func (m *Manager) loginOn(ctx context.Context, sess browser.Session, page browser.Page) error {
	if err := m.auth.Login(ctx, page, m.cfg.Username, m.cfg.Password); err != nil {
		return err
	}

	url := page.URL()
	if login.OnLoginRoute(url) {
		authErr := &AuthenticationError{URL: url, Excerpt: m.excerpt(page)}
		m.logger.Errorf("%v", authErr)
		if authErr.Excerpt != "" {
			m.logger.Errorf("Login page text:\n%s", authErr.Excerpt)
		}
		return authErr
	}

	if !m.cfg.ReuseState {
		return nil
	}

	state, err := sess.StorageState()
	if err != nil {
		return err
	}
	if err := m.store.Save(state); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	m.logger.Infof("Persisted session state to %s", m.store.Location())
	return nil
}

// openAtBase opens a page on the base URL and waits for the network to
// settle. The page is closed if anything fails.
func (m *Manager) openAtBase(ctx context.Context, sess browser.Session) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := sess.NewPage()
	if err != nil {
		return nil, err
	}

	if err := page.Goto(m.cfg.BaseURL, m.navTimeout); err != nil {
		_ = page.Close()
		return nil, err
	}
	if err := m.waiter.NetworkIdleWait(page, m.idleTimeout); err != nil {
		_ = page.Close()
		return nil, err
	}

	return page, nil
}

// discard closes a session that will not be handed out and folds any close
// failure into cause.
func (m *Manager) discard(sess browser.Session, cause error) error {
	if err := sess.Close(); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to close session: %w", err))
	}
	return cause
}

func (m *Manager) excerpt(page browser.Page) string {
	content, err := page.Content()
	if err != nil {
		m.logger.Debugf("Could not read page content: %v", err)
		return ""
	}
	text, err := browser.VisibleText(content, excerptLength)
	if err != nil {
		m.logger.Debugf("Could not extract page text: %v", err)
		return ""
	}
	return text
}

// Close releases the acquired session and moves the manager to Closed. It is
// safe to call on any path, including after a failed acquisition, and more
// than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.handle
	m.mu.Unlock()

	var err error
	if h != nil {
		err = h.close()
	}
	if m.State() != Closed {
		m.setState(Closed)
	}
	return err
}

// Handle is an authenticated session borrowed from a Manager. Callers open
// pages on it but never close it; the Manager does.
type Handle struct {
	manager *Manager
	session browser.Session

	// Reused is true when persisted state was accepted without logging in.
	Reused bool

	closeOnce sync.Once
	closeErr  error
}

// Session exposes the underlying browser session.
func (h *Handle) Session() browser.Session {
	return h.session
}

// OpenPage opens a page on the base URL. It fails with a PostconditionError
// if the page lands on the login route.
func (h *Handle) OpenPage(ctx context.Context) (browser.Page, error) {
	m := h.manager
	page, err := m.openAtBase(ctx, h.session)
	if err != nil {
		return nil, err
	}

	if url := page.URL(); login.OnLoginRoute(url) {
		_ = page.Close()
		m.logger.Errorf("Authenticated session opened on login route: %s", url)
		return nil, &PostconditionError{URL: url}
	}

	return page, nil
}

// WithPage opens a page, runs fn and closes the page whatever happens.
func (h *Handle) WithPage(ctx context.Context, fn func(page browser.Page) error) (err error) {
	page, err := h.OpenPage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close page: %w", cerr)
		}
	}()
	return fn(page)
}

func (h *Handle) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.session.Close()
	})
	return h.closeErr
}
