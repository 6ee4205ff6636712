// Package browsertest provides in-memory implementations of the browser
// interfaces. Pages route navigations through a scriptable function, and
// locators resolve to Elements that tests configure up front and inspect
// afterwards through the page's action log.
package browsertest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
)

// Storage state blobs understood by the default Engine.
var (
	LiveState    = []byte(`{"cookies":[{"name":"session","value":"live"}],"origins":[]}`)
	ExpiredState = []byte(`{"cookies":[{"name":"session","value":"expired"}],"origins":[]}`)
)

// Routes appended by the default router.
const (
	HomeFragment  = "#/home"
	LoginFragment = "#/login"
)

// Engine is a fake browser.Engine.
type Engine struct {
	mu sync.Mutex

	// Route returns the URL a navigation lands on. Defaults to DefaultRoute.
	Route func(s *Session, url string) string

	// AcceptState reports whether restored state authenticates a session.
	// Defaults to accepting blobs that carry the "live" cookie.
	AcceptState func(state []byte) bool

	// OnNewPage runs for every page so tests can configure elements.
	OnNewPage func(p *Page)

	NewSessionErr error

	sessions   []*Session
	closeCount int
}

// NewEngine returns an Engine with the default router.
func NewEngine() *Engine {
	return &Engine{}
}

// DefaultRoute sends unauthenticated sessions to the login fragment and
// authenticated ones to home.
func DefaultRoute(s *Session, url string) string {
	if i := strings.Index(url, "#"); i >= 0 {
		url = url[:i]
	}
	if s.Authenticated {
		return url + HomeFragment
	}
	return url + LoginFragment
}

func (e *Engine) NewSession(state []byte) (browser.Session, error) {
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}

	accept := e.AcceptState
	if accept == nil {
		accept = func(state []byte) bool { return bytes.Contains(state, []byte(`"live"`)) }
	}

	s := &Session{
		engine:        e,
		RestoredState: state,
		Authenticated: len(state) > 0 && accept(state),
	}

	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeCount++
	return nil
}

// Sessions returns every session created so far, oldest first.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Session(nil), e.sessions...)
}

// CloseCount reports how many times Close was called.
func (e *Engine) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCount
}

func (e *Engine) route(s *Session, url string) string {
	if e.Route != nil {
		return e.Route(s, url)
	}
	return DefaultRoute(s, url)
}

// Session is a fake browser.Session.
type Session struct {
	engine *Engine

	RestoredState []byte
	Authenticated bool

	StorageStateErr error
	NewPageErr      error

	Pages      []*Page
	closeCount int
}

func (s *Session) NewPage() (browser.Page, error) {
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	p := &Page{
		session:  s,
		url:      "about:blank",
		elements: make(map[string]*Element),
	}
	s.Pages = append(s.Pages, p)
	if s.engine.OnNewPage != nil {
		s.engine.OnNewPage(p)
	}
	return p, nil
}

// StorageState returns LiveState for authenticated sessions and an empty
// state otherwise.
func (s *Session) StorageState() ([]byte, error) {
	if s.StorageStateErr != nil {
		return nil, s.StorageStateErr
	}
	if s.Authenticated {
		return append([]byte(nil), LiveState...), nil
	}
	return []byte(`{"cookies":[],"origins":[]}`), nil
}

func (s *Session) Close() error {
	s.closeCount++
	return nil
}

// CloseCount reports how many times Close was called.
func (s *Session) CloseCount() int {
	return s.closeCount
}

// OpenPages counts pages that were never closed.
func (s *Session) OpenPages() int {
	n := 0
	for _, p := range s.Pages {
		if p.closeCount == 0 {
			n++
		}
	}
	return n
}

// Page is a fake browser.Page.
type Page struct {
	session *Session
	url     string

	elements map[string]*Element

	// Actions records every navigation and element interaction in order.
	Actions []string

	GotoErr error
	IdleErr error
	HTML    string

	closeCount int
}

// Session returns the session that owns the page.
func (p *Page) Session() *Session {
	return p.session
}

// SetURL moves the page without a navigation, like client-side routing.
func (p *Page) SetURL(url string) {
	p.url = url
}

// Element returns the element registered under a locator description,
// creating it on first use.
func (p *Page) Element(desc string) *Element {
	el, ok := p.elements[desc]
	if !ok {
		el = &Element{page: p, desc: desc}
		p.elements[desc] = el
	}
	return el
}

// CloseCount reports how many times Close was called.
func (p *Page) CloseCount() int {
	return p.closeCount
}

func (p *Page) record(format string, args ...interface{}) {
	p.Actions = append(p.Actions, fmt.Sprintf(format, args...))
}

func (p *Page) Goto(url string, timeout time.Duration) error {
	p.record("goto %s", url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.url = p.session.engine.route(p.session, url)
	return nil
}

func (p *Page) WaitForNetworkIdle(timeout time.Duration) error {
	p.record("network idle")
	return p.IdleErr
}

func (p *Page) URL() string {
	return p.url
}

func (p *Page) Content() (string, error) {
	return p.HTML, nil
}

func (p *Page) Locator(selector string) browser.Locator {
	return p.Element(browser.DescribeCSS(selector))
}

func (p *Page) GetByRole(role, name string) browser.Locator {
	return p.Element(browser.DescribeRole(role, name))
}

func (p *Page) GetByLabel(label string) browser.Locator {
	return p.Element(browser.DescribeLabel(label))
}

func (p *Page) GetByText(text string) browser.Locator {
	return p.Element(browser.DescribeText(text))
}

func (p *Page) Close() error {
	p.closeCount++
	return nil
}

// Element is a fake browser.Locator. The zero value resolves to a single
// visible element.
type Element struct {
	page *Page
	desc string

	// Missing makes every action fail as if the element never appeared.
	Missing bool

	// CountFn overrides Count.
	CountFn func() int

	// Value is what InputValue returns; Fill replaces it.
	Value string

	OnClick func()
	OnFill  func(value string)
	OnPress func(key string)
}

var errNeverAppeared = fmt.Errorf("%w: element never appeared", browser.ErrTimeout)

func (e *Element) fail(action string) error {
	return browser.NewInteractionError(action, e.desc, errNeverAppeared)
}

func (e *Element) Click(timeout time.Duration) error {
	if e.Missing {
		return e.fail("click")
	}
	e.page.record("click %s", e.desc)
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Fill(value string, timeout time.Duration) error {
	if e.Missing {
		return e.fail("fill")
	}
	e.page.record("fill %s %s", e.desc, value)
	e.Value = value
	if e.OnFill != nil {
		e.OnFill(value)
	}
	return nil
}

func (e *Element) Press(key string, timeout time.Duration) error {
	if e.Missing {
		return e.fail("press " + key + " on")
	}
	e.page.record("press %s %s", e.desc, key)
	if e.OnPress != nil {
		e.OnPress(key)
	}
	return nil
}

func (e *Element) WaitFor(state browser.ElementState, timeout time.Duration) error {
	present := !e.Missing
	switch state {
	case browser.StateHidden, browser.StateDetached:
		if present {
			return e.fail("wait for " + string(state))
		}
	default:
		if !present {
			return e.fail("wait for " + string(state))
		}
	}
	e.page.record("wait %s %s", e.desc, state)
	return nil
}

func (e *Element) InputValue(timeout time.Duration) (string, error) {
	if e.Missing {
		return "", e.fail("read value of")
	}
	return e.Value, nil
}

func (e *Element) Count() (int, error) {
	if e.CountFn != nil {
		return e.CountFn(), nil
	}
	if e.Missing {
		return 0, nil
	}
	return 1, nil
}

func (e *Element) Filter(hasText string) browser.Locator {
	return e.page.Element(browser.DescribeFilter(e.desc, hasText))
}

func (e *Element) First() browser.Locator {
	return e.page.Element(browser.DescribeFirst(e.desc))
}

func (e *Element) Locator(selector string) browser.Locator {
	return e.page.Element(browser.DescribeChild(e.desc, selector))
}

func (e *Element) String() string {
	return e.desc
}

// ErrScripted is a generic failure for tests that inject errors.
var ErrScripted = errors.New("scripted failure")

var (
	_ browser.Engine  = (*Engine)(nil)
	_ browser.Session = (*Session)(nil)
	_ browser.Page    = (*Page)(nil)
	_ browser.Locator = (*Element)(nil)
)
