package browser

import "time"

// Engine is a launched browser.
type Engine interface {
	// NewSession creates an isolated session. A non-empty state restores
	// cookies and storage previously captured with Session.StorageState.
	NewSession(state []byte) (Session, error)

	// Close shuts the browser and its driver down.
	Close() error
}

// Session is an isolated browser context.
type Session interface {
	NewPage() (Page, error)

	// StorageState captures the session's cookies and storage.
	StorageState() ([]byte, error)

	Close() error
}

// Page is a single tab. Zero timeouts fall back to the engine defaults.
type Page interface {
	// Goto navigates and waits for the load event.
	Goto(url string, timeout time.Duration) error

	// WaitForNetworkIdle blocks until the page has had no network activity
	// for the engine's quiet window.
	WaitForNetworkIdle(timeout time.Duration) error

	URL() string
	Content() (string, error)

	Locator(selector string) Locator
	GetByRole(role, name string) Locator
	GetByLabel(label string) Locator
	GetByText(text string) Locator

	Close() error
}

// Locator resolves elements lazily at action time.
type Locator interface {
	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	Press(key string, timeout time.Duration) error
	WaitFor(state ElementState, timeout time.Duration) error
	InputValue(timeout time.Duration) (string, error)
	Count() (int, error)

	// Filter narrows the set to elements containing text.
	Filter(hasText string) Locator
	First() Locator
	Locator(selector string) Locator

	// String describes the locator for error messages.
	String() string
}

// ElementState is the condition Locator.WaitFor waits for.
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
)

// LaunchOptions configures Launch.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// SlowMo delays every engine operation, for watching a run
	SlowMo time.Duration

	// ActionTimeout and NavigationTimeout become the session defaults
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration

	// Viewport sets the initial page size; nil uses the defaults
	Viewport *Viewport

	// InstallDriver downloads the driver and Chromium before launching
	InstallDriver bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for engine operations
const (
	DefaultActionTimeout     = 30 * time.Second
	DefaultNavigationTimeout = 60 * time.Second
	DefaultViewportWidth     = 1600
	DefaultViewportHeight    = 900
)
