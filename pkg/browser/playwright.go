package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightEngine is the Chromium-backed Engine.
type PlaywrightEngine struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	opts      LaunchOptions
	closeOnce sync.Once
	closeErr  error
}

// Launch starts the Playwright driver and a Chromium instance.
func Launch(opts LaunchOptions) (*PlaywrightEngine, error) {
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}

	// Keep driver chatter off the test output
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.InstallDriver {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &PlaywrightEngine{
		pw:      pw,
		browser: browser,
		opts:    opts,
	}, nil
}

// NewSession creates a browser context, restoring state when given.
func (e *PlaywrightEngine) NewSession(state []byte) (Session, error) {
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  e.opts.Viewport.Width,
			Height: e.opts.Viewport.Height,
		},
	}

	if len(state) > 0 {
		var storage playwright.OptionalStorageState
		if err := json.Unmarshal(state, &storage); err != nil {
			return nil, fmt.Errorf("failed to decode storage state: %w", err)
		}
		contextOpts.StorageState = &storage
	}

	context, err := e.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	context.SetDefaultTimeout(milliseconds(e.opts.ActionTimeout))
	context.SetDefaultNavigationTimeout(milliseconds(e.opts.NavigationTimeout))

	return &playwrightSession{context: context}, nil
}

// Close closes the browser and stops the driver. Safe to call multiple times.
func (e *PlaywrightEngine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if err := e.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		if err := e.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

type playwrightSession struct {
	context playwright.BrowserContext
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) StorageState() ([]byte, error) {
	state, err := s.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage state: %w", err)
	}
	return data, nil
}

func (s *playwrightSession) Close() error {
	return s.context.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   timeoutOption(timeout),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, translate(err))
	}
	return nil
}

func (p *playwrightPage) WaitForNetworkIdle(timeout time.Duration) error {
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutOption(timeout),
	})
	if err != nil {
		return fmt.Errorf("network idle wait failed: %w", translate(err))
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Locator(selector string) Locator {
	return &playwrightLocator{
		loc:  p.page.Locator(selector),
		desc: DescribeCSS(selector),
	}
}

func (p *playwrightPage) GetByRole(role, name string) Locator {
	opts := playwright.PageGetByRoleOptions{}
	if name != "" {
		opts.Name = name
	}
	return &playwrightLocator{
		loc:  p.page.GetByRole(playwright.AriaRole(role), opts),
		desc: DescribeRole(role, name),
	}
}

func (p *playwrightPage) GetByLabel(label string) Locator {
	return &playwrightLocator{
		loc:  p.page.GetByLabel(label),
		desc: DescribeLabel(label),
	}
}

func (p *playwrightPage) GetByText(text string) Locator {
	return &playwrightLocator{
		loc:  p.page.GetByText(text),
		desc: DescribeText(text),
	}
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

type playwrightLocator struct {
	loc  playwright.Locator
	desc string
}

func (l *playwrightLocator) Click(timeout time.Duration) error {
	err := l.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutOption(timeout)})
	return l.wrap("click", err)
}

func (l *playwrightLocator) Fill(value string, timeout time.Duration) error {
	err := l.loc.Fill(value, playwright.LocatorFillOptions{Timeout: timeoutOption(timeout)})
	return l.wrap("fill", err)
}

func (l *playwrightLocator) Press(key string, timeout time.Duration) error {
	err := l.loc.Press(key, playwright.LocatorPressOptions{Timeout: timeoutOption(timeout)})
	return l.wrap("press "+key+" on", err)
}

func (l *playwrightLocator) WaitFor(state ElementState, timeout time.Duration) error {
	err := l.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   waitForState(state),
		Timeout: timeoutOption(timeout),
	})
	return l.wrap("wait for "+string(state), err)
}

func (l *playwrightLocator) InputValue(timeout time.Duration) (string, error) {
	value, err := l.loc.InputValue(playwright.LocatorInputValueOptions{Timeout: timeoutOption(timeout)})
	if err != nil {
		return "", l.wrap("read value of", err)
	}
	return value, nil
}

func (l *playwrightLocator) Count() (int, error) {
	n, err := l.loc.Count()
	if err != nil {
		return 0, l.wrap("count", err)
	}
	return n, nil
}

func (l *playwrightLocator) Filter(hasText string) Locator {
	return &playwrightLocator{
		loc:  l.loc.Filter(playwright.LocatorFilterOptions{HasText: hasText}),
		desc: DescribeFilter(l.desc, hasText),
	}
}

func (l *playwrightLocator) First() Locator {
	return &playwrightLocator{
		loc:  l.loc.First(),
		desc: DescribeFirst(l.desc),
	}
}

func (l *playwrightLocator) Locator(selector string) Locator {
	return &playwrightLocator{
		loc:  l.loc.Locator(selector),
		desc: DescribeChild(l.desc, selector),
	}
}

func (l *playwrightLocator) String() string {
	return l.desc
}

func (l *playwrightLocator) wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	return NewInteractionError(action, l.desc, translate(err))
}

// translate tags Playwright timeouts with ErrTimeout.
func translate(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func waitForState(state ElementState) *playwright.WaitForSelectorState {
	switch state {
	case StateAttached:
		return playwright.WaitForSelectorStateAttached
	case StateDetached:
		return playwright.WaitForSelectorStateDetached
	case StateHidden:
		return playwright.WaitForSelectorStateHidden
	default:
		return playwright.WaitForSelectorStateVisible
	}
}

func timeoutOption(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(milliseconds(d))
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

var (
	_ Engine  = (*PlaywrightEngine)(nil)
	_ Session = (*playwrightSession)(nil)
	_ Page    = (*playwrightPage)(nil)
	_ Locator = (*playwrightLocator)(nil)
)
