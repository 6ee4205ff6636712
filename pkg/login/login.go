// Package login drives the Kinetic login form.
package login

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/logging"
	"github.com/entrhq/kinetic/pkg/readiness"
)

// Route markers. RouteMarker is the single signal the session manager trusts;
// IdPRouteMarker shows up when the tenant bounces to an identity provider.
const (
	RouteMarker    = "#/login"
	IdPRouteMarker = "authMethod=idp"
)

// Form elements.
const (
	AccountTypeLabel = "User Account Type"
	UsernameSelector = "input#input_username"
	PasswordSelector = "input#input_password"
	SubmitButtonName = "Log in"
)

// Defaults for Options.
const (
	DefaultAccountType = "Epicor Basic"

	// The login form keeps mounting widgets after the network goes quiet,
	// and the shell does the same after submit. Neither exposes a ready
	// signal, so these are fixed.
	DefaultPreLoginSettle  = 3 * time.Second
	DefaultPostLoginSettle = 5 * time.Second

	DefaultIdleTimeout   = 30 * time.Second
	DefaultActionTimeout = 30 * time.Second
)

// Options tunes the login sequence.
type Options struct {
	AccountType     string
	PreLoginSettle  time.Duration
	PostLoginSettle time.Duration
	IdleTimeout     time.Duration
	ActionTimeout   time.Duration
}

// DefaultOptions returns the options used by the tenant's basic login.
func DefaultOptions() Options {
	return Options{
		AccountType:     DefaultAccountType,
		PreLoginSettle:  DefaultPreLoginSettle,
		PostLoginSettle: DefaultPostLoginSettle,
		IdleTimeout:     DefaultIdleTimeout,
		ActionTimeout:   DefaultActionTimeout,
	}
}

// Driver performs the login motions. It never checks whether the login
// worked; callers inspect the route afterwards.
type Driver struct {
	opts   Options
	waiter *readiness.Waiter
	logger *logging.Logger
}

// NewDriver creates a Driver. An empty AccountType and zero IdleTimeout or
// ActionTimeout fall back to DefaultOptions; zero settle durations skip the
// settle.
func NewDriver(opts Options, waiter *readiness.Waiter, logger *logging.Logger) *Driver {
	defaults := DefaultOptions()
	if opts.AccountType == "" {
		opts.AccountType = defaults.AccountType
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = defaults.IdleTimeout
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = defaults.ActionTimeout
	}
	if waiter == nil {
		waiter = readiness.Default
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{opts: opts, waiter: waiter, logger: logger}
}

// Options returns the effective options.
func (d *Driver) Options() Options {
	return d.opts
}

// Login runs the fixed sequence against a page already showing the login
// form. Element failures are returned unmodified.
func (d *Driver) Login(ctx context.Context, page browser.Page, username, password string) error {
	d.logger.Infof("Logging in as %s (%s)", username, d.opts.AccountType)

	if err := d.waiter.NetworkIdleWait(page, d.opts.IdleTimeout); err != nil {
		return err
	}
	if err := readiness.Settle(ctx, d.opts.PreLoginSettle); err != nil {
		return err
	}

	// Account type dropdown
	if err := page.GetByLabel(AccountTypeLabel).Click(d.opts.ActionTimeout); err != nil {
		return err
	}
	if err := page.GetByRole("option", d.opts.AccountType).Click(d.opts.ActionTimeout); err != nil {
		return err
	}

	// Credentials
	if err := page.Locator(UsernameSelector).Fill(username, d.opts.ActionTimeout); err != nil {
		return err
	}
	if err := page.Locator(PasswordSelector).Fill(password, d.opts.ActionTimeout); err != nil {
		return err
	}

	if err := page.GetByRole("button", SubmitButtonName).Click(d.opts.ActionTimeout); err != nil {
		return err
	}

	// Wait for the shell to load
	if err := d.waiter.NetworkIdleWait(page, d.opts.IdleTimeout); err != nil {
		return err
	}
	if err := readiness.Settle(ctx, d.opts.PostLoginSettle); err != nil {
		return err
	}

	d.logger.Debugf("Login motions complete, now at %s", page.URL())
	return nil
}

// OnLoginRoute reports whether url carries the login route marker.
func OnLoginRoute(url string) bool {
	return strings.Contains(url, RouteMarker)
}

// IsOnLoginPage reports whether url is the login form or an identity
// provider redirect.
func IsOnLoginPage(url string) bool {
	return OnLoginRoute(url) || strings.Contains(url, IdPRouteMarker)
}

// Describe summarises the driver for logs.
func (d *Driver) Describe() string {
	return fmt.Sprintf("account type %q, settle %s/%s", d.opts.AccountType, d.opts.PreLoginSettle, d.opts.PostLoginSettle)
}
