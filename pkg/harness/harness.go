// Package harness wires configuration, the browser engine and the session
// manager into a single run. A Run replaces process-wide browser and
// session singletons: everything it owns is released by Run.Close.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/config"
	"github.com/entrhq/kinetic/pkg/logging"
	"github.com/entrhq/kinetic/pkg/login"
	"github.com/entrhq/kinetic/pkg/readiness"
	"github.com/entrhq/kinetic/pkg/session"
)

// Launcher starts a browser engine.
type Launcher func(opts browser.LaunchOptions) (browser.Engine, error)

// PlaywrightLauncher launches Chromium through Playwright, optionally
// installing the driver first.
func PlaywrightLauncher(install bool) Launcher {
	return func(opts browser.LaunchOptions) (browser.Engine, error) {
		opts.InstallDriver = install
		return browser.Launch(opts)
	}
}

// Options configures Start.
type Options struct {
	Config config.RuntimeConfig

	// Settings defaults to config.DefaultSettings when left zero. Partial
	// settings are validated as given.
	Settings config.Settings

	// Engine is used as-is when set; otherwise Launch starts one. Either
	// way the Run closes it.
	Engine browser.Engine
	Launch Launcher

	// Store defaults to a file at Settings.StateFile.
	Store session.StateStore

	// Authenticator defaults to the login form driver.
	Authenticator session.Authenticator

	Logger *logging.Logger
}

// Run is one authenticated test run.
type Run struct {
	ID       string
	Config   config.RuntimeConfig
	Settings config.Settings

	Engine  browser.Engine
	Session *session.Handle
	Waiter  *readiness.Waiter
	Login   *login.Driver

	manager *session.Manager
	logger  *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Start launches the engine and acquires an authenticated session. On
// failure everything it created has been released.
func Start(ctx context.Context, opts Options) (*Run, error) {
	settings := opts.Settings
	if settings == (config.Settings{}) {
		settings = config.DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	hl := logger.With("harness")

	waiter := readiness.New(settings.Timeouts.PollInterval, logger.With("readiness"))
	driver := login.NewDriver(login.Options{
		AccountType:     settings.Login.AccountType,
		PreLoginSettle:  settings.Login.PreLoginSettle,
		PostLoginSettle: settings.Login.PostLoginSettle,
		IdleTimeout:     settings.Timeouts.NetworkIdle,
		ActionTimeout:   settings.Timeouts.Action,
	}, waiter, logger.With("login"))

	engine := opts.Engine
	if engine == nil {
		launch := opts.Launch
		if launch == nil {
			launch = PlaywrightLauncher(false)
		}

		hl.Infof("Launching browser (headless=%t, slow-mo=%s)", opts.Config.Headless, opts.Config.SlowMo)
		var err error
		engine, err = launch(browser.LaunchOptions{
			Headless:          opts.Config.Headless,
			SlowMo:            opts.Config.SlowMo,
			ActionTimeout:     settings.Timeouts.Action,
			NavigationTimeout: settings.Timeouts.Navigation,
		})
		if err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		store = session.NewFileStateStore(settings.StateFile)
	}

	var auth session.Authenticator = driver
	if opts.Authenticator != nil {
		auth = opts.Authenticator
	}

	manager, err := session.NewManager(session.Options{
		Config:            opts.Config,
		Engine:            engine,
		Store:             store,
		Authenticator:     auth,
		NavigationTimeout: settings.Timeouts.Navigation,
		IdleTimeout:       settings.Timeouts.NetworkIdle,
		Waiter:            waiter,
		Logger:            logger.With("session"),
	})
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}

	run := &Run{
		ID:       logger.RunID(),
		Config:   opts.Config,
		Settings: settings,
		Engine:   engine,
		Waiter:   waiter,
		Login:    driver,
		manager:  manager,
		logger:   hl,
	}

	hl.Infof("Starting run %s against %s (%s)", run.ID, opts.Config.BaseURL, driver.Describe())

	handle, err := manager.AcquireSession(ctx)
	if err != nil {
		hl.Errorf("Session acquisition failed: %v", err)
		if cerr := run.Close(); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	run.Session = handle

	return run, nil
}

// WithPage opens a page on the authenticated session, runs fn and closes
// the page.
func (r *Run) WithPage(ctx context.Context, fn func(page browser.Page) error) error {
	return r.Session.WithPage(ctx, fn)
}

// Reused reports whether the run started from persisted state.
func (r *Run) Reused() bool {
	return r.Session != nil && r.Session.Reused
}

// Close releases the session and then the engine. It runs once; later
// calls return the first result.
func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.manager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session: %w", err))
		}
		if err := r.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		r.closeErr = errors.Join(errs...)
		r.logger.Infof("Run %s closed", r.ID)
	})
	return r.closeErr
}
