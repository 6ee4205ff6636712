// Package flows holds end-to-end scenarios built on an authenticated run.
package flows

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/harness"
	"github.com/entrhq/kinetic/pkg/logging"
	"github.com/entrhq/kinetic/pkg/login"
	"github.com/entrhq/kinetic/pkg/readiness"
	"github.com/entrhq/kinetic/pkg/session"
)

// DefaultCustomerID is the customer the tracker flow opens when none is given.
const DefaultCustomerID = "XYZ"

// Flow is a named scenario.
type Flow struct {
	Name        string
	Description string
	Run         func(ctx context.Context, run *harness.Run) error
}

// Result is the outcome of one flow.
type Result struct {
	Flow     string
	Duration time.Duration
	Err      error
}

// Passed reports whether the flow succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Catalog returns every available flow keyed by name.
func Catalog(customerID string) map[string]Flow {
	if customerID == "" {
		customerID = DefaultCustomerID
	}
	return map[string]Flow{
		"login": {
			Name:        "login",
			Description: "fresh login in an isolated session",
			Run:         VerifyLogin,
		},
		"customer-tracker": {
			Name:        "customer-tracker",
			Description: fmt.Sprintf("filter Customer Tracker to %s and open it", customerID),
			Run: func(ctx context.Context, run *harness.Run) error {
				return CustomerTracker(ctx, run, customerID)
			},
		},
	}
}

// Select resolves a flow name, or "all", to flows in a stable order.
func Select(name, customerID string) ([]Flow, error) {
	catalog := Catalog(customerID)

	names := lo.Keys(catalog)
	sort.Strings(names)

	if name == "" || name == "all" {
		return lo.Map(names, func(n string, _ int) Flow { return catalog[n] }), nil
	}

	flow, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q (available: %s, all)", name, strings.Join(names, ", "))
	}
	return []Flow{flow}, nil
}

// RunFlows runs each flow in order and collects results. A failing flow
// does not stop the ones after it.
func RunFlows(ctx context.Context, run *harness.Run, flows []Flow, logger *logging.Logger) []Result {
	if logger == nil {
		logger = logging.Discard()
	}

	results := make([]Result, 0, len(flows))
	for _, flow := range flows {
		logger.Infof("Running flow %s", flow.Name)
		start := time.Now()
		err := flow.Run(ctx, run)
		result := Result{Flow: flow.Name, Duration: time.Since(start), Err: err}

		if err != nil {
			logger.Errorf("Flow %s failed after %s: %v", flow.Name, result.Duration.Round(time.Millisecond), err)
		} else {
			logger.Infof("Flow %s passed in %s", flow.Name, result.Duration.Round(time.Millisecond))
		}
		results = append(results, result)
	}
	return results
}

// VerifyLogin logs in from scratch in a session of its own, leaving the
// run's session untouched, and checks the login route is left behind.
func VerifyLogin(ctx context.Context, run *harness.Run) (err error) {
	sess, err := run.Engine.NewSession(nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	page, err := sess.NewPage()
	if err != nil {
		return err
	}
	defer page.Close()

	return verifyLoginOn(ctx, page, run.Config.BaseURL, run.Config.Username, run.Config.Password, run.Login, run.Waiter, run.Settings.Timeouts.Navigation)
}

func verifyLoginOn(ctx context.Context, page browser.Page, baseURL, username, password string, driver *login.Driver, w *readiness.Waiter, navTimeout time.Duration) error {
	if err := page.Goto(baseURL, navTimeout); err != nil {
		return err
	}
	if err := w.NetworkIdleWait(page, driver.Options().IdleTimeout); err != nil {
		return err
	}
	if err := readiness.Settle(ctx, driver.Options().PreLoginSettle); err != nil {
		return err
	}

	if err := driver.Login(ctx, page, username, password); err != nil {
		return err
	}

	if url := page.URL(); login.OnLoginRoute(url) {
		return &session.AuthenticationError{URL: url}
	}
	return nil
}

// CustomerTracker opens customerID in the Customer Tracker on a fresh page
// of the run's session.
func CustomerTracker(ctx context.Context, run *harness.Run, customerID string) error {
	timeouts := DefaultTrackerTimeouts()
	timeouts.Action = run.Settings.Timeouts.Action

	return run.WithPage(ctx, func(page browser.Page) error {
		return OpenCustomer(ctx, page, run.Waiter, customerID, timeouts)
	})
}
