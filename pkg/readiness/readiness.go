// Package readiness synchronizes automation with an asynchronously rendered
// application. Every wait is bounded by an explicit timeout and either
// returns a *TimeoutError or, for advisory signals, reports false.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/logging"
)

// DefaultPollInterval is how often polling waits re-check their condition.
const DefaultPollInterval = 250 * time.Millisecond

// TimeoutError reports a wait that exceeded its bound.
type TimeoutError struct {
	// What describes the awaited condition.
	What    string
	Timeout time.Duration

	// Last is the last observed value, such as a URL or a row count.
	Last string

	Err error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
	if e.Last != "" {
		msg += fmt.Sprintf(" (last seen: %s)", e.Last)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is makes every TimeoutError match browser.ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == browser.ErrTimeout
}

// Waiter runs readiness waits with a shared poll interval and logger.
type Waiter struct {
	Interval time.Duration
	Logger   *logging.Logger
}

// New returns a Waiter. A non-positive interval uses DefaultPollInterval and
// a nil logger discards output.
func New(interval time.Duration, logger *logging.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Waiter{Interval: interval, Logger: logger}
}

// Default is used by the package-level helpers.
var Default = New(DefaultPollInterval, nil)

// Condition is polled until it reports done. observed describes the current
// state for timeout messages; a non-nil error aborts the wait.
type Condition func() (done bool, observed string, err error)

// Poll checks cond immediately and then every interval until it holds, it
// fails, ctx is cancelled, or timeout elapses.
func (w *Waiter) Poll(ctx context.Context, what string, timeout time.Duration, cond Condition) error {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		done, observed, err := cond()
		if err != nil {
			return err
		}
		if done {
			w.Logger.Debugf("%s after %s", what, time.Since(start).Round(time.Millisecond))
			return nil
		}
		if !time.Now().Before(deadline) {
			return &TimeoutError{What: what, Timeout: timeout, Last: observed}
		}

		// The last sleep is cut short so the final check lands on the deadline.
		timer := time.NewTimer(min(w.Interval, time.Until(deadline)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		case <-timer.C:
		}
	}
}

// Settle blocks for a fixed duration. It exists for UI that keeps mounting
// after the network is idle and exposes no signal for completion.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NetworkIdleWait blocks until the page has no network activity for the
// engine's quiet window.
func (w *Waiter) NetworkIdleWait(page browser.Page, timeout time.Duration) error {
	err := page.WaitForNetworkIdle(timeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrTimeout) {
		return &TimeoutError{What: "network idle", Timeout: timeout, Last: page.URL(), Err: err}
	}
	return err
}

// NetworkIdleWait runs Default.NetworkIdleWait.
func NetworkIdleWait(page browser.Page, timeout time.Duration) error {
	return Default.NetworkIdleWait(page, timeout)
}
