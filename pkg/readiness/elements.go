package readiness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
)

// CountConvergenceWait polls the size of a dynamic collection until it is
// exactly expected. Intermediate sizes, such as a grid that briefly shows
// zero or many rows while a filter applies, are ignored. When expected is 1
// the returned locator addresses that single element; otherwise it is the
// collection itself.
func (w *Waiter) CountConvergenceWait(ctx context.Context, loc browser.Locator, expected int, timeout time.Duration) (browser.Locator, error) {
	what := fmt.Sprintf("exactly %d of %s", expected, loc)
	err := w.Poll(ctx, what, timeout, func() (bool, string, error) {
		n, err := loc.Count()
		if err != nil {
			return false, "", err
		}
		return n == expected, strconv.Itoa(n) + " elements", nil
	})
	if err != nil {
		return nil, err
	}
	if expected == 1 {
		return loc.First(), nil
	}
	return loc, nil
}

// CountConvergenceWait runs Default.CountConvergenceWait.
func CountConvergenceWait(ctx context.Context, loc browser.Locator, expected int, timeout time.Duration) (browser.Locator, error) {
	return Default.CountConvergenceWait(ctx, loc, expected, timeout)
}

// TextAppearWait reports whether an element containing substring becomes
// visible within timeout. A timeout is an answer, not a failure: it returns
// false with a nil error. Any other engine failure is returned.
func (w *Waiter) TextAppearWait(page browser.Page, substring string, timeout time.Duration) (bool, error) {
	err := page.GetByText(substring).First().WaitFor(browser.StateVisible, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, browser.ErrTimeout):
		w.Logger.Debugf("text %q did not appear within %s", substring, timeout)
		return false, nil
	default:
		return false, err
	}
}

// TextAppearWait runs Default.TextAppearWait.
func TextAppearWait(page browser.Page, substring string, timeout time.Duration) (bool, error) {
	return Default.TextAppearWait(page, substring, timeout)
}

// VisibleWait waits for loc to become visible.
func (w *Waiter) VisibleWait(loc browser.Locator, timeout time.Duration) error {
	err := loc.WaitFor(browser.StateVisible, timeout)
	if err != nil && errors.Is(err, browser.ErrTimeout) {
		return &TimeoutError{What: "visible " + loc.String(), Timeout: timeout, Err: err}
	}
	return err
}

// ValueWait polls an input until its value equals expected. An input that
// has not rendered yet counts as not matching.
func (w *Waiter) ValueWait(ctx context.Context, loc browser.Locator, expected string, timeout time.Duration) error {
	what := fmt.Sprintf("value %q in %s", expected, loc)
	return w.Poll(ctx, what, timeout, func() (bool, string, error) {
		value, err := loc.InputValue(w.Interval)
		if errors.Is(err, browser.ErrElementNotFound) {
			return false, "<not rendered>", nil
		}
		if err != nil {
			return false, "", err
		}
		return value == expected, strconv.Quote(value), nil
	})
}
