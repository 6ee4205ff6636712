package flows

import (
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/readiness"
)

// DefaultToastTimeout is how long WaitForToast looks for a message.
const DefaultToastTimeout = 5 * time.Second

// ClickButtonByText clicks the button whose accessible name is text.
func ClickButtonByText(page browser.Page, text string, timeout time.Duration) error {
	return page.GetByRole("button", text).Click(timeout)
}

// WaitForToast reports whether a notification containing text shows up.
// Not seeing one is not an error.
func WaitForToast(page browser.Page, text string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultToastTimeout
	}
	return readiness.TextAppearWait(page, text, timeout)
}
