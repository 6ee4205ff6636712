package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is matched by any engine operation that ran out of time.
	ErrTimeout = errors.New("browser operation timed out")

	// ErrElementNotFound is matched when a locator never resolved to an
	// actionable element.
	ErrElementNotFound = errors.New("element not found")
)

// InteractionError reports a locator action that could not be carried out.
type InteractionError struct {
	Action string
	Target string
	Err    error

	// NotFound is set when the element never became actionable.
	NotFound bool
}

// NewInteractionError wraps err for action on target. Timeouts are treated
// as the element not being found.
func NewInteractionError(action, target string, err error) *InteractionError {
	return &InteractionError{
		Action:   action,
		Target:   target,
		Err:      err,
		NotFound: errors.Is(err, ErrTimeout) || errors.Is(err, ErrElementNotFound),
	}
}

func (e *InteractionError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("%s %s: element not found: %v", e.Action, e.Target, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Action, e.Target, e.Err)
}

func (e *InteractionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrElementNotFound on not-found failures.
func (e *InteractionError) Is(target error) bool {
	return target == ErrElementNotFound && e.NotFound
}
