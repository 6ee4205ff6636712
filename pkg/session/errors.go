package session

import "fmt"

// AuthenticationError reports a fresh login that left the browser on the
// login route. It is fatal for the run.
type AuthenticationError struct {
	URL string

	// Excerpt is the visible page text at the time of failure, when it
	// could be captured.
	Excerpt string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("fresh login did not complete; still on login URL: %s", e.URL)
}

// PostconditionError reports a page in an authenticated session that opened
// on the login route, meaning the session went bad mid-run.
type PostconditionError struct {
	URL string
}

func (e *PostconditionError) Error() string {
	return fmt.Sprintf("page opened on login URL %s; login likely failed or state is invalid", e.URL)
}
