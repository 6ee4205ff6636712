// Package browser is the harness's view of the browser-automation engine.
//
// The rest of the harness never touches Playwright directly. It works against
// four small interfaces:
//
//  1. Engine: a launched browser that creates isolated sessions
//  2. Session: one browser context holding cookies and storage
//  3. Page: a single navigable tab inside a session
//  4. Locator: a lazily resolved set of elements on a page
//
// Launch returns the Playwright-backed Engine. Tests substitute in-memory
// fakes that implement the same interfaces.
//
// # Storage state
//
// A session's storage state is exchanged as an opaque JSON blob. The engine
// produces it from Session.StorageState and accepts it in Engine.NewSession;
// nothing else in the harness interprets its contents.
//
// # Errors
//
// Every locator action that fails returns an *InteractionError naming the
// action and a readable description of the target, such as
//
//	role=button[name="Log in"]
//	css=tbody.k-table-tbody tr >> has-text="XYZ" >> nth=0
//
// Engine timeouts match ErrTimeout, and timeouts while resolving an element
// additionally match ErrElementNotFound.
package browser
