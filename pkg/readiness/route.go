package readiness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/lo"

	"github.com/entrhq/kinetic/pkg/browser"
)

// RoutePattern matches a page URL.
type RoutePattern interface {
	Match(url string) bool
	String() string
}

type substringRoute struct {
	required []string
}

// RouteAll matches URLs that contain every one of the given substrings.
func RouteAll(required ...string) RoutePattern {
	return substringRoute{required: required}
}

func (r substringRoute) Match(url string) bool {
	return lo.EveryBy(r.required, func(s string) bool {
		return strings.Contains(url, s)
	})
}

func (r substringRoute) String() string {
	return fmt.Sprintf("route containing all of %q", r.required)
}

type globRoute struct {
	pattern string
	g       glob.Glob
}

// RouteGlob matches URLs against a glob where * spans any characters,
// for example "*/apps/erp/*#/view/CRMN9000*".
func RouteGlob(pattern string) (RoutePattern, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid route pattern '%s': %w", pattern, err)
	}
	return globRoute{pattern: pattern, g: g}, nil
}

// MustRouteGlob is RouteGlob for patterns known at compile time.
func MustRouteGlob(pattern string) RoutePattern {
	r, err := RouteGlob(pattern)
	if err != nil {
		panic(err)
	}
	return r
}

func (r globRoute) Match(url string) bool {
	return r.g.Match(url)
}

func (r globRoute) String() string {
	return fmt.Sprintf("route matching %q", r.pattern)
}

// RouteMatchWait polls the page URL until it matches pattern.
func (w *Waiter) RouteMatchWait(ctx context.Context, page browser.Page, pattern RoutePattern, timeout time.Duration) error {
	return w.Poll(ctx, pattern.String(), timeout, func() (bool, string, error) {
		url := page.URL()
		return pattern.Match(url), url, nil
	})
}

// RouteMatchWait runs Default.RouteMatchWait.
func RouteMatchWait(ctx context.Context, page browser.Page, pattern RoutePattern, timeout time.Duration) error {
	return Default.RouteMatchWait(ctx, page, pattern, timeout)
}
