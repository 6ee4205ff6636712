package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/kinetic/pkg/browser"
	"github.com/entrhq/kinetic/pkg/readiness"
)

// Customer Tracker screen elements.
const (
	TrackerTileSelector  = ".khp-tile"
	TrackerTileText      = "Customer Tracker"
	FilterIconSelector   = "span.mdi.mdi-filter"
	CustIDFilterSelector = "input[aria-label='Cust. ID Filter']"
	GridRowSelector      = "tbody.k-table-tbody tr"
	KeyFieldSelector     = "input#txtKeyField"
)

// TrackerRoute matches the Customer Tracker grid.
var TrackerRoute = readiness.MustRouteGlob("*CRMN9000*pageId=CustomerEntryForm*")

// TrackerTimeouts bounds each step of the Customer Tracker flow.
type TrackerTimeouts struct {
	Tile   time.Duration
	Route  time.Duration
	Grid   time.Duration
	Link   time.Duration
	Action time.Duration
}

// DefaultTrackerTimeouts are sized for a cold tenant.
func DefaultTrackerTimeouts() TrackerTimeouts {
	return TrackerTimeouts{
		Tile:   30 * time.Second,
		Route:  60 * time.Second,
		Grid:   60 * time.Second,
		Link:   10 * time.Second,
		Action: 30 * time.Second,
	}
}

// OpenCustomer drives an authenticated page to the detail view of
// customerID: it opens the tracker from the home tiles when needed,
// filters the grid to exactly that customer and opens it.
func OpenCustomer(ctx context.Context, page browser.Page, w *readiness.Waiter, customerID string, t TrackerTimeouts) error {
	if customerID == "" {
		return fmt.Errorf("customer id is required")
	}

	if !TrackerRoute.Match(page.URL()) {
		w.Logger.Infof("Opening Customer Tracker from %s", page.URL())

		tile := page.Locator(TrackerTileSelector).Filter(TrackerTileText).First()
		if err := w.VisibleWait(tile, t.Tile); err != nil {
			return err
		}
		if err := tile.Click(t.Action); err != nil {
			return err
		}
		if err := w.RouteMatchWait(ctx, page, TrackerRoute, t.Route); err != nil {
			return err
		}
	}

	// Grid filter
	filterIcon := page.Locator(FilterIconSelector).First()
	if err := w.VisibleWait(filterIcon, t.Grid); err != nil {
		return err
	}
	if err := filterIcon.Click(t.Action); err != nil {
		return err
	}

	filterInput := page.Locator(CustIDFilterSelector).First()
	if err := w.VisibleWait(filterInput, t.Grid); err != nil {
		return err
	}
	if err := filterInput.Click(t.Action); err != nil {
		return err
	}
	if err := filterInput.Fill(customerID, t.Action); err != nil {
		return err
	}
	if err := filterInput.Press("Enter", t.Action); err != nil {
		return err
	}

	rows := page.Locator(GridRowSelector).Filter(customerID)
	row, err := w.CountConvergenceWait(ctx, rows, 1, t.Grid)
	if err != nil {
		return err
	}

	link := row.Locator("a").Filter(customerID)
	if err := w.VisibleWait(link, t.Link); err != nil {
		return err
	}
	if err := link.Click(t.Action); err != nil {
		return err
	}

	// Detail view is ready once the key field holds the id
	keyField := page.Locator(KeyFieldSelector).First()
	if err := w.VisibleWait(keyField, t.Grid); err != nil {
		return err
	}
	if err := w.ValueWait(ctx, keyField, customerID, t.Grid); err != nil {
		return err
	}

	w.Logger.Infof("Customer %s detail open at %s", customerID, page.URL())
	return nil
}
