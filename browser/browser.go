// Package browser defines the automation capability the pipeline consumes:
// navigate, wait for a selector, query elements, read text/attributes, click.
// The pipeline never depends on a concrete engine; the playwright
// implementation lives next to the interfaces and a pool keeps contexts
// reusable across queries.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrContextInvalid means the page or element handle died mid-use,
	// typically because navigation raced ahead. Callers abandon the single
	// field they were extracting.
	ErrContextInvalid = errors.New("browser context invalid")

	// ErrInfrastructure means the driver itself cannot run. This is the one
	// failure class that aborts a whole run.
	ErrInfrastructure = errors.New("browser infrastructure unavailable")
)

// Element is a handle to one DOM node.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, error)
	Click(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	// Query finds a descendant. A nil Element with a nil error means no match.
	Query(ctx context.Context, selector string) (Element, error)
}

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Query returns nil, nil when no element matches.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	ScrollBy(ctx context.Context, selector string, pixels int) error
	URL() string
	Close() error
}

// Context is an isolated browsing session (cookies, storage). Contexts are
// pooled and reused across queries; Reset must leave no state behind.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// Reset closes extraneous pages and clears cookies so leaked state
	// cannot cross queries.
	Reset(ctx context.Context) error
	Close() error
}

// Driver launches browsing contexts.
type Driver interface {
	NewContext(ctx context.Context) (Context, error)
	Close() error
}
