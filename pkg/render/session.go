// Package render provides the page sessions that load directory pages and expose
// their rendered text and elements. A Session is single-threaded: one page is
// loaded at a time and every read refers to the most recent Navigate.
package render

import (
	"context"
	"time"
)

// Session is a handle on a page-rendering engine
type Session interface {
	// Navigate loads url, replacing the current page
	Navigate(ctx context.Context, url string) error
	// WaitForReady waits up to timeout for the page body to be ready, then for the settle delay.
	// Returns false on timeout; the page may still be partially readable.
	WaitForReady(ctx context.Context, timeout time.Duration) bool
	// BodyText returns the visible text of the page body
	BodyText(ctx context.Context) (string, error)
	// FindElements returns elements matching a CSS selector, possibly none
	FindElements(ctx context.Context, selector string) ([]Element, error)
	// PageSource returns the current page markup
	PageSource(ctx context.Context) (string, error)
	// Close releases the engine. Safe to call more than once.
	Close() error
}

// Element is a handle on a single element of the current page.
// Reads may fail independently of each other, e.g. when the page changes underneath.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns the raw attribute value, "" when absent
	Attribute(ctx context.Context, name string) (string, error)
}
