// Package driver is the boundary to the component that actually controls a
// browser. The bot only talks to these interfaces; Chrome is reached through
// chromedp in production and through drivertest in tests.
package driver

import (
	"context"
	"time"
)

// WaitUntil selects when a navigation counts as finished
type WaitUntil string

const (
	// WaitLoad waits for the load event
	WaitLoad WaitUntil = "load"
	// WaitDOMContentLoaded returns once the document is parsed and its body exists
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
)

// LaunchOptions configures a browser instance
type LaunchOptions struct {
	Headless     bool
	ExecPath     string
	UserDataDir  string
	WindowWidth  int
	WindowHeight int
	ExtraFlags   map[string]interface{}
}

// NavigateOptions bounds a navigation
type NavigateOptions struct {
	Until   WaitUntil
	Timeout time.Duration
}

// Window describes a top-level browser window or tab
type Window struct {
	ID    string
	URL   string
	Title string
}

// Driver launches browser instances
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one running browser instance
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	// Windows lists the open top-level windows, popups included
	Windows(ctx context.Context) ([]Window, error)
	Close() error
}

// Document is anything selectors can run against: a page or a frame
type Document interface {
	URL(ctx context.Context) (string, error)
	// WaitForSelector blocks until selector matches an element or timeout elapses
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
}

// Page is a top-level tab
type Page interface {
	Document
	SetUserAgent(ctx context.Context, userAgent string) error
	Goto(ctx context.Context, url string, opts NavigateOptions) error
	// Frames lists the embedded documents of the page
	Frames(ctx context.Context) ([]Document, error)
	// Evaluate runs expression in the page and decodes its result into out
	Evaluate(ctx context.Context, expression string, out interface{}) error
	Close() error
}
