// Package drivertest provides a scriptable in-memory driver.Driver.
//
// Documents hold a set of selectors that become visible at a given time.
// Hooks (OnClick, Redirect, Eval) let a test model page behavior such as a
// login popup that opens on click and closes a little later. HoldClicks and
// Stall model a browser that stops answering.
package drivertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/linkbot/internal/driver"
)

const pollInterval = 2 * time.Millisecond

var errNotVisible = errors.New("element not visible")

// Doc is a fake document: a page or a frame
type Doc struct {
	mu       sync.Mutex
	url      string
	visible  map[string]time.Time
	clicks   []string
	clickErr error
	onClick  func(selector string)
	held     bool
}

// NewDoc returns a document at url
func NewDoc(url string) *Doc {
	return &Doc{url: url, visible: make(map[string]time.Time)}
}

// Show makes selector resolvable immediately
func (d *Doc) Show(selector string) *Doc {
	return d.ShowAfter(selector, 0)
}

// ShowAfter makes selector resolvable once delay has elapsed
func (d *Doc) ShowAfter(selector string, delay time.Duration) *Doc {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible[selector] = time.Now().Add(delay)
	return d
}

// Hide removes selector
func (d *Doc) Hide(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.visible, selector)
}

// SetURL changes the current address
func (d *Doc) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// OnClick registers a hook run after every successful click
func (d *Doc) OnClick(fn func(selector string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClick = fn
}

// FailClicks makes every click return err
func (d *Doc) FailClicks(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clickErr = err
}

// HoldClicks makes every click hang until its context ends
func (d *Doc) HoldClicks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = true
}

// Clicks returns the clicked selectors in order
func (d *Doc) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

func (d *Doc) isVisible(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	at, ok := d.visible[selector]
	return ok && !time.Now().Before(at)
}

func (d *Doc) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Doc) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if d.isVisible(selector) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &driver.OpError{Op: "wait for selector", Target: selector, Err: driver.ErrSelectorTimeout}
		case <-ticker.C:
		}
	}
}

func (d *Doc) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.held {
		d.mu.Unlock()
		<-ctx.Done()
		return &driver.OpError{Op: "click", Target: selector, Err: ctx.Err()}
	}
	if d.clickErr != nil {
		err := d.clickErr
		d.mu.Unlock()
		return &driver.OpError{Op: "click", Target: selector, Err: err}
	}
	at, ok := d.visible[selector]
	if !ok || time.Now().Before(at) {
		d.mu.Unlock()
		return &driver.OpError{Op: "click", Target: selector, Err: errNotVisible}
	}
	d.clicks = append(d.clicks, selector)
	hook := d.onClick
	d.mu.Unlock()

	if hook != nil {
		hook(selector)
	}
	return nil
}

// Page is a fake tab
type Page struct {
	*Doc

	mu        sync.Mutex
	userAgent string
	gotos     []string
	gotoErr   error
	redirect  func(url string) string
	frames    []*Doc
	eval      func(expression string) (interface{}, error)
	evals     []string
	closed    bool
	closeErr  error
	stalled   bool
}

// NewPage returns a blank page
func NewPage() *Page {
	return &Page{Doc: NewDoc("about:blank")}
}

// AddFrame attaches an embedded document at url and returns it
func (p *Page) AddFrame(url string) *Doc {
	frame := NewDoc(url)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	return frame
}

// FailGoto makes every navigation return err
func (p *Page) FailGoto(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoErr = err
}

// Redirect sets where a navigation ends up; the default is the requested url
func (p *Page) Redirect(fn func(url string) string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirect = fn
}

// Eval sets the script evaluator. Its result is decoded into Evaluate's out
// through JSON.
func (p *Page) Eval(fn func(expression string) (interface{}, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eval = fn
}

// FailClose makes Close return err
func (p *Page) FailClose(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

// Stall makes SetUserAgent and Evaluate hang until their context ends
func (p *Page) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
}

func (p *Page) wait(ctx context.Context, op string) error {
	p.mu.Lock()
	stalled := p.stalled
	p.mu.Unlock()
	if !stalled {
		return nil
	}
	<-ctx.Done()
	return &driver.OpError{Op: op, Err: ctx.Err()}
}

func (p *Page) UserAgent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userAgent
}

func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

func (p *Page) Evaluations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evals...)
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) SetUserAgent(ctx context.Context, userAgent string) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.wait(ctx, "set user agent"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userAgent = userAgent
	return nil
}

func (p *Page) Goto(ctx context.Context, url string, opts driver.NavigateOptions) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.gotos = append(p.gotos, url)
	gotoErr, redirect := p.gotoErr, p.redirect
	p.mu.Unlock()

	if gotoErr != nil {
		return &driver.OpError{Op: "goto", Target: url, Err: fmt.Errorf("%w: %v", driver.ErrNavigation, gotoErr)}
	}
	final := url
	if redirect != nil {
		final = redirect(url)
	}
	p.SetURL(final)
	return nil
}

func (p *Page) Frames(ctx context.Context) ([]driver.Document, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	docs := make([]driver.Document, len(p.frames))
	for i, f := range p.frames {
		docs[i] = f
	}
	return docs, nil
}

func (p *Page) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	if err := p.wait(ctx, "evaluate"); err != nil {
		return err
	}
	p.mu.Lock()
	p.evals = append(p.evals, expression)
	eval := p.eval
	p.mu.Unlock()

	if eval == nil {
		return nil
	}
	result, err := eval(expression)
	if err != nil {
		return &driver.OpError{Op: "evaluate", Err: err}
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *Page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Closed() {
		return driver.ErrClosed
	}
	return nil
}

// Browser is a fake browser instance
type Browser struct {
	mu         sync.Mutex
	Options    driver.LaunchOptions
	page       *Page
	pages      []*Page
	newPageErr error
	windows    []driver.Window
	nextWindow int
	closed     bool
	closeErr   error
}

// NewBrowser returns a browser whose first NewPage yields Page()
func NewBrowser() *Browser {
	return &Browser{page: NewPage()}
}

// Page returns the page NewPage hands out first
func (b *Browser) Page() *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.page
}

// FailNewPage makes NewPage return err
func (b *Browser) FailNewPage(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newPageErr = err
}

// FailClose makes Close return err
func (b *Browser) FailClose(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

// OpenWindow adds a top-level window and returns its ID
func (b *Browser) OpenWindow(url string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextWindow++
	id := fmt.Sprintf("window-%d", b.nextWindow)
	b.windows = append(b.windows, driver.Window{ID: id, URL: url})
	return id
}

// CloseWindow removes the window with id
func (b *Browser) CloseWindow(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, w := range b.windows {
		if w.ID == id {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, driver.ErrClosed
	}
	if b.newPageErr != nil {
		return nil, &driver.OpError{Op: "new page", Err: b.newPageErr}
	}
	p := b.page
	if len(b.pages) > 0 {
		p = NewPage()
	}
	b.pages = append(b.pages, p)
	return p, nil
}

// Windows lists the open pages followed by the windows opened through OpenWindow
func (b *Browser) Windows(ctx context.Context) ([]driver.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	pages := append([]*Page(nil), b.pages...)
	extra := append([]driver.Window(nil), b.windows...)
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return nil, driver.ErrClosed
	}
	var out []driver.Window
	for i, p := range pages {
		if p.Closed() {
			continue
		}
		url, _ := p.URL(ctx)
		out = append(out, driver.Window{ID: fmt.Sprintf("page-%d", i+1), URL: url})
	}
	return append(out, extra...), nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.closeErr
}

// Driver launches fake browsers
type Driver struct {
	mu        sync.Mutex
	setup     func(*Browser)
	launchErr error
	gate      chan struct{}
	browsers  []*Browser
}

// New returns a driver whose browsers are prepared by setup (may be nil)
func New(setup func(*Browser)) *Driver {
	return &Driver{setup: setup}
}

// FailLaunch makes Launch return err
func (d *Driver) FailLaunch(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launchErr = err
}

// HoldLaunch makes Launch block until the returned release func is called
func (d *Driver) HoldLaunch() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Launches returns how many browsers were launched
func (d *Driver) Launches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.browsers)
}

// Last returns the most recently launched browser
func (d *Driver) Last() *Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.browsers) == 0 {
		return nil
	}
	return d.browsers[len(d.browsers)-1]
}

func (d *Driver) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	d.mu.Lock()
	gate, launchErr, setup := d.gate, d.launchErr, d.setup
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if launchErr != nil {
		return nil, &driver.OpError{Op: "launch", Err: launchErr}
	}

	b := NewBrowser()
	b.Options = opts
	if setup != nil {
		setup(b)
	}
	d.mu.Lock()
	d.browsers = append(d.browsers, b)
	d.mu.Unlock()
	return b, nil
}
