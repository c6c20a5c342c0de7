package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const (
	targetTypePage   = "page"
	targetTypeIframe = "iframe"

	// upper bound for a graceful close before the process is killed
	closeTimeout = 5 * time.Second
)

// Chrome drives a local Chrome or Chromium through the DevTools protocol
type Chrome struct {
	Logger *slog.Logger
}

// NewChrome returns a Chrome driver logging its own diagnostics to logger
func NewChrome(logger *slog.Logger) *Chrome {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{Logger: logger}
}

// AllocatorOptions translates opts into chromedp allocator flags
func AllocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		out = append(out, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	for name, value := range opts.ExtraFlags {
		out = append(out, chromedp.Flag(name, value))
	}
	return out
}

// Launch starts the browser. The instance outlives ctx; ctx only bounds the
// startup handshake.
func (c *Chrome) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(opts)...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			c.Logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			c.Logger.Warn(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	stop := context.AfterFunc(ctx, rootCancel)
	err := chromedp.Run(rootCtx)
	stop()
	if err != nil {
		rootCancel()
		allocCancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &OpError{Op: "launch", Err: err}
	}

	return &chromeBrowser{
		logger:      c.Logger,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		allocCancel: allocCancel,
	}, nil
}

type chromeBrowser struct {
	logger      *slog.Logger
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	allocCancel context.CancelFunc

	mu        sync.Mutex
	rootTaken bool
	closed    bool
}

// NewPage hands out the initial tab first, then opens new ones
func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	if !b.rootTaken {
		b.rootTaken = true
		// the root tab is owned by the browser and closed with it
		return newChromePage(b.rootCtx, func() {}), nil
	}

	tabCtx, cancel := chromedp.NewContext(b.rootCtx)
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		return nil, &OpError{Op: "new page", Err: err}
	}
	return newChromePage(tabCtx, cancel), nil
}

func (b *chromeBrowser) Windows(ctx context.Context) ([]Window, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	infos, err := targets(ctx, b.rootCtx)
	if err != nil {
		return nil, &OpError{Op: "list windows", Err: err}
	}
	var windows []Window
	for _, info := range infos {
		if info.Type != targetTypePage {
			continue
		}
		windows = append(windows, Window{ID: string(info.TargetID), URL: info.URL, Title: info.Title})
	}
	return windows, nil
}

func (b *chromeBrowser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.rootCtx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(closeTimeout):
		err = fmt.Errorf("graceful close: %w", context.DeadlineExceeded)
	}
	b.rootCancel()
	b.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return &OpError{Op: "close browser", Err: err}
	}
	return nil
}

func (b *chromeBrowser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// targets lists the browser's targets while honoring the caller's deadline
func targets(ctx, chromeCtx context.Context) ([]*target.Info, error) {
	type result struct {
		infos []*target.Info
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		infos, err := chromedp.Targets(chromeCtx)
		ch <- result{infos, err}
	}()
	select {
	case r := <-ch:
		return r.infos, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// chromeDoc runs selector actions against one chromedp target
type chromeDoc struct {
	ctx context.Context
}

// run executes actions on the target, bounded by both ctx and the target's lifetime
func (d *chromeDoc) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *chromeDoc) URL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", &OpError{Op: "read url", Err: err}
	}
	return url, nil
}

func (d *chromeDoc) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := d.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrSelectorTimeout
	}
	return &OpError{Op: "wait for selector", Target: selector, Err: err}
}

func (d *chromeDoc) Click(ctx context.Context, selector string) error {
	if err := d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return &OpError{Op: "click", Target: selector, Err: err}
	}
	return nil
}

type chromePage struct {
	chromeDoc
	cancel context.CancelFunc

	mu           sync.Mutex
	frames       map[target.ID]*chromeDoc
	frameCancels []context.CancelFunc
	closed       bool
}

func newChromePage(ctx context.Context, cancel context.CancelFunc) *chromePage {
	return &chromePage{
		chromeDoc: chromeDoc{ctx: ctx},
		cancel:    cancel,
		frames:    make(map[target.ID]*chromeDoc),
	}
}

func (p *chromePage) SetUserAgent(ctx context.Context, userAgent string) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetUserAgentOverride(userAgent).Do(ctx)
	}))
	if err != nil {
		return &OpError{Op: "set user agent", Err: err}
	}
	return nil
}

// Goto navigates and waits according to opts. chromedp.Navigate waits for
// the load event; for WaitDOMContentLoaded a navigation that outlives its
// timeout still counts once the body is ready.
func (p *chromePage) Goto(ctx context.Context, url string, opts NavigateOptions) error {
	navCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	err := p.run(navCtx, chromedp.Navigate(url))
	if err != nil && opts.Until == WaitDOMContentLoaded && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		readyCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if p.run(readyCtx, chromedp.WaitReady("body", chromedp.ByQuery)) == nil {
			return nil
		}
	}
	if err != nil {
		return &OpError{Op: "goto", Target: url, Err: fmt.Errorf("%w: %v", ErrNavigation, err)}
	}
	return nil
}

// Frames attaches to the out-of-process iframes of the browser. Same-origin
// frames share the page's target and are reachable through the page itself.
func (p *chromePage) Frames(ctx context.Context) ([]Document, error) {
	infos, err := targets(ctx, p.ctx)
	if err != nil {
		return nil, &OpError{Op: "list frames", Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	var docs []Document
	for _, info := range infos {
		if info.Type != targetTypeIframe {
			continue
		}
		doc, ok := p.frames[info.TargetID]
		if !ok {
			// attached contexts live as long as the page
			frameCtx, cancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(info.TargetID))
			p.frameCancels = append(p.frameCancels, cancel)
			doc = &chromeDoc{ctx: frameCtx}
			p.frames[info.TargetID] = doc
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if err := p.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return &OpError{Op: "evaluate", Err: err}
	}
	return nil
}

func (p *chromePage) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.frames = nil
	cancels := p.frameCancels
	p.frameCancels = nil
	p.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := p.run(closeCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return cdppage.Close().Do(ctx)
	}))
	p.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return &OpError{Op: "close page", Err: err}
	}
	return nil
}
