package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hochfrequenz/linkbot/internal/detect"
	"github.com/hochfrequenz/linkbot/internal/driver"
)

// Step names
const (
	StepLaunchBrowser    = "launch-browser"
	StepOpenTarget       = "open-target"
	StepFederatedLogin   = "federated-login"
	StepAwaitLoginWindow = "await-login-window"
	StepAwaitSignIn      = "await-sign-in"
	StepScrollFeed       = "scroll-feed"
)

// Mandatory returns the steps that must succeed before the bot counts as running
func Mandatory() []Step {
	return []Step{LaunchBrowser{}, OpenTarget{}}
}

// Background returns the best-effort steps that follow, in order
func Background() []Step {
	return []Step{FederatedLogin{}, AwaitLoginWindow{}, AwaitSignIn{}, ScrollFeed{}}
}

// LaunchBrowser starts the browser, opens a page and sets its identity
type LaunchBrowser struct{}

func (LaunchBrowser) Name() string { return StepLaunchBrowser }

func (LaunchBrowser) CanExecute(c *Context) bool {
	return c.Driver != nil && c.Browser() == nil
}

func (LaunchBrowser) Execute(ctx context.Context, c *Context) error {
	c.record(MsgLaunchingBrowser.Info().AsAdvanced())
	launchCtx, cancel := bounded(ctx, c.Settings.LaunchTimeout)
	browser, err := c.Driver.Launch(launchCtx, c.Settings.Launch)
	cancel()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	c.setBrowser(browser)
	c.record(MsgBrowserLaunched.Success())

	actCtx, cancel := bounded(ctx, c.Settings.ActionTimeout)
	page, err := browser.NewPage(actCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("opening page: %w", err)
	}
	c.setPage(page)

	if ua := c.Profile.UserAgent; ua != "" {
		actCtx, cancel := bounded(ctx, c.Settings.ActionTimeout)
		err := page.SetUserAgent(actCtx, ua)
		cancel()
		if err != nil {
			return fmt.Errorf("setting user agent: %w", err)
		}
		c.record(MsgUserAgentSet.Info().AsAdvanced())
	}
	return nil
}

// OpenTarget navigates to the profile's base URL and checks whether an
// existing session is already signed in
type OpenTarget struct{}

func (OpenTarget) Name() string { return StepOpenTarget }

func (OpenTarget) CanExecute(c *Context) bool {
	return c.Page() != nil
}

func (OpenTarget) Execute(ctx context.Context, c *Context) error {
	page := c.Page()
	url := c.Profile.BaseURL

	c.record(MsgNavigatingTarget.Info())
	c.record(NavigatingTo(url).Info().AsAdvanced())
	err := page.Goto(ctx, url, driver.NavigateOptions{
		Until:   c.Settings.WaitUntil,
		Timeout: c.Settings.NavigationTimeout,
	})
	if err != nil {
		return err
	}
	c.record(NavigationSucceeded(url).Success().AsAdvanced())
	c.record(MsgTargetLoaded.Success())

	// one sample; a logged-out landing page shares the host with the feed
	criteria := c.Profile.Criteria(c.Settings.SignalProbe)
	if res := detect.WaitForSignIn(ctx, page, criteria, c.Settings.SignalProbe, 0); res.Verified {
		c.SetSignedIn(true)
		c.record(MsgAlreadySignedIn.Info())
	}
	return nil
}

// FederatedLogin clicks "Sign in with Google", inside the embedded widget when
// present and through the fallback selectors otherwise
type FederatedLogin struct{}

func (FederatedLogin) Name() string { return StepFederatedLogin }

func (FederatedLogin) CanExecute(c *Context) bool {
	return c.Page() != nil && !c.SignedIn()
}

func (FederatedLogin) Execute(ctx context.Context, c *Context) error {
	page := c.Page()
	fed := c.Profile.Federated
	c.record(MsgLookingForLoginButton.Info())

	if fed.FrameURL != "" {
		c.record(MsgLookingForFrame.Info().AsAdvanced())
		if frame, ok := detect.FindFrame(ctx, page, fed.FrameURL, c.Settings.FrameScan); ok {
			c.record(MsgFoundGoogleFrame.Success().AsAdvanced())
			c.record(MsgLookingInFrame.Info().AsAdvanced())
			if err := clickWhenVisible(ctx, frame, fed.FrameButton, c.Settings.FrameButton, c.Settings.ActionTimeout); err != nil {
				c.record(ClickFailed(err).Error())
				return err
			}
			awaitHuman(c)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	c.record(MsgFrameFallback.Info().AsAdvanced())
	sel, ok := detect.ProbeSelectors(ctx, page, fed.Fallbacks, c.Settings.FallbackProbe)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		c.record(MsgLoginButtonNotFound.Warning())
		return ErrLoginButtonNotFound
	}
	c.record(ButtonFoundWithSelector(sel).Info().AsAdvanced())
	if err := click(ctx, page, sel, c.Settings.ActionTimeout); err != nil {
		c.record(ClickFailed(err).Error())
		return err
	}
	awaitHuman(c)
	return nil
}

func clickWhenVisible(ctx context.Context, doc driver.Document, selector string, wait, action time.Duration) error {
	if err := doc.WaitForSelector(ctx, selector, wait); err != nil {
		return err
	}
	return click(ctx, doc, selector, action)
}

// click bounds the click itself; a node that detaches after the wait would
// otherwise be polled for until cancellation
func click(ctx context.Context, doc driver.Document, selector string, timeout time.Duration) error {
	clickCtx, cancel := bounded(ctx, timeout)
	defer cancel()
	return doc.Click(clickCtx, selector)
}

func awaitHuman(c *Context) {
	c.record(MsgLoginButtonClicked.Success())
	c.record(MsgWaitingForAccount.Info())
	c.notify(MsgAwaitingHumanStep)
}

// AwaitLoginWindow waits for the Google login popup to come and go. Every
// outcome is acceptable.
type AwaitLoginWindow struct{}

func (AwaitLoginWindow) Name() string { return StepAwaitLoginWindow }

func (AwaitLoginWindow) CanExecute(c *Context) bool {
	return c.Browser() != nil && !c.SignedIn() && c.Profile.Federated.WindowURL != ""
}

func (AwaitLoginWindow) Execute(ctx context.Context, c *Context) error {
	outcome := detect.WaitForWindowClosure(ctx, c.Browser(), c.Profile.Federated.WindowURL, c.Settings.Window)
	if err := ctx.Err(); err != nil {
		return err
	}
	switch outcome {
	case detect.NotOpened:
		c.record(MsgPopupNotOpened.Info().AsAdvanced())
	case detect.Closed:
		c.record(MsgPopupClosed.Success())
	case detect.StillOpen:
		c.record(MsgPopupStillOpen.Warning())
	}
	return nil
}

// AwaitSignIn polls for a signed-in page. A deadline without verification is
// reported, not failed.
type AwaitSignIn struct{}

func (AwaitSignIn) Name() string { return StepAwaitSignIn }

func (AwaitSignIn) CanExecute(c *Context) bool {
	return c.Page() != nil
}

func (AwaitSignIn) Execute(ctx context.Context, c *Context) error {
	c.record(MsgCheckingSignIn.Info())
	s := c.Settings
	res := detect.WaitForSignIn(ctx, c.Page(), c.Profile.Criteria(s.SignalProbe), s.SignInInterval, s.SignInDeadline)
	if err := ctx.Err(); err != nil {
		return err
	}

	switch {
	case res.Verified:
		if res.Signal != "" {
			c.record(SignInAt(res.Signal, res.URL).Info().AsAdvanced())
		}
		c.record(MsgSignInVerified.Success())
		c.SetSignedIn(true)
	case res.BestEffort():
		c.record(MsgSignInBestEffort.Warning())
		c.SetSignedIn(true)
	default:
		c.record(MsgSignInPending.Warning())
		c.SetSignedIn(false)
	}
	return nil
}

// ScrollFeed scrolls the signed-in feed until cancelled or MaxDuration elapses
type ScrollFeed struct{}

func (ScrollFeed) Name() string { return StepScrollFeed }

func (ScrollFeed) CanExecute(c *Context) bool {
	cfg := c.Settings.Scroll
	if !cfg.Enabled || cfg.Pixels <= 0 || cfg.MaxDuration <= 0 {
		return false
	}
	return c.Page() != nil && c.SignedIn()
}

func (ScrollFeed) Execute(ctx context.Context, c *Context) error {
	cfg := c.Settings.Scroll
	page := c.Page()
	script := fmt.Sprintf("window.scrollBy(0, %d)", cfg.Pixels)

	c.record(MsgScrollStarted.Info())
	deadline := time.NewTimer(cfg.MaxDuration)
	defer deadline.Stop()
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scrolled := 0
	for {
		select {
		case <-ctx.Done():
			c.record(Scrolled(scrolled).Info().AsAdvanced())
			return ctx.Err()
		case <-deadline.C:
			c.record(Scrolled(scrolled).Info().AsAdvanced())
			c.record(MsgScrollFinished.Success())
			return nil
		case <-ticker.C:
			evalCtx, cancel := bounded(ctx, c.Settings.ActionTimeout)
			err := page.Evaluate(evalCtx, script, nil)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					c.record(Scrolled(scrolled).Info().AsAdvanced())
					return ctx.Err()
				}
				return fmt.Errorf("scrolling feed: %w", err)
			}
			scrolled++
		}
	}
}
