package detect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/hochfrequenz/linkbot/internal/driver"
)

const defaultSignalProbe = 500 * time.Millisecond

// SignInCriteria describes what a signed-in page looks like
type SignInCriteria struct {
	// Host is the target host; subdomains match too
	Host string
	// LoginPaths are path prefixes of pages that still ask for credentials
	LoginPaths []string
	// Signals are selectors of elements only shown to a signed-in user
	Signals []string
	// SignalProbe bounds each signal selector
	SignalProbe time.Duration
}

// AddressSignedIn reports whether rawURL is on the target host and outside
// every login path
func (c SignInCriteria) AddressSignedIn(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	want := strings.ToLower(c.Host)
	if host != want && !strings.HasSuffix(host, "."+want) {
		return false
	}
	for _, p := range c.LoginPaths {
		if strings.HasPrefix(u.Path, p) {
			return false
		}
	}
	return true
}

// SignInResult is the last sample taken by WaitForSignIn
type SignInResult struct {
	// Verified means address and a page signal both passed
	Verified bool
	// AddressOK means the address test passed
	AddressOK bool
	// Signal is the selector that matched, if any
	Signal string
	URL    string
}

// BestEffort reports the fail-open case: the address looks signed in but no
// signal confirmed it
func (r SignInResult) BestEffort() bool {
	return r.AddressOK && !r.Verified
}

// WaitForSignIn samples page every interval until it is verifiably signed in
// or deadline elapses. Expiry is not an error; the caller decides what an
// unverified result means.
func WaitForSignIn(ctx context.Context, page driver.Page, c SignInCriteria, interval, deadline time.Duration) SignInResult {
	probe := c.SignalProbe
	if probe <= 0 {
		probe = defaultSignalProbe
	}

	var last SignInResult
	pollUntil(ctx, interval, deadline, func() bool {
		last = sampleSignIn(ctx, page, c, probe)
		return last.Verified
	})
	return last
}

func sampleSignIn(ctx context.Context, page driver.Page, c SignInCriteria, probe time.Duration) SignInResult {
	addr, err := page.URL(ctx)
	if err != nil {
		return SignInResult{}
	}
	res := SignInResult{URL: addr, AddressOK: c.AddressSignedIn(addr)}
	if !res.AddressOK {
		return res
	}
	if len(c.Signals) == 0 {
		res.Verified = true
		return res
	}
	if sel, ok := ProbeSelectors(ctx, page, c.Signals, probe); ok {
		res.Verified = true
		res.Signal = sel
	}
	return res
}
