package detect

import (
	"context"
	"testing"
	"time"

	"github.com/hochfrequenz/linkbot/internal/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSelectors_FallsBackToLaterSelector(t *testing.T) {
	const per = 40 * time.Millisecond
	doc := drivertest.NewDoc("https://example.com").Show("#third")

	start := time.Now()
	sel, ok := ProbeSelectors(context.Background(), doc, []string{"#first", "#second", "#third"}, per)
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.Equal(t, "#third", sel)
	assert.GreaterOrEqual(t, elapsed, 2*per)
	// bounded by the two misses plus scheduling slack, not any outer deadline
	assert.Less(t, elapsed, 2*per+200*time.Millisecond)
}

func TestProbeSelectors_NoneResolve(t *testing.T) {
	doc := drivertest.NewDoc("https://example.com")

	sel, ok := ProbeSelectors(context.Background(), doc, []string{"#a", "#b"}, 10*time.Millisecond)

	assert.False(t, ok)
	assert.Empty(t, sel)
}

func TestProbeSelectors_LateAppearanceWithinTimeout(t *testing.T) {
	doc := drivertest.NewDoc("https://example.com").ShowAfter("#late", 20*time.Millisecond)

	sel, ok := ProbeSelectors(context.Background(), doc, []string{"#late"}, time.Second)

	assert.True(t, ok)
	assert.Equal(t, "#late", sel)
}

func TestProbeSelectors_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := drivertest.NewDoc("https://example.com").Show("#a")

	_, ok := ProbeSelectors(ctx, doc, []string{"#a"}, time.Second)

	assert.False(t, ok)
}

func TestFindFrame(t *testing.T) {
	page := drivertest.NewPage()
	page.AddFrame("https://ads.example.com/frame")
	gsi := page.AddFrame("https://accounts.google.com/gsi/button?client_id=x")

	frame, ok := FindFrame(context.Background(), page, "accounts.google.com/gsi", FrameScan{Attempts: 1})

	require.True(t, ok)
	assert.Same(t, gsi, frame)
}

func TestFindFrame_RescansAfterSettle(t *testing.T) {
	page := drivertest.NewPage()
	time.AfterFunc(30*time.Millisecond, func() {
		page.AddFrame("https://accounts.google.com/gsi/button")
	})

	_, ok := FindFrame(context.Background(), page, "accounts.google.com/gsi",
		FrameScan{Settle: 25 * time.Millisecond, Attempts: 4})

	assert.True(t, ok)
}

func TestFindFrame_Missing(t *testing.T) {
	page := drivertest.NewPage()
	page.AddFrame("https://ads.example.com/frame")

	frame, ok := FindFrame(context.Background(), page, "accounts.google.com/gsi",
		FrameScan{Settle: time.Millisecond, Attempts: 2})

	assert.False(t, ok)
	assert.Nil(t, frame)
}

func TestWaitForWindowClosure(t *testing.T) {
	wait := WindowWait{AppearWithin: 100 * time.Millisecond, Poll: 5 * time.Millisecond, MaxOpen: 100 * time.Millisecond}

	t.Run("never opened", func(t *testing.T) {
		b := drivertest.NewBrowser()
		assert.Equal(t, NotOpened, WaitForWindowClosure(context.Background(), b, "accounts.google.com", wait))
	})

	t.Run("opens and closes", func(t *testing.T) {
		b := drivertest.NewBrowser()
		time.AfterFunc(10*time.Millisecond, func() {
			id := b.OpenWindow("https://accounts.google.com/o/oauth2")
			time.AfterFunc(20*time.Millisecond, func() { b.CloseWindow(id) })
		})
		assert.Equal(t, Closed, WaitForWindowClosure(context.Background(), b, "accounts.google.com", wait))
	})

	t.Run("stays open", func(t *testing.T) {
		b := drivertest.NewBrowser()
		b.OpenWindow("https://accounts.google.com/signin")
		assert.Equal(t, StillOpen, WaitForWindowClosure(context.Background(), b, "accounts.google.com", wait))
	})

	t.Run("cancelled while open", func(t *testing.T) {
		b := drivertest.NewBrowser()
		b.OpenWindow("https://accounts.google.com/signin")
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		long := wait
		long.MaxOpen = time.Minute
		assert.Equal(t, StillOpen, WaitForWindowClosure(ctx, b, "accounts.google.com", long))
	})
}

func TestAddressSignedIn(t *testing.T) {
	c := SignInCriteria{Host: "linkedin.com", LoginPaths: []string{"/login", "/checkpoint", "/authwall"}}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/feed/", true},
		{"https://linkedin.com/in/someone", true},
		{"https://www.linkedin.com/login?trk=guest", false},
		{"https://www.linkedin.com/checkpoint/lg/login-submit", false},
		{"https://accounts.google.com/o/oauth2", false},
		{"https://notlinkedin.com/feed", false},
		{"about:blank", false},
		{"::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, c.AddressSignedIn(tt.url))
		})
	}
}

func TestWaitForSignIn(t *testing.T) {
	criteria := SignInCriteria{
		Host:        "linkedin.com",
		LoginPaths:  []string{"/login"},
		Signals:     []string{".global-nav__me", "#profile-nav-item"},
		SignalProbe: 5 * time.Millisecond,
	}

	t.Run("verified after redirect", func(t *testing.T) {
		page := drivertest.NewPage()
		page.SetURL("https://www.linkedin.com/login")
		time.AfterFunc(20*time.Millisecond, func() {
			page.SetURL("https://www.linkedin.com/feed/")
			page.Show("#profile-nav-item")
		})

		res := WaitForSignIn(context.Background(), page, criteria, 5*time.Millisecond, time.Second)

		assert.True(t, res.Verified)
		assert.True(t, res.AddressOK)
		assert.Equal(t, "#profile-nav-item", res.Signal)
		assert.Equal(t, "https://www.linkedin.com/feed/", res.URL)
	})

	t.Run("best effort on address only", func(t *testing.T) {
		page := drivertest.NewPage()
		page.SetURL("https://www.linkedin.com/feed/")

		res := WaitForSignIn(context.Background(), page, criteria, 5*time.Millisecond, 40*time.Millisecond)

		assert.False(t, res.Verified)
		assert.True(t, res.BestEffort())
	})

	t.Run("still on login page", func(t *testing.T) {
		page := drivertest.NewPage()
		page.SetURL("https://www.linkedin.com/login")
		page.Show(".global-nav__me")

		res := WaitForSignIn(context.Background(), page, criteria, 5*time.Millisecond, 30*time.Millisecond)

		assert.False(t, res.Verified)
		assert.False(t, res.AddressOK)
		assert.False(t, res.BestEffort())
	})

	t.Run("address alone without signals", func(t *testing.T) {
		page := drivertest.NewPage()
		page.SetURL("https://www.linkedin.com/feed/")
		noSignals := criteria
		noSignals.Signals = nil

		res := WaitForSignIn(context.Background(), page, noSignals, 5*time.Millisecond, time.Second)

		assert.True(t, res.Verified)
	})
}
