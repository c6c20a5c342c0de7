// Package profile describes the web property the bot drives: where it lives,
// what a signed-in page looks like and how its federated login is reached.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hochfrequenz/linkbot/internal/detect"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is a stock desktop Chrome identity
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Profile is the target description, usually loaded from YAML
type Profile struct {
	Name      string    `yaml:"name"`
	BaseURL   string    `yaml:"base_url"`
	UserAgent string    `yaml:"user_agent"`
	SignIn    SignIn    `yaml:"sign_in"`
	Federated Federated `yaml:"federated"`
}

// SignIn is how a signed-in session is recognized
type SignIn struct {
	Host       string   `yaml:"host"`
	LoginPaths []string `yaml:"login_paths"`
	Signals    []string `yaml:"signals"`
}

// Federated locates the "Sign in with Google" entry point
type Federated struct {
	// FrameURL identifies the embedded sign-in widget
	FrameURL string `yaml:"frame_url"`
	// FrameButton is clicked inside the widget
	FrameButton string `yaml:"frame_button"`
	// Fallbacks are tried on the page itself when the widget is absent
	Fallbacks []string `yaml:"fallbacks"`
	// WindowURL identifies the login popup
	WindowURL string `yaml:"window_url"`
}

// Default returns the built-in LinkedIn profile
func Default() *Profile {
	return &Profile{
		Name:      "linkedin",
		BaseURL:   "https://www.linkedin.com",
		UserAgent: DefaultUserAgent,
		SignIn: SignIn{
			Host:       "linkedin.com",
			LoginPaths: []string{"/login", "/uas/login", "/checkpoint", "/authwall", "/signup"},
			Signals: []string{
				"#global-nav",
				".global-nav__me",
				"img.global-nav__me-photo",
				`[data-control-name="identity_welcome_message"]`,
			},
		},
		Federated: Federated{
			FrameURL:    "accounts.google.com/gsi",
			FrameButton: `div[role="button"]`,
			Fallbacks: []string{
				`button[aria-label*="Google"]`,
				`button[data-tracking-control-name*="google"]`,
				`a[href*="google"]`,
				`button[aria-label*="Continue with Google"]`,
				`button[aria-label*="Sign in with Google"]`,
				".sign-in-with-google-button",
				`[data-test-id*="google"]`,
			},
			WindowURL: "accounts.google.com",
		},
	}
}

// Load reads a profile from path. Fields missing from the file keep their
// defaults.
func Load(path string) (*Profile, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Save writes p as YAML
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields the pipeline cannot run without
func (p *Profile) Validate() error {
	var errs []error
	u, err := url.Parse(p.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute URL", p.BaseURL))
	}
	if p.SignIn.Host == "" {
		errs = append(errs, errors.New("sign_in.host is required"))
	}
	if p.Federated.FrameURL == "" && len(p.Federated.Fallbacks) == 0 {
		errs = append(errs, errors.New("federated needs frame_url or fallbacks"))
	}
	return errors.Join(errs...)
}

// Criteria builds the signed-in test for p
func (p *Profile) Criteria(signalProbe time.Duration) detect.SignInCriteria {
	return detect.SignInCriteria{
		Host:        p.SignIn.Host,
		LoginPaths:  p.SignIn.LoginPaths,
		Signals:     p.SignIn.Signals,
		SignalProbe: signalProbe,
	}
}
