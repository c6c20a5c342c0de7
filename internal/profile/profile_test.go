package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()

	require.NoError(t, p.Validate())
	assert.Equal(t, "https://www.linkedin.com", p.BaseURL)
	assert.Equal(t, "accounts.google.com/gsi", p.Federated.FrameURL)
	assert.Equal(t, `div[role="button"]`, p.Federated.FrameButton)
	assert.Len(t, p.Federated.Fallbacks, 7)
	assert.Equal(t, DefaultUserAgent, p.UserAgent)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	content := `
name: staging
base_url: https://staging.example.com
sign_in:
  host: example.com
  signals: ["#avatar"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", p.Name)
	assert.Equal(t, "https://staging.example.com", p.BaseURL)
	assert.Equal(t, []string{"#avatar"}, p.SignIn.Signals)
	assert.Equal(t, "example.com", p.SignIn.Host)
	// untouched sections keep their defaults
	assert.Equal(t, "accounts.google.com", p.Federated.WindowURL)
	assert.Equal(t, DefaultUserAgent, p.UserAgent)

	c := p.Criteria(time.Second)
	assert.Equal(t, "example.com", c.Host)
	assert.True(t, c.AddressSignedIn("https://app.example.com/home"))
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("base_url: [unterminated"), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parsing profile")

	relative := filepath.Join(dir, "relative.yaml")
	require.NoError(t, os.WriteFile(relative, []byte("base_url: /feed\n"), 0644))
	_, err = Load(relative)
	assert.ErrorContains(t, err, "base_url")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	p := Default()
	p.Name = "saved"

	require.NoError(t, p.Save(path))
	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, Default().Save(path))

	store := NewStore(Default())
	w, err := NewWatcher(path, store, nil)
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0644))

	p := Default()
	p.Name = "edited"
	require.NoError(t, p.Save(path))

	assert.Eventually(t, func() bool {
		return store.Current().Name == "edited"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsPreviousOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, Default().Save(path))

	store := NewStore(Default())
	reloaded := make(chan error, 64)
	w, err := NewWatcher(path, store, func(_ *Profile, err error) {
		select {
		case reloaded <- err:
		default:
		}
	})
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("sign_in: {host: \"\"}\n"), 0644))

	var failed error
	assert.Eventually(t, func() bool {
		select {
		case err := <-reloaded:
			failed = err
		default:
		}
		return failed != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "linkedin", store.Current().Name)
}
