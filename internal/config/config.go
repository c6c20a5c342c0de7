package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hochfrequenz/linkbot/internal/detect"
	"github.com/hochfrequenz/linkbot/internal/driver"
	"github.com/hochfrequenz/linkbot/internal/pipeline"
	"github.com/hochfrequenz/linkbot/internal/schedule"
	"github.com/hochfrequenz/linkbot/internal/telemetry"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LINKBOT_WEB_PORT
const EnvPrefix = "LINKBOT"

// Config holds all application configuration
type Config struct {
	Web           WebConfig           `toml:"web" mapstructure:"web"`
	Browser       BrowserConfig       `toml:"browser" mapstructure:"browser"`
	Logs          LogsConfig          `toml:"logs" mapstructure:"logs"`
	Detection     DetectionConfig     `toml:"detection" mapstructure:"detection"`
	Scroll        ScrollConfig        `toml:"scroll" mapstructure:"scroll"`
	Profile       ProfileConfig       `toml:"profile" mapstructure:"profile"`
	Schedule      ScheduleConfig      `toml:"schedule" mapstructure:"schedule"`
	Notifications NotificationsConfig `toml:"notifications" mapstructure:"notifications"`
	Telemetry     TelemetryConfig     `toml:"telemetry" mapstructure:"telemetry"`
}

// WebConfig holds control surface settings
type WebConfig struct {
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`
}

// Addr returns host:port
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// BaseURL returns the URL clients use to reach the server
func (w WebConfig) BaseURL() string {
	return "http://" + w.Addr()
}

// BrowserConfig holds browser launch settings
type BrowserConfig struct {
	Headless          bool     `toml:"headless" mapstructure:"headless"`
	ExecPath          string   `toml:"exec_path" mapstructure:"exec_path"`
	UserDataDir       string   `toml:"user_data_dir" mapstructure:"user_data_dir"`
	WindowWidth       int      `toml:"window_width" mapstructure:"window_width"`
	WindowHeight      int      `toml:"window_height" mapstructure:"window_height"`
	LaunchTimeout     Duration `toml:"launch_timeout" mapstructure:"launch_timeout"`
	NavigationTimeout Duration `toml:"navigation_timeout" mapstructure:"navigation_timeout"`
	// WaitUntil is "load" or "domcontentloaded"
	WaitUntil string `toml:"wait_until" mapstructure:"wait_until"`
	// Flags are extra Chrome command-line switches, e.g. "proxy-server"
	Flags map[string]interface{} `toml:"flags,omitempty" mapstructure:"flags"`
}

// LogsConfig holds event log settings
type LogsConfig struct {
	Dir      string `toml:"dir" mapstructure:"dir"`
	Capacity int    `toml:"capacity" mapstructure:"capacity"`
}

// DetectionConfig bounds the waits of the login detection
type DetectionConfig struct {
	FrameSettle    Duration `toml:"frame_settle" mapstructure:"frame_settle"`
	FrameAttempts  int      `toml:"frame_attempts" mapstructure:"frame_attempts"`
	FrameButton    Duration `toml:"frame_button" mapstructure:"frame_button"`
	FallbackProbe  Duration `toml:"fallback_probe" mapstructure:"fallback_probe"`
	WindowAppear   Duration `toml:"window_appear" mapstructure:"window_appear"`
	WindowPoll     Duration `toml:"window_poll" mapstructure:"window_poll"`
	WindowMaxOpen  Duration `toml:"window_max_open" mapstructure:"window_max_open"`
	SignInInterval Duration `toml:"sign_in_interval" mapstructure:"sign_in_interval"`
	SignInDeadline Duration `toml:"sign_in_deadline" mapstructure:"sign_in_deadline"`
	SignalProbe    Duration `toml:"signal_probe" mapstructure:"signal_probe"`
	// ActionTimeout bounds each click, script and page setup call
	ActionTimeout Duration `toml:"action_timeout" mapstructure:"action_timeout"`
}

// ScrollConfig holds feed scroll settings
type ScrollConfig struct {
	Enabled     bool     `toml:"enabled" mapstructure:"enabled"`
	Pixels      int      `toml:"pixels" mapstructure:"pixels"`
	Interval    Duration `toml:"interval" mapstructure:"interval"`
	MaxDuration Duration `toml:"max_duration" mapstructure:"max_duration"`
}

// ProfileConfig points at the target profile file. An empty path uses the
// built-in profile.
type ProfileConfig struct {
	Path  string `toml:"path" mapstructure:"path"`
	Watch bool   `toml:"watch" mapstructure:"watch"`
}

// ScheduleConfig holds the auto-start windows
type ScheduleConfig struct {
	Windows []WindowConfig `toml:"window" mapstructure:"window"`
}

// WindowConfig is one auto-start window
type WindowConfig struct {
	Name        string   `toml:"name" mapstructure:"name"`
	Cron        string   `toml:"cron" mapstructure:"cron"`
	MaxDuration Duration `toml:"max_duration" mapstructure:"max_duration"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop" mapstructure:"desktop"`
	SlackWebhook string `toml:"slack_webhook" mapstructure:"slack_webhook"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" mapstructure:"enabled"`
	Exporter    string `toml:"exporter" mapstructure:"exporter"`
	FilePath    string `toml:"file_path" mapstructure:"file_path"`
	ServiceName string `toml:"service_name" mapstructure:"service_name"`
}

// Duration is a time.Duration written as "30s" in config files
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	s := pipeline.DefaultSettings()
	return &Config{
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Browser: BrowserConfig{
			Headless:          false,
			UserDataDir:       filepath.Join(home, ".linkbot", "chrome-profile"),
			LaunchTimeout:     Duration(s.LaunchTimeout),
			NavigationTimeout: Duration(s.NavigationTimeout),
			WaitUntil:         string(driver.WaitLoad),
		},
		Logs: LogsConfig{
			Dir:      filepath.Join(home, ".linkbot", "logs"),
			Capacity: 100,
		},
		Detection: DetectionConfig{
			FrameSettle:    Duration(s.FrameScan.Settle),
			FrameAttempts:  s.FrameScan.Attempts,
			FrameButton:    Duration(s.FrameButton),
			FallbackProbe:  Duration(s.FallbackProbe),
			WindowAppear:   Duration(s.Window.AppearWithin),
			WindowPoll:     Duration(s.Window.Poll),
			WindowMaxOpen:  Duration(s.Window.MaxOpen),
			SignInInterval: Duration(s.SignInInterval),
			SignInDeadline: Duration(s.SignInDeadline),
			SignalProbe:    Duration(s.SignalProbe),
			ActionTimeout:  Duration(s.ActionTimeout),
		},
		Scroll: ScrollConfig{
			Enabled:     s.Scroll.Enabled,
			Pixels:      s.Scroll.Pixels,
			Interval:    Duration(s.Scroll.Interval),
			MaxDuration: Duration(s.Scroll.MaxDuration),
		},
		Profile: ProfileConfig{
			Watch: true,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "stdout",
			ServiceName: "linkbot",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// Environment variables prefixed with LINKBOT_ override both.
func Load(path string) (*Config, error) {
	v, err := newViper(Default())
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Browser.UserDataDir = ExpandPath(cfg.Browser.UserDataDir)
	cfg.Browser.ExecPath = ExpandPath(cfg.Browser.ExecPath)
	cfg.Logs.Dir = ExpandPath(cfg.Logs.Dir)
	cfg.Profile.Path = ExpandPath(cfg.Profile.Path)
	cfg.Telemetry.FilePath = ExpandPath(cfg.Telemetry.FilePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance whose known keys and defaults come from
// base, so every key can be overridden from the environment
func newViper(base *Config) (*viper.Viper, error) {
	data, err := toml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	return v, nil
}

// Validate checks values the bot cannot run with
func (c *Config) Validate() error {
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	if c.Logs.Capacity <= 0 {
		return fmt.Errorf("logs.capacity must be positive")
	}
	switch driver.WaitUntil(c.Browser.WaitUntil) {
	case driver.WaitLoad, driver.WaitDOMContentLoaded:
	default:
		return fmt.Errorf("browser.wait_until must be %q or %q", driver.WaitLoad, driver.WaitDOMContentLoaded)
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be positive")
	}
	if c.Detection.ActionTimeout <= 0 {
		return fmt.Errorf("detection.action_timeout must be positive")
	}
	if c.Scroll.Enabled {
		if c.Scroll.Pixels <= 0 {
			return fmt.Errorf("scroll.pixels must be positive when scrolling is enabled")
		}
		if c.Scroll.Interval <= 0 {
			return fmt.Errorf("scroll.interval must be positive when scrolling is enabled")
		}
		if c.Scroll.MaxDuration <= 0 {
			return fmt.Errorf("scroll.max_duration must be positive when scrolling is enabled")
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Exporter == "file" && c.Telemetry.FilePath == "" {
		return fmt.Errorf("telemetry.file_path is required for the file exporter")
	}
	for i := range c.Schedule.Windows {
		w := c.Schedule.Windows[i].Window()
		if err := w.Validate(); err != nil {
			return fmt.Errorf("schedule window %d: %w", i, err)
		}
	}
	return nil
}

// Save writes the config as TOML, creating parent directories
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Settings converts the config into pipeline timings
func (c *Config) Settings() pipeline.Settings {
	d := c.Detection
	return pipeline.Settings{
		Launch: driver.LaunchOptions{
			Headless:     c.Browser.Headless,
			ExecPath:     c.Browser.ExecPath,
			UserDataDir:  c.Browser.UserDataDir,
			WindowWidth:  c.Browser.WindowWidth,
			WindowHeight: c.Browser.WindowHeight,
			ExtraFlags:   c.Browser.Flags,
		},
		LaunchTimeout:     c.Browser.LaunchTimeout.Std(),
		NavigationTimeout: c.Browser.NavigationTimeout.Std(),
		WaitUntil:         driver.WaitUntil(c.Browser.WaitUntil),
		ActionTimeout:     d.ActionTimeout.Std(),
		FrameScan:         detect.FrameScan{Settle: d.FrameSettle.Std(), Attempts: d.FrameAttempts},
		FrameButton:       d.FrameButton.Std(),
		FallbackProbe:     d.FallbackProbe.Std(),
		Window: detect.WindowWait{
			AppearWithin: d.WindowAppear.Std(),
			Poll:         d.WindowPoll.Std(),
			MaxOpen:      d.WindowMaxOpen.Std(),
		},
		SignInInterval: d.SignInInterval.Std(),
		SignInDeadline: d.SignInDeadline.Std(),
		SignalProbe:    d.SignalProbe.Std(),
		Scroll: pipeline.ScrollSettings{
			Enabled:     c.Scroll.Enabled,
			Pixels:      c.Scroll.Pixels,
			Interval:    c.Scroll.Interval.Std(),
			MaxDuration: c.Scroll.MaxDuration.Std(),
		},
	}
}

// Window converts the config entry into a schedule window
func (w WindowConfig) Window() schedule.Window {
	return schedule.Window{Name: w.Name, Cron: w.Cron, MaxDuration: w.MaxDuration.Std()}
}

// Windows returns the schedule windows
func (c *Config) Windows() []schedule.Window {
	out := make([]schedule.Window, len(c.Schedule.Windows))
	for i, w := range c.Schedule.Windows {
		out[i] = w.Window()
	}
	return out
}

// TracingConfig returns the tracing settings
func (c *Config) TracingConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:     c.Telemetry.Enabled,
		Exporter:    c.Telemetry.Exporter,
		FilePath:    c.Telemetry.FilePath,
		ServiceName: c.Telemetry.ServiceName,
	}
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "linkbot", "config.toml")
}
