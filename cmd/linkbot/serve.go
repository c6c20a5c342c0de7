package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hochfrequenz/linkbot/internal/bot"
	"github.com/hochfrequenz/linkbot/internal/config"
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/hochfrequenz/linkbot/internal/driver"
	"github.com/hochfrequenz/linkbot/internal/logbus"
	"github.com/hochfrequenz/linkbot/internal/notify"
	"github.com/hochfrequenz/linkbot/internal/profile"
	"github.com/hochfrequenz/linkbot/internal/schedule"
	"github.com/hochfrequenz/linkbot/internal/telemetry"
	"github.com/hochfrequenz/linkbot/web/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	servePort      int
	serveHeadless  bool
	serveAutostart bool
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot server and its control surface",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run the browser without a window")
	serveCmd.Flags().BoolVar(&serveAutostart, "start", false, "start the bot right away")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Web.Port = servePort
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = serveHeadless
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.NewProvider(cfg.TracingConfig())
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	bus := logbus.New(
		logbus.WithCapacity(cfg.Logs.Capacity),
		logbus.WithLogDir(cfg.Logs.Dir),
		logbus.WithLogger(logger),
	)

	profiles, watcher, err := setupProfile(cfg, bus, logger)
	if err != nil {
		return err
	}

	orch := bot.New(driver.NewChrome(logger), bus,
		bot.WithProfile(profiles.Current),
		bot.WithSettings(cfg.Settings()),
		bot.WithTracer(tracing.Tracer()),
		bot.WithNotifier(buildNotifier(cfg)),
		bot.WithLogger(logger),
	)

	sched, err := schedule.NewScheduler(cfg.Windows(), orch, bus, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(orch, bus, cfg.Web.Addr(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if serveAutostart {
		g.Go(func() error {
			if err := orch.Start(gctx); err != nil {
				logger.Warn("autostart failed", "error", err)
			}
			return nil
		})
	}

	fmt.Printf("linkbot control surface at %s\n", cfg.Web.BaseURL())
	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if cerr := orch.Close(closeCtx); cerr != nil {
		logger.Warn("stopping bot on shutdown", "error", cerr)
	}
	return err
}

// setupProfile loads the target profile and, when configured, a watcher
// that hot-reloads it for the next start
func setupProfile(cfg *config.Config, bus *logbus.Bus, logger *slog.Logger) (*profile.Store, *profile.Watcher, error) {
	if cfg.Profile.Path == "" {
		return profile.NewStore(profile.Default()), nil, nil
	}
	p, err := profile.Load(cfg.Profile.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading profile: %w", err)
	}
	store := profile.NewStore(p)
	if !cfg.Profile.Watch {
		return store, nil, nil
	}

	watcher, err := profile.NewWatcher(cfg.Profile.Path, store, func(p *profile.Profile, err error) {
		if err != nil {
			bus.Record(domain.Warning("Profile reload failed, keeping previous profile: "+err.Error(), "").AsAdvanced())
			return
		}
		bus.Record(domain.Info("Profile reloaded: "+p.Name, "").AsAdvanced())
	})
	if err != nil {
		return nil, nil, fmt.Errorf("watching profile: %w", err)
	}
	watcher.SetLogger(logger)
	return store, watcher, nil
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}
