package main

import (
	"fmt"
	"os"

	"github.com/hochfrequenz/linkbot/internal/config"
	"github.com/hochfrequenz/linkbot/internal/profile"
	"github.com/hochfrequenz/linkbot/internal/protocol"
	"github.com/spf13/cobra"
)

var (
	serverURL     string
	logsFollow    bool
	logsTechnical bool
	forceInit     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default from config)")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bot on a running server",
		RunE:  runStart,
	}
	rootCmd.AddCommand(startCmd)

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the bot and close its browser",
		RunE:  runStop,
	}
	rootCmd.AddCommand(stopCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the bot's lifecycle phase",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the event log",
		RunE:  runLogs,
	}
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream new events")
	logsCmd.Flags().BoolVarP(&logsTechnical, "technical", "t", false, "show technical messages and advanced events")
	logsClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the in-memory event log",
		RunE:  runLogsClear,
	}
	logsCmd.AddCommand(logsClearCmd)
	rootCmd.AddCommand(logsCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		RunE:  runConfigInit,
	}
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage target profiles",
	}
	profileInitCmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write the built-in target profile to PATH",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileInit,
	}
	profileInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
	profileCmd.AddCommand(profileInitCmd)
	rootCmd.AddCommand(profileCmd)
}

func newClientFromConfig() (*client, error) {
	if serverURL != "" {
		return newClient(serverURL), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClient(cfg.Web.BaseURL()), nil
}

func runStart(cmd *cobra.Command, args []string) error {
	c, err := newClientFromConfig()
	if err != nil {
		return err
	}
	st, err := c.Start()
	if err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	fmt.Println(formatState(st))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	c, err := newClientFromConfig()
	if err != nil {
		return err
	}
	st, err := c.Stop()
	if err != nil {
		return fmt.Errorf("stop failed: %w", err)
	}
	fmt.Println(formatState(st))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClientFromConfig()
	if err != nil {
		return err
	}
	st, err := c.Status()
	if err != nil {
		return err
	}
	fmt.Println(formatState(st))
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	c, err := newClientFromConfig()
	if err != nil {
		return err
	}
	view := viewMode{technical: logsTechnical}

	if !logsFollow {
		events, err := c.Logs()
		if err != nil {
			return err
		}
		for _, e := range events {
			if view.visible(e) {
				fmt.Println(formatEvent(e, view))
			}
		}
		return nil
	}

	return c.Follow(func(msg *protocol.Message) error {
		switch msg.Type {
		case protocol.TypeInitLogs:
			for _, e := range msg.Events {
				if view.visible(e) {
					fmt.Println(formatEvent(e, view))
				}
			}
		case protocol.TypeNewLog:
			if view.visible(*msg.Event) {
				fmt.Println(formatEvent(*msg.Event, view))
			}
		case protocol.TypeLogsCleared:
			fmt.Println(timeStyle.Render("--- logs cleared ---"))
		}
		return nil
	})
}

func runLogsClear(cmd *cobra.Command, args []string) error {
	c, err := newClientFromConfig()
	if err != nil {
		return err
	}
	if err := c.ClearLogs(); err != nil {
		return err
	}
	fmt.Println("Logs cleared")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := refuseOverwrite(path); err != nil {
		return err
	}
	if err := config.Default().Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runProfileInit(cmd *cobra.Command, args []string) error {
	path := config.ExpandPath(args[0])
	if err := refuseOverwrite(path); err != nil {
		return err
	}
	if err := profile.Default().Save(path); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func refuseOverwrite(path string) error {
	if forceInit {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return nil
}
