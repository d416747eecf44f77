package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nancliu/pm-agent/internal/tui"
	"github.com/spf13/cobra"
)

var tuiUser string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal console as a user",
	Long: `Open the terminal console acting as the given user. Log output goes to
pmagent.log next to the config file. When web.enabled is set, the HTTP API
runs alongside the console.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiUser, "user", "", "username to act as")
	_ = tuiCmd.MarkFlagRequired("user")
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfgPath, err := resolveConfigPath(configPathFlag)
	if err != nil {
		return err
	}
	logPath := filepath.Join(filepath.Dir(cfgPath), "pmagent.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	a, err := openApp(logFile, logFile)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.Lookup(cmd.Context(), tuiUser)
	if err != nil {
		return fmt.Errorf("user %q: %w", tuiUser, err)
	}

	if a.cfg.Web.Enabled {
		stop := runInBackground(cmd.Context(), a.serve, func(err error) {
			a.log.Error(err, "web server")
		})
		// Shutdown must finish before the deferred Close drops the store.
		defer stop()
	}

	return tui.Run(a.tasks, user.Principal())
}

// runInBackground runs fn in its own goroutine. The returned stop cancels
// fn's context and blocks until fn has returned.
func runInBackground(ctx context.Context, fn func(context.Context) error, onErr func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fn(ctx); err != nil {
			onErr(err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
