package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/nancliu/pm-agent/internal/accounts"
	"github.com/nancliu/pm-agent/internal/auth"
	"github.com/nancliu/pm-agent/internal/config"
	"github.com/nancliu/pm-agent/internal/db"
	"github.com/nancliu/pm-agent/internal/lifecycle"
	"github.com/nancliu/pm-agent/internal/logging"
	"github.com/spf13/cobra"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   "pmagent",
	Short: "Project and task management backend",
	Long: `pmagent tracks tasks through a fixed status workflow with per-field
change history, soft deletion with an audit ledger, and role-based
permissions for admins, managers and members.

Run "pmagent serve" for the HTTP API or "pmagent tui --user <name>" for the
terminal console.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
}

// app holds everything a command needs once config and store are open.
type app struct {
	cfgPath string
	cfg     config.Config
	log     *logging.Logger
	store   *db.Store
	tasks   *lifecycle.Service
	users   *accounts.Service
	tokens  *auth.Issuer
}

// openApp loads config, writing defaults on first run, and opens the store.
// Log lines go to out and errOut.
func openApp(out, errOut io.Writer) (*app, error) {
	cfgPath, err := resolveConfigPath(configPathFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		if err := config.Save(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(out, errOut, level)
	if cfg.Auth.Secret == config.DevSecret {
		logger.Infof("auth.secret is the development default; set %s_AUTH_SECRET before exposing the API", config.EnvPrefix)
	}

	store, err := openStore(cfg, cfgPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfgPath: cfgPath,
		cfg:     cfg,
		log:     logger,
		store:   store,
		tasks:   lifecycle.New(store, logger),
		users:   accounts.New(store, logger),
		tokens:  auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
	}
	a.watchConfig()
	return a, nil
}

// watchConfig re-applies the log level when the config file changes. Other
// settings take effect on restart.
func (a *app) watchConfig() {
	err := config.Watch(a.cfgPath, func(cfg config.Config, err error) {
		if err != nil {
			a.log.Error(err, "reload config")
			return
		}
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			a.log.Error(err, "reload config")
			return
		}
		if level != a.log.Level() {
			a.log.SetLevel(level)
			a.log.Infof("log level set to %s", level)
		}
	})
	if err != nil {
		a.log.Debugf("config watch disabled: %v", err)
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func openStore(cfg config.Config, cfgPath string) (*db.Store, error) {
	dialect, err := db.ParseDialect(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Open(dialect, cfg.DatabaseDSN(cfgPath))
	if err != nil {
		return nil, err
	}

	return db.NewStore(sqlDB, dialect), nil
}
