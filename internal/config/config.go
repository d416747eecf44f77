package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PMAGENT_WEB_PORT.
const EnvPrefix = "PMAGENT"

// DevSecret is the token secret used when none is configured.
const DevSecret = "pmagent-dev-secret"

type Config struct {
	DB   DBConfig   `mapstructure:"db"`
	Web  WebConfig  `mapstructure:"web"`
	Auth AuthConfig `mapstructure:"auth"`
	Log  LogConfig  `mapstructure:"log"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type WebConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Default() Config {
	return Config{
		DB:   DBConfig{Driver: "sqlite"},
		Web:  WebConfig{Port: 8080, CORSOrigins: []string{"*"}},
		Auth: AuthConfig{Secret: DevSecret, TokenTTL: 24 * time.Hour},
		Log:  LogConfig{Level: "info"},
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "pmagent", "config.yaml"), nil
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

// Load reads path if it exists, then applies .env and PMAGENT_* overrides on
// top of the defaults.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.settings())
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Watch calls onChange with the reloaded config each time the file at path is
// written. The file must exist.
func Watch(path string, onChange func(Config, error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		onChange(Load(path))
	})
	v.WatchConfig()
	return nil
}

// DatabaseDSN returns the connection string for the configured driver, with
// the sqlite file defaulting next to the config file.
func (c Config) DatabaseDSN(configPath string) string {
	if strings.EqualFold(c.DB.Driver, "postgres") {
		return c.DB.DSN
	}
	if c.DB.Path != "" {
		return c.DB.Path
	}
	return filepath.Join(filepath.Dir(configPath), "pmagent.db")
}

func (c Config) settings() map[string]any {
	return map[string]any{
		"db": map[string]any{
			"driver": c.DB.Driver,
			"path":   c.DB.Path,
			"dsn":    c.DB.DSN,
		},
		"web": map[string]any{
			"enabled":      c.Web.Enabled,
			"port":         c.Web.Port,
			"cors_origins": c.Web.CORSOrigins,
		},
		"auth": map[string]any{
			"secret":    c.Auth.Secret,
			"token_ttl": c.Auth.TokenTTL.String(),
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Default()
	for section, values := range defaults.settings() {
		for key, value := range values.(map[string]any) {
			v.SetDefault(section+"."+key, value)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
