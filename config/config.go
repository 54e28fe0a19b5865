/*
Package config loads runtime settings for the ledger service.

PRECEDENCE (highest first):
  1. Command-line flags bound by the caller
  2. Environment variables, prefixed INVLEDGER_ (db.path -> INVLEDGER_DB_PATH)
  3. .env in the working directory
  4. inventory-ledger.yaml in the working directory
  5. Built-in defaults

KEYS:
  db.path                              SQLite file, ":memory:" allowed
  http.port                            Listen port
  http.cors_origins                    Comma-separated allowed origins
  export.dir                           Where CSV exports are written
  log.level / log.format / log.output  See package logger
  product.default_low_stock_threshold  Threshold for products created without one
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/warp/inventory-ledger/logger"
)

const envPrefix = "INVLEDGER"

// Config is the resolved configuration.
type Config struct {
	DBPath                   string
	HTTPPort                 int
	CORSOrigins              []string
	ExportDir                string
	Log                      logger.Config
	DefaultLowStockThreshold float64
}

// FlagKeys maps flag names to configuration keys. Flags missing from
// the set passed to Load are skipped.
var FlagKeys = map[string]string{
	"db":         "db.path",
	"port":       "http.port",
	"export-dir": "export.dir",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load resolves configuration from flags, environment, .env, an optional
// config file and defaults. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("inventory-ledger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := Config{
		DBPath:      strings.TrimSpace(v.GetString("db.path")),
		HTTPPort:    v.GetInt("http.port"),
		CORSOrigins: splitList(v.GetStringSlice("http.cors_origins")),
		ExportDir:   strings.TrimSpace(v.GetString("export.dir")),
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		DefaultLowStockThreshold: v.GetFloat64("product.default_low_stock_threshold"),
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = defaultExportDir(cfg.DBPath)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "inventory-ledger.db")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://localhost:1420"})
	v.SetDefault("export.dir", "")
	logDefaults := logger.DefaultConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.output", logDefaults.Output)
	v.SetDefault("product.default_low_stock_threshold", 5)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("config: db.path is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("config: http.port %d out of range", c.HTTPPort)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format %q: want console or json", c.Log.Format)
	}
	if c.DefaultLowStockThreshold < 0 {
		return errors.New("config: product.default_low_stock_threshold must be zero or greater")
	}
	return nil
}

// defaultExportDir prefers the user's Desktop and falls back to the
// directory holding the database.
func defaultExportDir(dbPath string) string {
	if home, err := os.UserHomeDir(); err == nil {
		desktop := filepath.Join(home, "Desktop")
		if info, err := os.Stat(desktop); err == nil && info.IsDir() {
			return desktop
		}
	}
	if dbPath == ":memory:" {
		return "."
	}
	return filepath.Dir(dbPath)
}

// splitList accepts both list values and a single comma-separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
