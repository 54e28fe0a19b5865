package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "inventory-ledger.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:1420"}, cfg.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, 5.0, cfg.DefaultLowStockThreshold)
	assert.NotEmpty(t, cfg.ExportDir)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("INVLEDGER_DB_PATH", "/tmp/shop.db")
	t.Setenv("INVLEDGER_HTTP_PORT", "9090")
	t.Setenv("INVLEDGER_HTTP_CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("INVLEDGER_EXPORT_DIR", "/tmp/exports")
	t.Setenv("INVLEDGER_PRODUCT_DEFAULT_LOW_STOCK_THRESHOLD", "2.5")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/shop.db", cfg.DBPath)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "/tmp/exports", cfg.ExportDir)
	assert.Equal(t, 2.5, cfg.DefaultLowStockThreshold)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("INVLEDGER_HTTP_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("db", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "7070", "--db", ":memory:"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, ":memory:", cfg.DBPath)
}

func TestValidate(t *testing.T) {
	valid := Config{DBPath: "x.db", HTTPPort: 8080}
	valid.Log.Format = "json"
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.DBPath = ""
	assert.Error(t, bad.Validate())

	bad = valid
	bad.HTTPPort = 70000
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Log.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.DefaultLowStockThreshold = -1
	assert.Error(t, bad.Validate())
}
