package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BOOKKEEPER_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "FIFO", cfg.DefaultLotMethod)
	assert.Equal(t, "0 2 * * *", cfg.WashSaleScanSpec)
	assert.True(t, cfg.WashSaleScanOn)
	assert.Equal(t, "USD", cfg.BaseCurrency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOKKEEPER_DATA_DIR", t.TempDir())
	t.Setenv("BOOKKEEPER_PORT", "9090")
	t.Setenv("DEFAULT_LOT_METHOD", "HIFO")
	t.Setenv("WASH_SALE_SCAN_ENABLED", "false")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "HIFO", cfg.DefaultLotMethod)
	assert.False(t, cfg.WashSaleScanOn)
	assert.True(t, cfg.DevMode)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 0}
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Port = 8001
	assert.NoError(t, cfg.Validate())
}
