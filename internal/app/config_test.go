package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PETAL_DATABASE_URL", "postgres://petal@localhost/petal")
	t.Setenv("PETAL_API_KEY_PEPPER", "pepper")
	t.Setenv("PETAL_SHIPPING_RATES", "standard=3.50,pickup=0")
	t.Setenv("PORT", "")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, []string{"standard=3.50", "pickup=0"}, cfg.ShippingRates)
	assert.Equal(t, 60, cfg.RateLimit.Max)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PETAL_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PETAL_API_KEY_PEPPER", "pepper")
	t.Setenv("PORT", "9090")

	cfg, err := loadConfig([]string{})
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_Required(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PETAL_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PETAL_API_KEY_PEPPER", "")

	_, err := loadConfig([]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	t.Setenv("PETAL_DATABASE_URL", "postgres://x")
	_, err = loadConfig([]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pepper")
}
