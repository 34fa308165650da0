package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, 1.3, c.RoadFactor)
	assert.Equal(t, 10*time.Second, c.SolveBudget)
	assert.Equal(t, []string{"*"}, c.AllowOrigins)
	assert.Equal(t, 1, c.PlanParallelism)
	assert.Equal(t, 60.0, c.MaxRouteKm)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROAD_FACTOR", "1.5")
	t.Setenv("SOLVER_TIME_BUDGET", "2500ms")
	t.Setenv("ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTH_MODE", "HMAC")
	t.Setenv("AUTH_HMAC_SECRET", "k")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1.5, c.RoadFactor)
	assert.Equal(t, 2500*time.Millisecond, c.SolveBudget)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowOrigins)
	assert.Equal(t, "hmac", c.AuthMode)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PLAN_PARALLELISM=4\nPORT=9090\n"), 0o600))
	t.Setenv("PLAN_PARALLELISM", "")
	os.Unsetenv("PLAN_PARALLELISM")
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.PlanParallelism)
	assert.Equal(t, ":9090", c.Addr())
}

func TestMissingDotEnvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("ROAD_FACTOR", "0.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestHMACNeedsSecret(t *testing.T) {
	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("AUTH_HMAC_SECRET", "")
	_, err := Load("")
	assert.Error(t, err)
}
