package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"APP_ENV", "PORT", "ATTENDANCE_DB", "ATTENDANCE_TIMEZONE", "STATS_REFRESH_INTERVAL", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := &Config{}
	require.NoError(t, ParseEnv(cfg))

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "attendance.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("ATTENDANCE_DB", ":memory:")
	t.Setenv("ATTENDANCE_TIMEZONE", "Asia/Jakarta")
	t.Setenv("STATS_REFRESH_INTERVAL", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := &Config{}
	require.NoError(t, ParseEnv(cfg))

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{Port: 8080, DBPath: "x.db", Timezone: "Not/AZone"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Port: 0, DBPath: "x.db"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Port: 8080, DBPath: ""}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Port: 8080, DBPath: "x.db", RefreshInterval: -time.Second}
	assert.Error(t, cfg.Validate())
}
