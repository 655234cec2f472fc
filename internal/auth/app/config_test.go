package app_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/app"
	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "dev")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "tally-auth", cfg.Issuer)
	require.Equal(t, "tally-api", cfg.Audience)
	require.Equal(t, "15m", cfg.AccessTokenExpiry)
	require.Equal(t, "7d", cfg.RefreshTokenExpiry)
	require.Equal(t, uint32(65536), cfg.HashMemoryKiB)
	require.Equal(t, uint32(3), cfg.HashTime)
	require.Equal(t, "Tally", cfg.TOTPIssuer)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, service.DefaultLockoutThreshold, cfg.LockoutThreshold)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	require.Equal(t, 5, cfg.RateLimits.Strict.RequestsPerWindow)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("AUTH_ACCESS_TOKEN_EXPIRY", "5m")
	t.Setenv("AUTH_HASH_MEMORY_KIB", "131072")
	t.Setenv("AUTH_HASH_PARALLELISM", "4")
	t.Setenv("AUTH_LOCKOUT_THRESHOLD", "3")
	t.Setenv("AUTH_LOCKOUT_DURATION", "30") // bare minutes
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RATELIMIT_STRICT_REQUESTS", "10")
	t.Setenv("RATELIMIT_LENIENT_WINDOW_SEC", "30")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "5m", cfg.AccessTokenExpiry)
	require.Equal(t, 3, cfg.LockoutThreshold)
	require.Equal(t, 30*time.Minute, cfg.LockoutDuration)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, 10, cfg.RateLimits.Strict.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.RateLimits.Lenient.Window)

	hasher := cfg.HasherConfig()
	require.Equal(t, uint32(131072), hasher.MemoryKiB)
	require.Equal(t, uint8(4), hasher.Parallelism)
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown env", map[string]string{"ENV": "qa"}},
		{"weak memory cost", map[string]string{"ENV": "dev", "AUTH_HASH_MEMORY_KIB": "19456"}},
		{"two iterations", map[string]string{"ENV": "dev", "AUTH_HASH_TIME": "2"}},
		{"parallelism overflow", map[string]string{"ENV": "dev", "AUTH_HASH_PARALLELISM": "256"}},
		{"bad expiry", map[string]string{"ENV": "dev", "AUTH_ACCESS_TOKEN_EXPIRY": "soon"}},
		{"bad redis address", map[string]string{"ENV": "dev", "REDIS_ADDR": "localhost"}},
		{"bad log level", map[string]string{"ENV": "dev", "LOG_LEVEL": "verbose"}},
		{"prod without keys", map[string]string{"ENV": "prod"}},
		{"prod without master key", map[string]string{"ENV": "prod", "AUTH_PRIVATE_KEY_FILE": "private.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := app.LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_ProdWithKeyFiles(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("AUTH_PRIVATE_KEY_FILE", "/run/secrets/private.pem")
	t.Setenv("AUTH_MASTER_KEY_FILE", "/run/secrets/master.key")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
}
