package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoservis/autoservis/internal/workorders"
	_ "github.com/autoservis/autoservis/testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "@every 1h", cfg.SessionSweepCron)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 10*time.Minute, cfg.PermissionCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, workorders.PolicyPermissive, cfg.TransitionPolicy())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis().Addr)
	assert.Equal(t, cfg.Redis().Addr, cfg.Asynq().Addr)
	assert.Equal(t, int32(10), cfg.Database("api").MaxConns)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("WORK_ORDER_TRANSITION_POLICY", "strict")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, workorders.PolicyStrict, cfg.TransitionPolicy())
	assert.Equal(t, 3, cfg.Redis().DB)
	assert.Equal(t, 3, cfg.Asynq().DB)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"SESSION_SECRET": "short"},
		"bad policy":     {"SESSION_SECRET": testSecret, "WORK_ORDER_TRANSITION_POLICY": "anything-goes"},
		"zero ttl":       {"SESSION_SECRET": testSecret, "SESSION_TTL": "0s"},
		"zero limit":     {"SESSION_SECRET": testSecret, "RATE_LIMIT_PER_MINUTE": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("SESSION_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"k":"v"`)

	buf.Reset()
	newLogger(nil, &buf).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}
