package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "ADDR", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"SHUTDOWN_TIMEOUT", "BODY_LIMIT", "CORS_ORIGINS", "CACHE_TTL", "CACHE_TTL_SEG",
		"LOCAL_CACHE_CAPACITY", "STRICT_ADMISSION", "REDIS_ENABLED", "REDIS_HOST",
		"REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX", "LOG_LEVEL",
		"LOG_FORMAT", "MQTT_BROKER", "MQTT_TOPIC_PREFIX", "MQTT_CLIENT_ID",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.CacheTTL)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.False(t, cfg.StrictAdmission)
	assert.Equal(t, int64(100<<10), cfg.BodyLimit)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("CACHE_TTL_SEG", "5")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "s3cret")
	t.Setenv("STRICT_ADMISSION", "yes")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("READ_TIMEOUT", "3s")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, "redis.internal", cfg.RedisHost)
	assert.Equal(t, 6380, cfg.RedisPort)
	assert.Equal(t, "s3cret", cfg.RedisPassword)
	assert.True(t, cfg.StrictAdmission)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
}

func TestLoadCacheTTLPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_TTL_SEG", "5")
	t.Setenv("CACHE_TTL", "1500ms")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.CacheTTL)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "zero_ttl", env: map[string]string{"CACHE_TTL_SEG": "0"}},
		{name: "negative_ttl", args: []string{"--cache-ttl=-1s"}},
		{name: "bad_ttl_seg", env: map[string]string{"CACHE_TTL_SEG": "two"}},
		{name: "bad_ttl", env: map[string]string{"CACHE_TTL": "soon"}},
		{name: "bad_redis_port", env: map[string]string{"REDIS_PORT": "70000"}},
		{name: "bad_addr", env: map[string]string{"ADDR": "nowhere"}},
		{name: "unknown_flag", args: []string{"--bogus"}},
		{name: "bad_read_timeout", env: map[string]string{"READ_TIMEOUT": "soon"}},
		{name: "bad_write_timeout", env: map[string]string{"WRITE_TIMEOUT": "30"}},
		{name: "bad_idle_timeout", env: map[string]string{"IDLE_TIMEOUT": "2 minutes"}},
		{name: "bad_shutdown_timeout", env: map[string]string{"SHUTDOWN_TIMEOUT": "x"}},
		{name: "negative_capacity", env: map[string]string{"LOCAL_CACHE_CAPACITY": "-1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(tc.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDR", "127.0.0.1:4000")
	t.Setenv("CACHE_TTL", "10s")

	cfg, err := Load([]string{"--addr", ":5000", "--cache-ttl", "250ms", "--no-redis", "--strict-admission", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.CacheTTL)
	assert.False(t, cfg.RedisEnabled)
	assert.True(t, cfg.StrictAdmission)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_REDIS_PASSWORD", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
addr: "127.0.0.1:3100"
cache_ttl: "3s"
redis_host: "cache.local"
redis_password: "${TEST_REDIS_PASSWORD}"
mqtt_broker: "tcp://broker:1883"
cors_origins:
  - "https://app.example"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Run("via_flag", func(t *testing.T) {
		cfg, err := Load([]string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:3100", cfg.Addr)
		assert.Equal(t, 3*time.Second, cfg.CacheTTL)
		assert.Equal(t, "cache.local", cfg.RedisHost)
		assert.Equal(t, "from-env", cfg.RedisPassword)
		assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
		assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
		// untouched keys keep defaults
		assert.Equal(t, 6379, cfg.RedisPort)
	})

	t.Run("env_beats_file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("REDIS_HOST", "override")
		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "override", cfg.RedisHost)
		assert.Equal(t, 3*time.Second, cfg.CacheTTL)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
		assert.Error(t, err)
	})
}

func TestMiddlewares(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CORSMiddleware([]string{"*"}), RequestIDMiddleware(), LoggerMiddleware(logr.Discard()))
	r.GET("/ping", func(c *gin.Context) {
		rid, _ := c.Get("request_id")
		c.String(http.StatusOK, "%v", rid)
	})

	t.Run("generates_request_id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		rid := w.Header().Get(RequestIDHeader)
		assert.Len(t, rid, 36)
		assert.Equal(t, rid, w.Body.String())
	})

	t.Run("keeps_incoming_request_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("cors_preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "client")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}
