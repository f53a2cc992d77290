package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the service settings. Sources, lowest priority first:
// defaults, YAML file, environment, command-line flags.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	BodyLimit       int64         `yaml:"body_limit"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	CacheTTL           time.Duration `yaml:"cache_ttl"`
	LocalCacheCapacity int           `yaml:"local_cache_capacity"`
	StrictAdmission    bool          `yaml:"strict_admission"`

	RedisEnabled   bool   `yaml:"redis_enabled"`
	RedisHost      string `yaml:"redis_host"`
	RedisPort      int    `yaml:"redis_port"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisKeyPrefix string `yaml:"redis_key_prefix"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MQTTBroker      string `yaml:"mqtt_broker"`
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix"`
	MQTTClientID    string `yaml:"mqtt_client_id"`
}

func defaults() *Config {
	return &Config{
		Addr:            "0.0.0.0:3000",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		BodyLimit:       100 << 10,
		CORSOrigins:     []string{"*"},

		CacheTTL:           2 * time.Second,
		LocalCacheCapacity: 100_000,

		RedisEnabled:   true,
		RedisHost:      "localhost",
		RedisPort:      6379,
		RedisKeyPrefix: "rate-validator:",

		LogLevel:  "info",
		LogFormat: "json",

		MQTTTopicPrefix: "rate-validator",
	}
}

// Load builds the configuration for the given command-line arguments
// (without the program name).
func Load(args []string) (*Config, error) {
	cfg := defaults()

	fs := pflag.NewFlagSet("rate-validator", pflag.ContinueOnError)
	configFile := fs.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	addr := fs.String("addr", "", "listen address (host:port)")
	ttl := fs.Duration("cache-ttl", 0, "how long an admitted request blocks duplicates")
	strict := fs.Bool("strict-admission", false, "admit with an atomic insert-if-absent")
	noRedis := fs.Bool("no-redis", false, "run with the local cache tier only")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configFile != "" {
		if err := loadFile(cfg, *configFile); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("cache-ttl") {
		cfg.CacheTTL = *ttl
	}
	if fs.Changed("strict-admission") {
		cfg.StrictAdmission = *strict
	}
	if fs.Changed("no-redis") {
		cfg.RedisEnabled = !*noRedis
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL))
	}
	if c.LocalCacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("local cache capacity must not be negative, got %d", c.LocalCacheCapacity))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("body limit must be positive, got %d", c.BodyLimit))
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("addr %q: %w", c.Addr, err))
	}
	if c.RedisEnabled && (c.RedisPort <= 0 || c.RedisPort > 65535) {
		errs = append(errs, fmt.Errorf("redis port %d out of range", c.RedisPort))
	}
	return errors.Join(errs...)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadFile overlays a YAML file on cfg. ${VAR} references are expanded from
// the environment before parsing.
func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := envVarPattern.ReplaceAllStringFunc(string(raw), func(m string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(m)[1])
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.Addr = getenv("ADDR", c.Addr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("ADDR") == "" {
		c.Addr = net.JoinHostPort("0.0.0.0", port)
	}
	c.ReadTimeout = durEnv("READ_TIMEOUT", c.ReadTimeout, collect)
	c.WriteTimeout = durEnv("WRITE_TIMEOUT", c.WriteTimeout, collect)
	c.IdleTimeout = durEnv("IDLE_TIMEOUT", c.IdleTimeout, collect)
	c.ShutdownTimeout = durEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, collect)
	c.BodyLimit = int64(intEnv("BODY_LIMIT", int(c.BodyLimit), collect))
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	// CACHE_TTL takes a duration ("1500ms"); CACHE_TTL_SEG whole seconds.
	if v := os.Getenv("CACHE_TTL_SEG"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			collect(fmt.Errorf("CACHE_TTL_SEG=%q: %w", v, err))
		} else {
			c.CacheTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			collect(fmt.Errorf("CACHE_TTL=%q: %w", v, err))
		} else {
			c.CacheTTL = d
		}
	}
	c.LocalCacheCapacity = intEnv("LOCAL_CACHE_CAPACITY", c.LocalCacheCapacity, collect)
	c.StrictAdmission = boolEnv("STRICT_ADMISSION", c.StrictAdmission)

	c.RedisEnabled = boolEnv("REDIS_ENABLED", c.RedisEnabled)
	c.RedisHost = getenv("REDIS_HOST", c.RedisHost)
	c.RedisPort = intEnv("REDIS_PORT", c.RedisPort, collect)
	c.RedisPassword = getenv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = intEnv("REDIS_DB", c.RedisDB, collect)
	c.RedisKeyPrefix = getenv("REDIS_KEY_PREFIX", c.RedisKeyPrefix)

	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("LOG_FORMAT", c.LogFormat)

	c.MQTTBroker = getenv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopicPrefix = getenv("MQTT_TOPIC_PREFIX", c.MQTTTopicPrefix)
	c.MQTTClientID = getenv("MQTT_CLIENT_ID", c.MQTTClientID)

	return errors.Join(errs...)
}

// NewHTTPServer returns an http.Server with the configured timeouts.
func NewHTTPServer(cfg *Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// ---------- Transport ----------

// NewHTTPTransport is tuned for many short keep-alive requests to one host.
func NewHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:        512,
		MaxIdleConnsPerHost: 256,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// ---------- helpers ----------

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durEnv(key string, def time.Duration, onErr func(error)) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		onErr(fmt.Errorf("%s=%q: %w", key, v, err))
		return def
	}
	return d
}

func intEnv(key string, def int, onErr func(error)) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		onErr(fmt.Errorf("%s=%q: %w", key, v, err))
		return def
	}
	return n
}

func boolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
