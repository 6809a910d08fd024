// Package config loads the relay runtime settings from an optional config
// file, a .env file, and RELAY_-prefixed environment variables.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// ErrMissingAdminSecret is returned when no observer secret is configured.
var ErrMissingAdminSecret = errors.New("admin secret is not configured (set RELAY_ADMIN_SECRET)")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"-"`
	RefillInterval time.Duration `mapstructure:"-"`
}

// LogConfig selects the logger level, encoding and sink.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"-"`
	MaxBackups int    `mapstructure:"-"`
	MaxAge     int    `mapstructure:"-"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `mapstructure:"port"`
	AdminSecret     string          `mapstructure:"admin_secret"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	AllowAllOrigins bool            `mapstructure:"-"`
	MaxMessageSize  int64           `mapstructure:"-"`
	SendBuffer      int             `mapstructure:"-"`
	BcryptCost      int             `mapstructure:"-"`
	ShutdownTimeout time.Duration   `mapstructure:"-"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	Log             LogConfig       `mapstructure:"log"`
}

const (
	defaultPort            = ":8080"
	defaultOrigin          = "http://localhost:8080"
	defaultMaxMessageSize  = 4096
	defaultSendBuffer      = 256
	defaultBurst           = 10
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultLogOutput       = "stdout"
	defaultLogFile         = "logs/relay.log"
)

// Default returns a Config populated with default values. The admin secret
// is left empty; it has no default.
func Default() Config {
	return Config{
		Port:            defaultPort,
		AllowedOrigins:  []string{defaultOrigin},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBuffer:      defaultSendBuffer,
		BcryptCost:      bcrypt.DefaultCost,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Log: LogConfig{
			Level:      defaultLogLevel,
			Format:     defaultLogFormat,
			Output:     defaultLogOutput,
			File:       defaultLogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Load reads configuration from the provided file path (if any), a .env file
// in the working directory, and the environment. Environment variables are
// prefixed with RELAY_; the bare PORT variable is honored as well.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	def := Default()
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", def.Port)
	v.SetDefault("admin_secret", "")
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("send_buffer", def.SendBuffer)
	v.SetDefault("bcrypt_cost", def.BcryptCost)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout.String())
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval.String())
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.output", def.Log.Output)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size", def.Log.MaxSize)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age", def.Log.MaxAge)

	if err := v.BindEnv("port", "RELAY_PORT", "PORT"); err != nil {
		return Config{}, errors.Wrap(err, "bind port env")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}

	// Numbers and durations are read as strings so a malformed value falls
	// back to its default instead of failing the decode.
	cfg.MaxMessageSize = int64(parseCount(v.GetString("max_message_size"), int(def.MaxMessageSize), 1))
	cfg.SendBuffer = parseCount(v.GetString("send_buffer"), def.SendBuffer, 1)
	cfg.BcryptCost = parseCount(v.GetString("bcrypt_cost"), def.BcryptCost, bcrypt.MinCost)
	cfg.RateLimit.Burst = parseCount(v.GetString("rate_limit.burst"), def.RateLimit.Burst, 1)
	cfg.Log.MaxSize = parseCount(v.GetString("log.max_size"), def.Log.MaxSize, 1)
	cfg.Log.MaxBackups = parseCount(v.GetString("log.max_backups"), def.Log.MaxBackups, 0)
	cfg.Log.MaxAge = parseCount(v.GetString("log.max_age"), def.Log.MaxAge, 0)
	// Durations accept Go syntax ("1500ms") or whole seconds ("2").
	cfg.ShutdownTimeout = parseInterval(v.GetString("shutdown_timeout"), def.ShutdownTimeout)
	cfg.RateLimit.RefillInterval = parseInterval(v.GetString("rate_limit.refill_interval"), def.RateLimit.RefillInterval)

	cfg = Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize replaces invalid values with defaults and normalizes origins.
func Sanitize(cfg Config) Config {
	def := Default()

	cfg.Port = normalizePort(cfg.Port)
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = def.Log.Output
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}

	cfg.AdminSecret = strings.TrimSpace(cfg.AdminSecret)
	normalized, allowAll := NormalizeOrigins(splitOrigins(cfg.AllowedOrigins))
	cfg.AllowedOrigins = normalized
	cfg.AllowAllOrigins = cfg.AllowAllOrigins || allowAll
	return cfg
}

// Validate reports configuration the relay cannot start with.
func (c Config) Validate() error {
	if c.AdminSecret == "" {
		return ErrMissingAdminSecret
	}
	return nil
}

func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}

// splitOrigins flattens comma separated entries, which is how a list
// arrives from a single environment variable.
func splitOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		for _, part := range strings.Split(o, ",") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

// parseCount parses a whole number no smaller than minimum, or returns
// defaultValue.
func parseCount(value string, defaultValue, minimum int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < minimum {
		return defaultValue
	}
	return n
}

func parseInterval(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
