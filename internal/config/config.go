package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Every key has a default, so the
// service starts with no config file and no environment.
type Config struct {
	HTTPPort string
	LogLevel string

	Mongo    MongoConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Auth     AuthConfig
	Autosave AutosaveConfig
	Session  SessionConfig
	CORS     CORSConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BackendConfig points at the funding platform API the form engine persists to.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}

type AuthConfig struct {
	JWTSecret string
}

type AutosaveConfig struct {
	FieldDebounce    time.Duration
	FileDebounce     time.Duration
	StatusResetAfter time.Duration
	RequestTimeout   time.Duration
	// RestoreOnFailure keeps a failed batch pending for the next flush.
	// false drops it, which is how the browser client behaved.
	RestoreOnFailure bool
	// DistributedLock guards flushes with Redis instead of an in-process map.
	DistributedLock bool
}

type SessionConfig struct {
	IdleTTL     time.Duration
	SweepSpec   string
	SnapshotTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

const envPrefix = "apply"

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "launchpad")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("backend.base_url", "http://localhost:3000/api")
	v.SetDefault("backend.request_timeout", "15s")
	v.SetDefault("backend.max_retries", 3)

	v.SetDefault("auth.jwt_secret", "super-secret-key-change-in-production")

	v.SetDefault("autosave.field_debounce", "1500ms")
	v.SetDefault("autosave.file_debounce", "500ms")
	v.SetDefault("autosave.status_reset_after", "2s")
	v.SetDefault("autosave.request_timeout", "15s")
	v.SetDefault("autosave.restore_on_failure", true)
	v.SetDefault("autosave.distributed_lock", false)

	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.sweep_spec", "@every 1m")
	v.SetDefault("session.snapshot_ttl", "72h")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
}

// Load reads configuration from defaults, an optional file and APPLY_* environment
// variables, in increasing order of precedence. An empty path looks for
// config/apply.yaml and silently skips it when absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("apply")
		v.AddConfigPath("config")
		v.AddConfigPath("/config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTPPort: v.GetString("http.port"),
		LogLevel: v.GetString("log.level"),
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimPrefix(v.GetString("redis.addr"), "redis://"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(v.GetString("backend.base_url"), "/"),
			RequestTimeout: v.GetDuration("backend.request_timeout"),
			MaxRetries:     v.GetInt("backend.max_retries"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
		},
		Autosave: AutosaveConfig{
			FieldDebounce:    v.GetDuration("autosave.field_debounce"),
			FileDebounce:     v.GetDuration("autosave.file_debounce"),
			StatusResetAfter: v.GetDuration("autosave.status_reset_after"),
			RequestTimeout:   v.GetDuration("autosave.request_timeout"),
			RestoreOnFailure: v.GetBool("autosave.restore_on_failure"),
			DistributedLock:  v.GetBool("autosave.distributed_lock"),
		},
		Session: SessionConfig{
			IdleTTL:     v.GetDuration("session.idle_ttl"),
			SweepSpec:   v.GetString("session.sweep_spec"),
			SnapshotTTL: v.GetDuration("session.snapshot_ttl"),
		},
		CORS: CORSConfig{
			AllowedOrigins: v.GetStringSlice("cors.allowed_origins"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Autosave.FieldDebounce <= 0 || c.Autosave.FileDebounce <= 0 {
		return errors.New("autosave debounce windows must be positive")
	}
	if c.Autosave.RequestTimeout <= 0 {
		return errors.New("autosave.request_timeout must be positive")
	}
	return nil
}

// IsProductionSecret reports whether the JWT secret was changed from the default.
func (c *Config) IsProductionSecret() bool {
	return c.Auth.JWTSecret != "super-secret-key-change-in-production"
}
