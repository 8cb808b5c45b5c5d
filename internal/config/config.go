package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"permde/internal/difftest"
	"permde/internal/errors"
)

// EnvPrefix prefixes every test option read from the environment.
const EnvPrefix = "PERMDE_"

// Config represents the complete application configuration
type Config struct {
	Test      difftest.Config
	Server    ServerConfig
	Log       LogConfig
	Profiling ProfilingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads an optional .env file, then configuration from environment
// variables, and validates it.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load(envFiles...)

	test, err := loadTestConfig(difftest.DefaultConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load test configuration")
	}

	config := &Config{
		Test:      test,
		Server:    *loadServerConfig(),
		Log:       LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
		Profiling: *loadProfilingConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// loadTestConfig applies PERMDE_<OPTION> overrides on top of base.
func loadTestConfig(base difftest.Config) (difftest.Config, error) {
	for _, name := range difftest.OptionNames() {
		key := EnvPrefix + strings.ToUpper(name)
		value, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if err := base.Set(name, value); err != nil {
			return base, fmt.Errorf("%s: %w", key, err)
		}
	}
	return base, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "release"),
		RequestTimeout:  getEnvDurationOrDefault("REQUEST_TIMEOUT", 5*time.Minute),
		MaxBodyBytes:    int64(getEnvIntOrDefault("MAX_BODY_BYTES", 64<<20)),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if err := config.Test.Validate(); err != nil {
		return err
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Server.MaxBodyBytes <= 0 {
		return errors.ConfigInvalid("MAX_BODY_BYTES must be positive")
	}
	return nil
}

// LoadTestFile overlays the options in a .toml, .yaml or .yml file onto base.
// Unknown keys are rejected.
func LoadTestFile(path string, base difftest.Config) (difftest.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrapf(err, "failed to read options file %s", path)
	}

	cfg := base
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return base, errors.ConfigInvalid(fmt.Sprintf("%s: %v", path, err))
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return base, errors.ConfigInvalid(fmt.Sprintf("%s: unrecognized options %s", path, strings.Join(keys, ", ")))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return base, errors.ConfigInvalid(fmt.Sprintf("%s: %v", path, err))
		}
	default:
		return base, errors.ConfigInvalid(fmt.Sprintf("unsupported options file %q (want .toml, .yaml or .yml)", path))
	}

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
