package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Amund211/warmstart/internal/logging"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	startupConfigPath  string
	sentryDSN          string
	googleCloudProject string
	logLevel           slog.Level
	env                environment
}

// Path of the YAML file declaring the startup services. Empty when none is declared.
func (c *Config) StartupConfigPath() string {
	return c.startupConfigPath
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) GoogleCloudProject() string {
	return c.googleCloudProject
}

func (c *Config) LogLevel() slog.Level {
	return c.logLevel
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf("Config{env: %s, startupConfig: %q, logLevel: %s, ...}", string(c.env), c.startupConfigPath, c.logLevel)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("WARMSTART_ENVIRONMENT")
	if !ok {
		return missingKey("WARMSTART_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: WARMSTART_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	logLevel := slog.LevelInfo
	if rawLevel := os.Getenv("LOG_LEVEL"); rawLevel != "" {
		parsed, err := logging.ParseLevel(rawLevel)
		if err != nil {
			return Config{}, fmt.Errorf("%w: LOG_LEVEL (%s)", ErrInvalidValue, rawLevel)
		}
		logLevel = parsed
	}

	startupConfigPath := os.Getenv("WARMSTART_STARTUP_CONFIG")
	sentryDSN := os.Getenv("SENTRY_DSN")
	googleCloudProject := os.Getenv("GOOGLE_CLOUD_PROJECT")

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	return Config{
		startupConfigPath:  startupConfigPath,
		sentryDSN:          sentryDSN,
		googleCloudProject: googleCloudProject,
		logLevel:           logLevel,
		env:                env,
	}, nil
}
