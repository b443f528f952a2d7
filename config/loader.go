package config

// loader.go - configuration loading from the environment.
//
// Precedence order (highest wins):
//   1. CLI flags              (cmd/root.go)
//   2. CHATRELAY_* variables  (LoadFromEnv)
//   3. .env file              (LoadDotEnv; never overrides 2)
//   4. Defaults               (defaults.go)

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	rerr "chatrelay/internal/errors"
)

// EnvPrefix is prepended to every variable name, e.g. CHATRELAY_PORT.
const EnvPrefix = "CHATRELAY"

// LoadFromEnv overlays CHATRELAY_* variables onto cfg.  Unset
// variables leave the existing value alone, so call it on a
// Default() config and before CLI flag parsing.
func LoadFromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		var pe *envconfig.ParseError
		if errors.As(err, &pe) {
			return &rerr.ConfigError{
				Field:   flagName(pe.FieldName),
				Value:   pe.Value,
				Message: fmt.Sprintf("cannot parse %s as %s", pe.KeyName, pe.TypeName),
				Hint:    envHint(pe.TypeName),
			}
		}
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process
// environment without overriding variables that are already set.  An
// empty path loads DefaultEnvFile if it exists.
func LoadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return &rerr.ConfigError{
			Field:   "env-file",
			Value:   path,
			Message: err.Error(),
			Hint:    "the file must exist and contain KEY=VALUE lines",
		}
	}
	return nil
}

func envHint(typeName string) string {
	switch typeName {
	case "time.Duration":
		return "durations need a unit, e.g. 30s or 5m"
	case "bool":
		return "use true/false or 1/0"
	case "int":
		return "use a whole number"
	default:
		return ""
	}
}
