package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/internal/persona"
)

// EnvPrefix is the prefix of environment variables that override config keys.
// A key such as gateway.token is read from PERSONABOT_GATEWAY_TOKEN.
const EnvPrefix = "PERSONABOT"

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit YAML path. When empty, ./config.yaml is used if present.
	ConfigFile string
	// EnvFile is loaded into the process environment before reading variables.
	// A missing file is not an error.
	EnvFile string
	// Overrides are dotted keys that take precedence over every other source,
	// e.g. command-line flags. They are validated like any other value.
	Overrides map[string]any
}

// Load builds the configuration in this order: defaults, config file,
// environment. Every failure is returned as a ConfigurationError.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NewConfigurationError("env_file", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.NewConfigurationError("config_file", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errs.NewConfigurationError("config_file", err)
			}
		}
	}

	for key, val := range opts.Overrides {
		v.Set(key, val)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.NewConfigurationError("", fmt.Errorf("decode config: %w", err))
	}

	defaults := DefaultModels(cfg.Completion.Provider)
	if cfg.Completion.Models.Low == "" {
		cfg.Completion.Models.Low = defaults.Low
	}
	if cfg.Completion.Models.High == "" {
		cfg.Completion.Models.High = defaults.High
	}

	if cfg.PersonaFile != "" {
		p, err := persona.LoadFile(cfg.PersonaFile)
		if err != nil {
			return nil, errs.NewConfigurationError("persona_file", err)
		}
		cfg.Persona = p
	} else {
		cfg.Persona = cfg.Persona.WithDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
