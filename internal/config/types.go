// Package config loads the process configuration from defaults, an optional
// YAML file, a .env file and PERSONABOT_* environment variables.
package config

import (
	"time"

	"github.com/edgard/personabot/internal/persona"
)

// Config is the root configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Completion CompletionConfig `mapstructure:"completion"`
	Bot        BotConfig        `mapstructure:"bot"`
	Profiles   ProfilesConfig   `mapstructure:"profiles"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	API        APIConfig        `mapstructure:"api"`

	// PersonaFile, when set, replaces the inline Persona section.
	PersonaFile string          `mapstructure:"persona_file"`
	Persona     persona.Persona `mapstructure:"persona"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQL backend and pool settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	ConnectAttempts int           `mapstructure:"connect_attempts" validate:"gte=1"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay" validate:"gte=0"`
	OpTimeout       time.Duration `mapstructure:"op_timeout" validate:"gt=0"`
}

// GatewayConfig selects the chat platform.
type GatewayConfig struct {
	Kind                 string        `mapstructure:"kind" validate:"oneof=discord telegram"`
	Token                string        `mapstructure:"token" validate:"required"`
	BackfillPageInterval time.Duration `mapstructure:"backfill_page_interval" validate:"gte=0"`
	SendTimeout          time.Duration `mapstructure:"send_timeout" validate:"gt=0"`
}

// ModelsConfig maps capability tiers to provider model identifiers.
type ModelsConfig struct {
	Low  string `mapstructure:"low" validate:"required"`
	High string `mapstructure:"high" validate:"required"`
}

// CacheConfig controls the provider-side conversation context cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// CompletionConfig configures the text-generation provider.
type CompletionConfig struct {
	Provider    string        `mapstructure:"provider" validate:"oneof=openai gemini"`
	APIKey      string        `mapstructure:"api_key" validate:"required"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"gte=0"`
	Temperature float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Models      ModelsConfig  `mapstructure:"models"`
	ImageTier   string        `mapstructure:"image_tier" validate:"oneof=low high"`
	Cache       CacheConfig   `mapstructure:"cache"`
}

// BotConfig holds interaction-loop settings.
type BotConfig struct {
	FallbackReply string `mapstructure:"fallback_reply" validate:"required"`
	// MaxInFlight bounds concurrently handled events; 0 means unbounded.
	MaxInFlight int `mapstructure:"max_in_flight" validate:"gte=0"`
	// CommandsEnabled turns on the !saveChannel, !showProfiles and !generateProfiles commands.
	CommandsEnabled bool `mapstructure:"commands_enabled"`
}

// ProfilesConfig configures profile regeneration.
type ProfilesConfig struct {
	TopK   int    `mapstructure:"top_k" validate:"gte=1"`
	Source string `mapstructure:"source" validate:"oneof=author channel"`
	// SkipMode decides which authors are treated as non-human:
	// "allowlist" skips everyone not in KnownHumans, "denylist" skips everyone in it.
	SkipMode    string   `mapstructure:"skip_mode" validate:"oneof=allowlist denylist"`
	KnownHumans []string `mapstructure:"known_humans"`
	// Community is the group name used in the summarization prompt.
	Community string `mapstructure:"community"`
	// Channels are regenerated by the scheduled task.
	Channels []string `mapstructure:"channels"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// SchedulerConfig holds scheduled tasks keyed by registry name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true"`
}
