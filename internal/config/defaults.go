package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultLogLevel = "info"

	DefaultDBDriver          = "sqlite"
	DefaultDBDSN             = "personabot.db"
	DefaultDBMaxOpenConns    = 10
	DefaultDBMaxIdleConns    = 5
	DefaultDBConnMaxLifetime = 5 * time.Minute
	DefaultDBConnectAttempts = 5
	DefaultDBConnectDelay    = 5 * time.Second
	DefaultDBOpTimeout       = 10 * time.Second

	DefaultGatewayKind          = "discord"
	DefaultBackfillPageInterval = time.Second
	DefaultSendTimeout          = 10 * time.Second

	DefaultCompletionProvider = "openai"
	DefaultCompletionTimeout  = 2 * time.Minute
	DefaultMaxTokens          = 4000
	DefaultTemperature        = 1.0
	DefaultImageTier          = "high"
	DefaultCacheTTL           = time.Hour

	DefaultFallbackReply = "Sorry, an error occurred while processing your request."

	DefaultProfilesTopK      = 10
	DefaultProfilesSource    = "author"
	DefaultProfilesSkipMode  = "allowlist"
	DefaultProfilesCommunity = "Jameworld"

	DefaultAPIListen = "127.0.0.1:8080"
)

// DefaultModels returns the tier mapping for a provider.
func DefaultModels(provider string) ModelsConfig {
	if provider == "gemini" {
		return ModelsConfig{Low: "gemini-1.5-flash", High: "gemini-1.5-pro"}
	}
	return ModelsConfig{Low: "gpt-4o-mini", High: "gpt-4o"}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)

	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.dsn", DefaultDBDSN)
	v.SetDefault("database.max_open_conns", DefaultDBMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultDBMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)
	v.SetDefault("database.connect_attempts", DefaultDBConnectAttempts)
	v.SetDefault("database.connect_delay", DefaultDBConnectDelay)
	v.SetDefault("database.op_timeout", DefaultDBOpTimeout)

	v.SetDefault("gateway.kind", DefaultGatewayKind)
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.backfill_page_interval", DefaultBackfillPageInterval)
	v.SetDefault("gateway.send_timeout", DefaultSendTimeout)

	v.SetDefault("completion.provider", DefaultCompletionProvider)
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.timeout", DefaultCompletionTimeout)
	v.SetDefault("completion.max_tokens", DefaultMaxTokens)
	v.SetDefault("completion.temperature", DefaultTemperature)
	v.SetDefault("completion.models.low", "")
	v.SetDefault("completion.models.high", "")
	v.SetDefault("completion.image_tier", DefaultImageTier)
	v.SetDefault("completion.cache.enabled", false)
	v.SetDefault("completion.cache.ttl", DefaultCacheTTL)

	v.SetDefault("bot.fallback_reply", DefaultFallbackReply)
	v.SetDefault("bot.max_in_flight", 0)
	v.SetDefault("bot.commands_enabled", true)

	v.SetDefault("profiles.top_k", DefaultProfilesTopK)
	v.SetDefault("profiles.source", DefaultProfilesSource)
	v.SetDefault("profiles.skip_mode", DefaultProfilesSkipMode)
	v.SetDefault("profiles.known_humans", []string{})
	v.SetDefault("profiles.community", DefaultProfilesCommunity)
	v.SetDefault("profiles.channels", []string{})

	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
	v.SetDefault("scheduler.tasks.profile_regeneration.enabled", false)
	v.SetDefault("scheduler.tasks.profile_regeneration.schedule", "0 0 3 * * 0")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", DefaultAPIListen)

	v.SetDefault("persona_file", "")
	v.SetDefault("persona.name", "")
	v.SetDefault("persona.author_name", "")
	v.SetDefault("persona.mention_substitute", "")
	v.SetDefault("persona.preamble", "")
	v.SetDefault("persona.suffix", "")
	v.SetDefault("persona.history_limit", 0)
	v.SetDefault("persona.context_cache", false)
}
