package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/errs"
)

const minimalYAML = `
gateway:
  token: discord-token
completion:
  api_key: sk-test
persona:
  name: Almighty Zuck
  preamble: "You are in a discord server.\n\n"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectDelay)
	assert.Equal(t, 2*time.Minute, cfg.Completion.Timeout)
	assert.Equal(t, ModelsConfig{Low: "gpt-4o-mini", High: "gpt-4o"}, cfg.Completion.Models)
	assert.Equal(t, "high", cfg.Completion.ImageTier)
	assert.Equal(t, DefaultFallbackReply, cfg.Bot.FallbackReply)
	assert.Equal(t, "allowlist", cfg.Profiles.SkipMode)
	assert.Equal(t, "<@almighty-zuck>", cfg.Persona.MentionSubstitute)
	assert.Equal(t, 100, cfg.Persona.HistoryLimit)
	assert.True(t, cfg.Scheduler.Tasks["sql_maintenance"].Enabled)
}

func TestLoadGeminiModelDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
gateway:
  token: t
completion:
  provider: gemini
  api_key: k
persona:
  name: Tyrone
  preamble: hi
`)

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, ModelsConfig{Low: "gemini-1.5-flash", High: "gemini-1.5-pro"}, cfg.Completion.Models)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML)
	envFile := writeFile(t, dir, ".env", "PERSONABOT_DATABASE_DRIVER=postgres\n")

	t.Setenv("PERSONABOT_GATEWAY_TOKEN", "from-env")
	t.Setenv("PERSONABOT_COMPLETION_TIMEOUT", "30s")
	t.Cleanup(func() { os.Unsetenv("PERSONABOT_DATABASE_DRIVER") })

	cfg, err := Load(Options{ConfigFile: path, EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gateway.Token)
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadPersonaFile(t *testing.T) {
	dir := t.TempDir()
	personaPath := writeFile(t, dir, "tyrone.yaml", "name: Tyrone\npreamble: be tyrone\n")
	path := writeFile(t, dir, "config.yaml", `
gateway:
  token: t
completion:
  api_key: k
persona_file: `+personaPath+"\n")

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "Tyrone", cfg.Persona.Name)
	assert.Equal(t, "<@tyrone>", cfg.Persona.MentionSubstitute)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantKey string
	}{
		{
			name:    "gateway token",
			body:    "completion:\n  api_key: k\npersona:\n  name: x\n  preamble: y\n",
			wantKey: "gateway.token",
		},
		{
			name:    "api key",
			body:    "gateway:\n  token: t\npersona:\n  name: x\n  preamble: y\n",
			wantKey: "completion.api_key",
		},
		{
			name:    "persona preamble",
			body:    "gateway:\n  token: t\ncompletion:\n  api_key: k\npersona:\n  name: x\n",
			wantKey: "persona.preamble",
		},
		{
			name:    "bad driver",
			body:    "database:\n  driver: mysql\n" + minimalYAML,
			wantKey: "database.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.body)

			_, err := Load(Options{ConfigFile: path})
			require.Error(t, err)

			var cfgErr *errs.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	cfg, err := Load(Options{ConfigFile: path, Overrides: map[string]any{"log.level": "debug"}})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(Options{ConfigFile: path, Overrides: map[string]any{"log.level": "verbose"}})
	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "log.level", cfgErr.Key)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})

	var cfgErr *errs.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config_file", cfgErr.Key)
}

func TestIsHuman(t *testing.T) {
	t.Parallel()

	known := []string{"jame8k", "scottdaly"}

	allow := ProfilesConfig{SkipMode: "allowlist", KnownHumans: known}
	assert.True(t, allow.IsHuman("jame8k"))
	assert.False(t, allow.IsHuman("Almighty Zuck"))
	assert.False(t, allow.IsHuman("JAME8K"))

	deny := ProfilesConfig{SkipMode: "denylist", KnownHumans: []string{"Almighty Zuck"}}
	assert.True(t, deny.IsHuman("jame8k"))
	assert.False(t, deny.IsHuman("Almighty Zuck"))
}
