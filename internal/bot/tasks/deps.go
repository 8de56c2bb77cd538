// Package tasks implements the scheduled tasks and their registry.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/personabot/internal/profiles"
)

// Maintainer reclaims space and refreshes statistics in the database.
type Maintainer interface {
	RunSQLMaintenance(ctx context.Context) error
}

// Regenerator rebuilds the profiles of a channel.
type Regenerator interface {
	Regenerate(ctx context.Context, channelID string) (profiles.Result, error)
}

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger      *slog.Logger
	Store       Maintainer
	Regenerator Regenerator
	// Channels are regenerated by the profile_regeneration task.
	Channels []string
}
