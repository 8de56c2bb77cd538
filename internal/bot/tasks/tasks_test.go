package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/logger"
	"github.com/edgard/personabot/internal/profiles"
)

type fakeMaintainer struct {
	runs int
	err  error
}

func (f *fakeMaintainer) RunSQLMaintenance(context.Context) error {
	f.runs++
	return f.err
}

type fakeRegenerator struct {
	channels []string
	fail     map[string]bool
}

func (f *fakeRegenerator) Regenerate(_ context.Context, channelID string) (profiles.Result, error) {
	f.channels = append(f.channels, channelID)
	if f.fail[channelID] {
		return profiles.Result{}, errors.New("rank failed")
	}
	return profiles.Result{Updated: []string{"jame8k"}}, nil
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	all := RegisterAllTasks(TaskDeps{Logger: logger.Discard(), Store: &fakeMaintainer{}, Regenerator: &fakeRegenerator{}})
	assert.Contains(t, all, SQLMaintenance)
	assert.Contains(t, all, ProfileRegeneration)

	none := RegisterAllTasks(TaskDeps{Logger: logger.Discard()})
	assert.Empty(t, none)
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	m := &fakeMaintainer{}
	task := newSQLMaintenanceTask(TaskDeps{Logger: logger.Discard(), Store: m})
	require.NoError(t, task(context.Background()))
	assert.Equal(t, 1, m.runs)

	m.err = errors.New("locked")
	assert.ErrorContains(t, task(context.Background()), "locked")
}

func TestProfileRegenerationTaskContinuesPastFailures(t *testing.T) {
	t.Parallel()

	r := &fakeRegenerator{fail: map[string]bool{"c1": true}}
	task := newProfileRegenerationTask(TaskDeps{Logger: logger.Discard(), Regenerator: r, Channels: []string{"c1", "c2"}})

	err := task(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel c1")
	assert.Equal(t, []string{"c1", "c2"}, r.channels)
}

func TestProfileRegenerationTaskWithoutChannels(t *testing.T) {
	t.Parallel()

	r := &fakeRegenerator{}
	task := newProfileRegenerationTask(TaskDeps{Logger: logger.Discard(), Regenerator: r})
	require.NoError(t, task(context.Background()))
	assert.Empty(t, r.channels)
}
