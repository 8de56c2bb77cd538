package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/profiles"
)

func commandEvent(content string) gateway.Event {
	return gateway.Event{ChannelID: "c1", MessageID: "cmd", Author: "jame8k", Content: content, Timestamp: t0}
}

func TestCommandsDisabledByDefault(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	e := newTestEngine(t, EngineDeps{Store: store, Completer: &fakeCompleter{}}, EngineConfig{})
	r := &recordingReplier{}

	run(e, commandEvent("!showProfiles"), r)
	assert.Empty(t, r.all())

	msgs, err := store.ChannelMessages(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "treated as an ordinary message")
}

func TestShowProfiles(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	e := newTestEngine(t, EngineDeps{Store: store, Completer: &fakeCompleter{}}, EngineConfig{CommandsEnabled: true})

	r := &recordingReplier{}
	run(e, commandEvent("!showProfiles"), r)
	assert.Equal(t, []string{msgNoProfilesStored}, r.all())

	require.NoError(t, store.UpsertProfile(context.Background(), "jame8k", "Runs the server."))
	r = &recordingReplier{}
	run(e, commandEvent("!showprofiles"), r)
	assert.Equal(t, []string{"User profiles:\n\njame8k:\nRuns the server.\n"}, r.all())
}

func TestGenerateProfilesCommand(t *testing.T) {
	t.Parallel()

	regen := &fakeRegenerator{res: profiles.Result{Updated: []string{"a", "b"}}}
	e := newTestEngine(t, EngineDeps{Completer: &fakeCompleter{}, Regenerator: regen}, EngineConfig{CommandsEnabled: true})
	r := &recordingReplier{}
	run(e, commandEvent("!generateProfiles"), r)
	assert.Equal(t, []string{"Generated profiles for 2 users."}, r.all())

	regen.err = errors.New("db down")
	r = &recordingReplier{}
	run(e, commandEvent("!generateProfiles"), r)
	assert.Equal(t, []string{msgGenerateFailed}, r.all())
}

func TestSaveChannelBackfillsInOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	hist := &fakeHistory{events: []gateway.Event{
		{ChannelID: "c1", MessageID: "1", Author: "jame8k", Content: "<@42> first", Timestamp: t0, MentionTokens: []string{"<@42>"}},
		{ChannelID: "c1", MessageID: "2", Author: "scottdaly", Content: "second", Timestamp: t0.Add(time.Minute)},
	}}
	e := newTestEngine(t, EngineDeps{Store: store, Completer: &fakeCompleter{}, History: hist}, EngineConfig{CommandsEnabled: true})
	r := &recordingReplier{}

	run(e, commandEvent("!saveChannel"), r)
	assert.Equal(t, []string{msgSaveStarted, msgSaveDone}, r.all())

	msgs, err := store.ChannelMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "<@almighty-zuck> first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}

func TestSaveChannelRollsBackOnBadRow(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	hist := &fakeHistory{events: []gateway.Event{
		{ChannelID: "c1", MessageID: "1", Author: "jame8k", Content: "ok", Timestamp: t0},
		{ChannelID: "c1", MessageID: "", Author: "broken", Content: "no id", Timestamp: t0},
	}}
	e := newTestEngine(t, EngineDeps{Store: store, Completer: &fakeCompleter{}, History: hist}, EngineConfig{CommandsEnabled: true})
	r := &recordingReplier{}

	run(e, commandEvent("!saveChannel"), r)
	assert.Equal(t, []string{msgSaveStarted, msgSaveFailed}, r.all())

	msgs, err := store.ChannelMessages(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSaveChannelUnsupported(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, EngineDeps{Completer: &fakeCompleter{}}, EngineConfig{CommandsEnabled: true})
	r := &recordingReplier{}
	run(e, commandEvent("!saveChannel"), r)
	assert.Equal(t, []string{msgSaveUnsupported}, r.all())

	hist := &fakeHistory{err: gateway.ErrHistoryUnsupported}
	e = newTestEngine(t, EngineDeps{Completer: &fakeCompleter{}, History: hist}, EngineConfig{CommandsEnabled: true})
	r = &recordingReplier{}
	run(e, commandEvent("!saveChannel"), r)
	assert.Equal(t, []string{msgSaveStarted, msgSaveUnsupported}, r.all())
}
