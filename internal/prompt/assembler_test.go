package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/database"
	"github.com/edgard/personabot/internal/persona"
)

type fakeSources struct {
	messages   []database.Message // newest first
	profiles   []database.UserProfile
	err        error
	gotLimit   int
	gotChannel string
}

func (f *fakeSources) RecentMessages(_ context.Context, channelID string, limit int) ([]database.Message, error) {
	f.gotChannel, f.gotLimit = channelID, limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func (f *fakeSources) Profiles(context.Context) ([]database.UserProfile, error) {
	return f.profiles, nil
}

var zuck = persona.Persona{Name: "Almighty Zuck", Preamble: "You are Zuck.\n\n"}

func TestBuildEmptyStore(t *testing.T) {
	t.Parallel()

	got, err := NewAssembler(&fakeSources{}).Build(context.Background(), "c1", zuck)
	require.NoError(t, err)

	want := "You are Zuck.\n\n" +
		persona.DefaultProfilesHeader +
		persona.DefaultConversationHeader +
		persona.DefaultSuffix
	assert.Equal(t, want, got)
}

func TestBuildProfilesAndConversation(t *testing.T) {
	t.Parallel()

	now := time.Now()
	src := &fakeSources{
		messages: []database.Message{
			{Author: "bob", Content: "second", Timestamp: now},
			{Author: "alice", Content: "first", Timestamp: now.Add(-time.Minute)},
		},
		profiles: []database.UserProfile{
			{Username: "alice", Profile: "likes go"},
			{Username: "bob", Profile: ""},
		},
	}

	got, err := NewAssembler(src).Build(context.Background(), "c1", zuck)
	require.NoError(t, err)

	assert.Equal(t, "c1", src.gotChannel)
	assert.Equal(t, persona.DefaultHistoryLimit, src.gotLimit)
	assert.Contains(t, got, "Profile for alice: likes go\n")
	assert.Contains(t, got, "Profile for bob: No profile available yet.\n")

	first := strings.Index(got, "alice: first\n")
	second := strings.Index(got, "bob: second\n")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	assert.True(t, strings.HasPrefix(got, zuck.Preamble))
	assert.True(t, strings.HasSuffix(got, persona.DefaultSuffix))
	assert.Less(t, strings.Index(got, "Profile for"), strings.Index(got, persona.DefaultConversationHeader))
}

func TestBuildRespectsHistoryLimit(t *testing.T) {
	t.Parallel()

	src := &fakeSources{messages: []database.Message{
		{Author: "a", Content: "3"}, {Author: "a", Content: "2"}, {Author: "a", Content: "1"},
	}}
	p := zuck
	p.HistoryLimit = 2

	parts, err := NewAssembler(src).BuildParts(context.Background(), "c1", p)
	require.NoError(t, err)
	assert.Equal(t, 2, src.gotLimit)
	assert.Equal(t, "Profile for a: "+NoProfile+"\n"+persona.DefaultConversationHeader+"a: 2\na: 3\n"+persona.DefaultSuffix, parts.Volatile)
	assert.NotContains(t, parts.String(), "a: 1\n")
}

func TestBuildPartsSplit(t *testing.T) {
	t.Parallel()

	src := &fakeSources{
		messages: []database.Message{{Author: "a", Content: "hi"}},
		profiles: []database.UserProfile{{Username: "a", Profile: "p"}},
	}
	parts, err := NewAssembler(src).BuildParts(context.Background(), "c1", zuck)
	require.NoError(t, err)

	assert.Equal(t, zuck.Preamble+persona.DefaultProfilesHeader+"Profile for a: p\n", parts.Stable)
	assert.Equal(t, 1, strings.Count(parts.String(), "Profile for a:"))
	assert.NotContains(t, parts.Stable, "a: hi")
	assert.Contains(t, parts.Volatile, "a: hi\n")
}

func TestBuildPlaceholderForParticipantsWithoutProfile(t *testing.T) {
	t.Parallel()

	src := &fakeSources{messages: []database.Message{
		{Author: "Almighty Zuck", Content: "reply"},
		{Author: "carol", Content: "again"},
		{Author: "carol", Content: "hey"},
	}}
	got, err := NewAssembler(src).Build(context.Background(), "c1", zuck)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(got, "Profile for carol: "+NoProfile+"\n"))
	assert.NotContains(t, got, "Profile for Almighty Zuck")
}

func TestBuildStableIgnoresNewParticipants(t *testing.T) {
	t.Parallel()

	profiles := []database.UserProfile{{Username: "a", Profile: "p"}}
	before, err := NewAssembler(&fakeSources{
		messages: []database.Message{{Author: "a", Content: "hi"}},
		profiles: profiles,
	}).BuildParts(context.Background(), "c1", zuck)
	require.NoError(t, err)

	after, err := NewAssembler(&fakeSources{
		messages: []database.Message{{Author: "newbie", Content: "hello"}, {Author: "a", Content: "hi"}},
		profiles: profiles,
	}).BuildParts(context.Background(), "c1", zuck)
	require.NoError(t, err)

	assert.Equal(t, before.Stable, after.Stable)
	assert.NotContains(t, after.Stable, "newbie")
	assert.True(t, strings.HasPrefix(after.Volatile, "Profile for newbie: "+NoProfile+"\n"+persona.DefaultConversationHeader))
	assert.Less(t, strings.Index(after.String(), "Profile for a: p"), strings.Index(after.String(), "Profile for newbie"))
}

func TestBuildStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := NewAssembler(&fakeSources{err: boom}).Build(context.Background(), "c1", zuck)
	assert.ErrorIs(t, err, boom)
}
