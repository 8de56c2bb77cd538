package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
)

type sentReply struct {
	channelID, content, replyTo string
}

type fakeSession struct {
	mu       sync.Mutex
	handlers []any
	opened   chan struct{}
	closed   bool
	sent     []sentReply
	history  []*discordgo.Message // newest first, as the API returns
	calls    []string
	sendErr  error
}

func newFakeSession() *fakeSession {
	return &fakeSession{opened: make(chan struct{})}
}

func (f *fakeSession) AddHandler(h any) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	return func() {}
}

func (f *fakeSession) Open() error {
	close(f.opened)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentReply{channelID, content, ref.MessageID})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(f.sent))}, nil
}

func (f *fakeSession) ChannelMessages(_ string, limit int, beforeID, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, beforeID)

	start := 0
	if beforeID != "" {
		for i, m := range f.history {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.history))
	return f.history[start:end], nil
}

func (f *fakeSession) dispatch(v any) {
	f.mu.Lock()
	hs := append([]any(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.Ready):
			if r, ok := v.(*discordgo.Ready); ok {
				fn(nil, r)
			}
		case func(*discordgo.Session, *discordgo.MessageCreate):
			if m, ok := v.(*discordgo.MessageCreate); ok {
				fn(nil, m)
			}
		}
	}
}

func msg(id, author, content string, at time.Time) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		ChannelID: "chan",
		Author:    &discordgo.User{ID: "u-" + author, Username: author},
		Content:   content,
		Timestamp: at,
	}
}

func TestToEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := msg("100", "jame8k", "<@42> look", at)
	m.Mentions = []*discordgo.User{{ID: "42"}}
	m.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn/x.txt", ContentType: "text/plain"},
		{URL: "https://cdn/cat.png", ContentType: "image/png"},
	}

	ev, ok := toEvent(m, "42")
	require.True(t, ok)
	assert.Equal(t, gateway.Event{
		ChannelID:     "chan",
		MessageID:     "100",
		Author:        "jame8k",
		Content:       "<@42> look",
		Timestamp:     at,
		MentionsBot:   true,
		MentionTokens: []string{"<@42>", "<@!42>"},
		AttachmentURL: "https://cdn/cat.png",
	}, ev)

	other := msg("101", "scottdaly", "hi <@7>", at)
	other.Mentions = []*discordgo.User{{ID: "7"}}
	other.Author.Bot = true
	ev, ok = toEvent(other, "42")
	require.True(t, ok)
	assert.False(t, ev.MentionsBot)
	assert.True(t, ev.IsFromBot)
	assert.Empty(t, ev.AttachmentURL)

	_, ok = toEvent(&discordgo.Message{ID: "x"}, "42")
	assert.False(t, ok)
}

func TestToEventAttachmentWithoutContentType(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"image extension", "Cat.PNG", "https://cdn/file"},
		{"document", "notes.pdf", ""},
		{"no extension", "blob", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := msg("102", "jame8k", "<@42> what is this", at)
			m.Attachments = []*discordgo.MessageAttachment{{URL: "https://cdn/file", Filename: tt.filename}}

			ev, ok := toEvent(m, "42")
			require.True(t, ok)
			assert.Equal(t, tt.want, ev.AttachmentURL)
		})
	}
}

func TestRunDeliversEventsAndReplies(t *testing.T) {
	t.Parallel()

	fs := newFakeSession()
	g := newGateway(fs, Config{SendTimeout: time.Second}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan gateway.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx, func(ctx context.Context, ev gateway.Event, r gateway.Replier) {
			assert.NoError(t, r.SendReply(ctx, "pong"))
			events <- ev
		})
	}()

	<-fs.opened
	fs.dispatch(&discordgo.Ready{User: &discordgo.User{ID: "42", Username: "zuck"}})

	in := msg("200", "jame8k", "<@42> ping", time.Now())
	in.Mentions = []*discordgo.User{{ID: "42"}}
	fs.dispatch(&discordgo.MessageCreate{Message: in})

	ev := <-events
	assert.True(t, ev.MentionsBot)
	assert.Equal(t, "200", ev.MessageID)

	cancel()
	require.NoError(t, <-done)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.True(t, fs.closed)
	assert.Equal(t, []sentReply{{"chan", "pong", "200"}}, fs.sent)
}

func TestSendReplySplitsLongText(t *testing.T) {
	t.Parallel()

	fs := newFakeSession()
	g := newGateway(fs, Config{}, logger.Discard())
	r := &replier{gateway: g, channelID: "chan", messageID: "1"}

	require.NoError(t, r.SendReply(context.Background(), strings.Repeat("a", messageLimit+10)))
	require.Len(t, fs.sent, 2)
	assert.Len(t, fs.sent[0].content, messageLimit)
	assert.Len(t, fs.sent[1].content, 10)
}

func TestSendReplyError(t *testing.T) {
	t.Parallel()

	fs := newFakeSession()
	fs.sendErr = errors.New("missing permissions")
	g := newGateway(fs, Config{}, logger.Discard())

	err := (&replier{gateway: g, channelID: "chan", messageID: "1"}).SendReply(context.Background(), "x")
	assert.ErrorContains(t, err, "missing permissions")
}

func TestFetchHistoryPagesOldestFirst(t *testing.T) {
	t.Parallel()

	fs := newFakeSession()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	const total = 250
	for i := total; i >= 1; i-- {
		fs.history = append(fs.history, msg(fmt.Sprintf("%d", i), "jame8k", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	g := newGateway(fs, Config{}, logger.Discard())
	g.setBotID("42")

	events, err := g.FetchHistory(context.Background(), "chan")
	require.NoError(t, err)
	require.Len(t, events, total)
	assert.Equal(t, "1", events[0].MessageID)
	assert.Equal(t, "250", events[total-1].MessageID)
	assert.Equal(t, []string{"", "151", "51"}, fs.calls)
	assert.Equal(t, []string{"<@42>", "<@!42>"}, events[0].MentionTokens)
}

func TestFetchHistoryHonorsContext(t *testing.T) {
	t.Parallel()

	fs := newFakeSession()
	for i := 0; i < pageSize; i++ {
		fs.history = append(fs.history, msg(fmt.Sprintf("m%d", i), "a", "x", time.Now()))
	}
	g := newGateway(fs, Config{PageInterval: time.Hour}, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.FetchHistory(ctx, "chan")
	assert.Error(t, err)
	assert.Len(t, fs.calls, 1)
}
