package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/personabot/internal/gateway"
	"github.com/edgard/personabot/internal/logger"
)

// scriptedGateway delivers its events once, then waits for cancellation.
type scriptedGateway struct {
	events  []gateway.Event
	replier gateway.Replier
	err     error
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) Run(ctx context.Context, h gateway.Handler) error {
	if g.err != nil {
		return g.err
	}
	for _, ev := range g.events {
		h(ctx, ev, g.replier)
	}
	<-ctx.Done()
	return nil
}

func TestRunDeliversAndDrains(t *testing.T) {
	t.Parallel()

	r := &recordingReplier{}
	gw := &scriptedGateway{events: []gateway.Event{mention("1", "<@42> hi")}, replier: r}
	e := newTestEngine(t, EngineDeps{Completer: &fakeCompleter{reply: "hello"}}, EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBot(logger.Discard(), gw, e, nil, nil).Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.all()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, []string{"hello"}, r.all())
}

func TestRunReportsGatewayFailure(t *testing.T) {
	t.Parallel()

	gw := &scriptedGateway{err: errors.New("invalid token")}
	e := newTestEngine(t, EngineDeps{Completer: &fakeCompleter{}}, EngineConfig{})

	err := NewBot(logger.Discard(), gw, e, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}
