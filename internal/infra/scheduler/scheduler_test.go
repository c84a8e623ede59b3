package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study_delivery_bot/internal/app"
)

type countingTicker struct {
	calls    atomic.Int32
	deadline atomic.Bool
	err      error
}

func (c *countingTicker) Tick(ctx context.Context) (*app.TickSummary, error) {
	c.calls.Add(1)
	_, ok := ctx.Deadline()
	c.deadline.Store(ok)
	if c.err != nil {
		return nil, c.err
	}
	return &app.TickSummary{TickID: "t"}, nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestEngineScheduler_RunsTicks(t *testing.T) {
	ticker := &countingTicker{}
	s := NewEngineScheduler(ticker, quietLogger(), "@every 1s", time.Minute)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return ticker.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.True(t, ticker.deadline.Load(), "ticks run with a timeout")
}

func TestEngineScheduler_TickErrorIsLogged(t *testing.T) {
	ticker := &countingTicker{err: fmt.Errorf("database down")}
	s := NewEngineScheduler(ticker, quietLogger(), "@every 1s", time.Minute)

	assert.NotPanics(t, s.runTick)
	assert.Equal(t, int32(1), ticker.calls.Load())
}

func TestEngineScheduler_InvalidSpec(t *testing.T) {
	s := NewEngineScheduler(&countingTicker{}, quietLogger(), "every minute", time.Minute)
	assert.Error(t, s.Start())
}
