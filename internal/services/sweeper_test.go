package services

import (
	"context"
	"testing"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperStartStop(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeDirections{dest: testDest, destFound: true})
	sweeper := NewStaleTripSweeper(svc, time.Hour, time.Hour)

	assert.False(t, sweeper.IsRunning())
	require.NoError(t, sweeper.Start(context.Background()))
	assert.True(t, sweeper.IsRunning())

	// Second start is a no-op.
	require.NoError(t, sweeper.Start(context.Background()))

	sweeper.Stop()
	assert.False(t, sweeper.IsRunning())
	sweeper.Stop()
}

func TestSweeperRecoversFromPanic(t *testing.T) {
	// A nil service makes the first tick panic; the loop must recover and
	// exit instead of crashing the process.
	sweeper := NewStaleTripSweeper(nil, time.Millisecond, time.Hour)

	// The recover handler logs via prefab, which requires a logger in the
	// context.
	ctx := logging.With(context.Background(), logging.NewDevLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.sweepLoop(ctx)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not recover from a panicking tick")
	}
}
