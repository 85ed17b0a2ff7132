package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDeleter struct{}

func (failingDeleter) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestAliasSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryAliasReservations(10*time.Minute, clock.Now)
	require.NoError(t, store.Reserve(ctx, "stale"))
	require.NoError(t, store.Reserve(ctx, "kept"))
	require.NoError(t, store.Confirm(ctx, "kept"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewAliasSweeper(store, time.Minute, logger)
	sweeper.now = func() time.Time { return clock.Now().Add(11 * time.Minute) }

	var swept int64
	sweeper.OnSwept = func(n int64) { swept += n }

	assert.Equal(t, int64(1), sweeper.SweepOnce(ctx))
	assert.Equal(t, int64(1), swept)

	_, err := store.Get(ctx, "kept")
	assert.NoError(t, err)
	assert.NoError(t, store.Reserve(ctx, "stale"))
}

func TestAliasSweeper_ErrorIsSwallowed(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := NewAliasSweeper(failingDeleter{}, time.Minute, logger)
	sweeper.OnSwept = func(int64) { t.Fatal("OnSwept must not be called on error") }

	assert.Zero(t, sweeper.SweepOnce(context.Background()))
}

func TestAliasSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryAliasReservations(0, nil)
	sweeper := NewAliasSweeper(store, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
