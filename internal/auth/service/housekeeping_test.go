package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/service"
	"github.com/stretchr/testify/require"
)

func TestHousekeeping_Cleanup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	now := time.Now()

	_, err := h.store.RevokedTokens().RevokeToken(ctx, "expired", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = h.store.RevokedTokens().RevokeToken(ctx, "live", now.Add(time.Hour))
	require.NoError(t, err)

	hk := service.NewHousekeepingService(h.store, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
	require.Equal(t, int64(1), hk.Cleanup(ctx))

	revoked, err := h.store.RevokedTokens().IsTokenRevoked(ctx, "live")
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestHousekeeping_StartStop(t *testing.T) {
	h := newHarness(t)

	hk := service.NewHousekeepingService(h.store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond)
	hk.Start()
	time.Sleep(5 * time.Millisecond)
	hk.Stop()
}
