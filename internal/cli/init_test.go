package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"finwatch/internal/log"
)

func TestGracefulShutdownRunsCleanupOnStop(t *testing.T) {
	called := make(chan struct{})
	ctx, stop, done := GracefulShutdown(log.Discard(), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context should carry the shutdown deadline")
		}
		close(called)
	})

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	select {
	case <-called:
	default:
		t.Fatal("cleanup was not called")
	}
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
}

func TestGracefulShutdownTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	_, stop, done := GracefulShutdown(log.Discard(), 20*time.Millisecond, func(context.Context) { <-block })

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout should release done even if cleanup hangs")
	}
}

func TestSetupLoggerUsesEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := SetupLogger()
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be enabled")
	}
}
