package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("zero interval without cron should fail")
	}
	if _, err := New(Options{Cron: "not a cron"}, zerolog.Nop()); err == nil {
		t.Fatal("invalid cron should fail")
	}
	if _, err := New(Options{Cron: "5 0 * * *"}, zerolog.Nop()); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
}

func TestNextTickAlignsToUTCMidnight(t *testing.T) {
	s, err := New(Options{Interval: 24 * time.Hour, AlignToStart: true}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 10, 14, 13, 45, 0, 0, time.UTC)
	want := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(want) {
		t.Fatalf("want %s, got %s", want, got)
	}
	if got := s.bucketStart(want.Add(time.Second)); !got.Equal(want) {
		t.Fatalf("bucket start should truncate to day, got %s", got)
	}
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) >= 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if ticks.Load() < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", ticks.Load())
	}
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
