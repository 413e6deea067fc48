package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	for _, ok := range []string{"0 6 * * *", "0 9 * * 1-5", "@daily", "@every 1h"} {
		if _, err := Parse(ok); err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "61 * * * *", "not a cron", "0 6 * *"} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q) expected error", bad)
		}
	}
}

func TestStartRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context, time.Time) error { return nil }
	if _, err := Start(ctx, "bogus", time.UTC, noop, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, err := Start(ctx, "@daily", time.UTC, nil, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
}

func TestStartRunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	job := func(context.Context, time.Time) error {
		if runs.Add(1) == 1 {
			done <- struct{}{}
		}
		return nil
	}

	s, err := Start(ctx, "@every 1s", time.UTC, job, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Next().IsZero() {
		t.Fatal("expected a next run time")
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	s.Stop()
}
