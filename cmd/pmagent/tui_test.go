package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunInBackgroundStopWaitsForReturn(t *testing.T) {
	var finished atomic.Bool
	stop := runInBackground(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})

	stop()
	if !finished.Load() {
		t.Fatalf("expected stop to wait for the goroutine to return")
	}
}

func TestRunInBackgroundReportsError(t *testing.T) {
	boom := errors.New("listen failed")
	var got error
	stop := runInBackground(context.Background(), func(ctx context.Context) error {
		return boom
	}, func(err error) {
		got = err
	})

	stop()
	if !errors.Is(got, boom) {
		t.Fatalf("expected %v, got %v", boom, got)
	}
}
