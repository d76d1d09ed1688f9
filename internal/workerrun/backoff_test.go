package workerrun

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	ok, err := RetryWithBackoff(context.Background(), 5, func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	ok, err := RetryWithBackoff(context.Background(), 3, func(ctx context.Context) (bool, error) {
		calls++
		return false, errors.New("boom")
	})
	if ok {
		t.Fatal("expected failure")
	}
	if err == nil {
		t.Fatal("expected last error to be returned")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoffRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := RetryWithBackoff(ctx, 5, func(ctx context.Context) (bool, error) {
		calls++
		return false, errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected an error once cancelled")
	}
	if calls == 0 {
		t.Fatal("expected at least one attempt before cancellation")
	}
}
