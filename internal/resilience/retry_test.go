package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/semem/internal/memerr"
)

func TestWithProviderRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := WithProviderRetry(context.Background(), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want %q", got, "ok")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithProviderRetry_RetriesOnceOnProviderUnavailable(t *testing.T) {
	calls := 0
	got, err := WithProviderRetry(context.Background(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", memerr.New("test", memerr.KindProviderUnavailable, errTest)
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("result = %q, want %q", got, "recovered")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestWithProviderRetry_GivesUpAfterOneRetry(t *testing.T) {
	calls := 0
	_, err := WithProviderRetry(context.Background(), func() (string, error) {
		calls++
		return "", memerr.New("test", memerr.KindProviderUnavailable, errTest)
	})
	if err == nil {
		t.Fatal("expected an error after the retry is exhausted")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (initial + one retry)", calls)
	}
}

func TestWithProviderRetry_DoesNotRetryOtherKinds(t *testing.T) {
	calls := 0
	_, err := WithProviderRetry(context.Background(), func() (string, error) {
		calls++
		return "", memerr.New("test", memerr.KindInvalidArgument, errTest)
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for a non-provider-unavailable error)", calls)
	}
}

func TestWithProviderRetry_ContextCancelledDuringBackoffReturnsOriginalError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	original := memerr.New("test", memerr.KindProviderUnavailable, errTest)
	_, err := WithProviderRetry(ctx, func() (string, error) {
		calls++
		return "", original
	})
	if !errors.Is(err, original) {
		t.Errorf("expected the original error to be returned, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry once context is already done)", calls)
	}
}

func TestProviderBackoff_FirstEntryIs250ms(t *testing.T) {
	if ProviderBackoff[0] != 250*time.Millisecond {
		t.Errorf("ProviderBackoff[0] = %v, want 250ms", ProviderBackoff[0])
	}
}
