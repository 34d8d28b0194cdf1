package resilience

import (
	"context"
	"time"

	"github.com/MrWong99/semem/internal/memerr"
)

// ProviderBackoff is the retry schedule for spec §7's ProviderUnavailable
// policy: a single retry after 250ms. The 1s entry is the ceiling used by
// callers that layer their own retry on top of this one (e.g. a fallback
// trying the next backend); WithProviderRetry itself only ever waits the
// first entry, since the policy retries exactly once.
var ProviderBackoff = []time.Duration{250 * time.Millisecond, time.Second}

// WithProviderRetry calls fn once; if it fails with a memerr.KindProviderUnavailable
// error, it waits ProviderBackoff[0] and retries exactly once more before
// returning, per spec §7 ("Retried once with exponential backoff (250 ms,
// 1 s); then surfaced"). Any other error kind is returned immediately without
// a retry.
func WithProviderRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || memerr.KindOf(err) != memerr.KindProviderUnavailable {
		return result, err
	}
	select {
	case <-ctx.Done():
		var zero T
		return zero, err
	case <-time.After(ProviderBackoff[0]):
	}
	return fn()
}
