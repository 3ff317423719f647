package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/gzhole/voxsh/internal/llm"
)

// RetryPolicy bounds retries of the query embedding call.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetry is three attempts, 1s doubling, capped at 10s.
var DefaultRetry = RetryPolicy{Attempts: 3, Base: time.Second, Max: 10 * time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Base * time.Duration(1<<attempt)
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// doWithRetry calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx is done. Only transient provider errors are retried.
func doWithRetry[T any](ctx context.Context, logger *slog.Logger, policy RetryPolicy, fn func() (T, error)) (ret T, err error) {
	attempts := max(policy.Attempts, 1)
	for i := range attempts {
		ret, err = fn()
		if err == nil || !llm.IsTransient(err) {
			return ret, err
		}
		if i == attempts-1 {
			break
		}
		logger.WarnContext(ctx, "retry",
			"attempt", i+1, "error", err,
		)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return ret, err
		case <-time.After(policy.delay(i)):
		}
	}
	return ret, err
}
