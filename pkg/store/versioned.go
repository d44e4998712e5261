package store

import (
	"context"

	"github.com/agentgov/pipeline/pkg/errs"
)

// maxConcurrencyRetries bounds how many times an optimistic-concurrency
// write is retried before the caller sees errs.Conflict (spec.md §4.2:
// "concurrent actions are serialized via optimistic concurrency, retrying
// up to N times before returning Conflict").
const maxConcurrencyRetries = 3

// withOptimisticRetry calls attempt up to maxConcurrencyRetries+1 times.
// attempt returns (true, nil) on a successful compare-and-swap write, or
// (false, nil) when the row's version no longer matches what attempt read
// (a concurrent writer won the race) — withOptimisticRetry retries in that
// case. Any non-nil error aborts immediately without retrying.
func withOptimisticRetry(ctx context.Context, attempt func(ctx context.Context) (bool, error)) error {
	for i := 0; i <= maxConcurrencyRetries; i++ {
		ok, err := attempt(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errs.New(errs.Conflict, "optimistic concurrency retries exhausted")
}
