package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/b2a/internal/model"
	"github.com/cleared-dev/b2a/internal/remote"
)

// SnapshotSource returns the stored snapshot of a bill.
type SnapshotSource interface {
	GetClientBillSnapshot(ctx context.Context, billID string) (*model.Snapshot, error)
}

// FetchOptions control how snapshots are fetched.
type FetchOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// Concurrency bounds the number of fetches in flight. 1 fetches
	// sequentially.
	Concurrency int
}

// DefaultFetchOptions retries three times starting at 300ms and fetches
// four bills at a time.
var DefaultFetchOptions = FetchOptions{MaxAttempts: 3, InitialDelay: 300 * time.Millisecond, Concurrency: 4}

// fetchAll fetches every bill's snapshot. Results are indexed like billIDs
// regardless of completion order. The first failure cancels the rest.
func fetchAll(ctx context.Context, src SnapshotSource, billIDs []string, opts FetchOptions, logger *slog.Logger) ([]*model.Snapshot, error) {
	out := make([]*model.Snapshot, len(billIDs))
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, billID := range billIDs {
		g.Go(func() error {
			snap, err := fetchOne(ctx, src, billID, opts, logger)
			if err != nil {
				return fmt.Errorf("fetching snapshot %s: %w", billID, err)
			}
			out[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchOne retries 5xx responses with exponential backoff. Any other error
// ends the retries immediately.
func fetchOne(ctx context.Context, src SnapshotSource, billID string, opts FetchOptions, logger *slog.Logger) (*model.Snapshot, error) {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	r := retry.New[*model.Snapshot](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  opts.InitialDelay,
		BackoffPolicy: retry.BackoffExponential,
		IsRetryable:   remote.IsServerError,
		OnRetry: func(attempt int, err error) {
			logger.Warn("snapshot fetch failed, retrying", "bill", billID, "attempt", attempt, "error", err)
		},
	})

	calls := 0
	snap, err := r.Do(ctx, func(ctx context.Context) (*model.Snapshot, error) {
		calls++
		return src.GetClientBillSnapshot(ctx, billID)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("snapshot fetched", "bill", billID, "attempts", calls)
	return snap, nil
}
