package api

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pimworks/golden-cli/internal/model"
)

// BatchResult is the outcome of one item in a batch update. Err is nil on
// success.
type BatchResult struct {
	MatchID string
	Match   model.SimilarityMatch
	Err     error
}

// BatchOptions tune batch concurrency and rate.
type BatchOptions struct {
	// Concurrency caps in-flight requests. Default: 5.
	Concurrency int
	// RatePerSecond throttles request starts. 0 disables throttling.
	RatePerSecond float64
}

func (o *BatchOptions) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
}

// BatchUpdateConfidence applies one confidence status to many matches. Every
// match gets its own result; one failure never aborts the rest. The returned
// slice preserves input order.
func (c *Client) BatchUpdateConfidence(ctx context.Context, matchIDs []string, status model.ConfidenceStatus, opts BatchOptions) []BatchResult {
	opts.applyDefaults()

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	results := make([]BatchResult, len(matchIDs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, matchID := range matchIDs {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					mu.Lock()
					results[i] = BatchResult{MatchID: matchID, Err: err}
					mu.Unlock()
					return nil
				}
			}
			match, err := c.UpdateConfidence(ctx, matchID, status)
			mu.Lock()
			results[i] = BatchResult{MatchID: matchID, Match: match, Err: err}
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return errors, so Wait only synchronizes.
	_ = g.Wait()
	return results
}

// BatchSucceeded counts results with no error.
func BatchSucceeded(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
