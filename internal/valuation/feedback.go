package valuation

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

// DefaultFeedbackLimit bounds how many corrections are loaded per batch.
const DefaultFeedbackLimit = 30

// FeedbackResult is the memoized outcome of a feedback fetch. A failed fetch
// carries Err and an empty Context.
type FeedbackResult struct {
	Context model.FeedbackContext
	Err     error
}

// FeedbackCache loads the feedback context at most once until invalidated.
// Failures are memoized too, so a broken feedback source is not hammered
// once per vehicle.
type FeedbackCache struct {
	source FeedbackSource
	policy resilience.Policy
	limit  int

	mu      sync.Mutex
	result  *FeedbackResult
	fetches atomic.Int64
}

// NewFeedbackCache creates a cache over source.
func NewFeedbackCache(source FeedbackSource, policy resilience.Policy, limit int) *FeedbackCache {
	if limit <= 0 {
		limit = DefaultFeedbackLimit
	}
	return &FeedbackCache{source: source, policy: policy, limit: limit}
}

// Get returns the cached result, fetching it on first use. Concurrent
// callers share a single fetch.
func (c *FeedbackCache) Get(ctx context.Context) FeedbackResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result != nil {
		return *c.result
	}

	c.fetches.Add(1)
	records, err := resilience.Execute(ctx, c.policy, func(ctx context.Context) ([]model.FeedbackRecord, error) {
		return c.source.RecentFeedback(ctx, c.limit)
	})
	res := FeedbackResult{Context: model.FeedbackContext{}, Err: err}
	switch {
	case err != nil:
		zap.L().Warn("feedback context unavailable, continuing without it", zap.Error(err))
	case len(records) > 0:
		if len(records) > c.limit {
			records = records[:c.limit]
		}
		res.Context = records
	}
	c.result = &res
	return res
}

// Invalidate drops the memoized result. Call it when the dataset changes.
func (c *FeedbackCache) Invalidate() {
	c.mu.Lock()
	c.result = nil
	c.mu.Unlock()
}

// Fetches reports how many times the source was queried.
func (c *FeedbackCache) Fetches() int64 {
	return c.fetches.Load()
}
