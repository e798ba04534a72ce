package valuation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

func feedbackPolicy() resilience.Policy {
	return resilience.Policy{Name: "feedback", Timeout: time.Second}
}

func TestFeedbackCache_FetchesOnce(t *testing.T) {
	src := &countingFeedback{records: []model.FeedbackRecord{{ID: "a"}, {ID: "b"}}}
	c := NewFeedbackCache(src, feedbackPolicy(), 10)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Get(context.Background())
			assert.Len(t, res.Context, 2)
			assert.NoError(t, res.Err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int64(1), c.Fetches())
}

func TestFeedbackCache_FailureIsMemoized(t *testing.T) {
	src := &countingFeedback{err: errors.New("db down")}
	c := NewFeedbackCache(src, feedbackPolicy(), 10)

	first := c.Get(context.Background())
	second := c.Get(context.Background())

	require.Error(t, first.Err)
	assert.Contains(t, first.Err.Error(), "db down")
	assert.NotNil(t, first.Context)
	assert.Empty(t, first.Context)
	assert.Equal(t, first.Err, second.Err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFeedbackCache_Invalidate(t *testing.T) {
	src := &countingFeedback{records: []model.FeedbackRecord{{ID: "a"}}}
	c := NewFeedbackCache(src, feedbackPolicy(), 10)

	c.Get(context.Background())
	c.Invalidate()
	c.Get(context.Background())

	assert.Equal(t, int32(2), src.calls.Load())
}

func TestFeedbackCache_TruncatesToLimit(t *testing.T) {
	records := make([]model.FeedbackRecord, 5)
	src := &countingFeedback{records: records}
	c := NewFeedbackCache(src, feedbackPolicy(), 3)

	assert.Len(t, c.Get(context.Background()).Context, 3)
}

func TestFeedbackCache_DefaultLimit(t *testing.T) {
	c := NewFeedbackCache(&countingFeedback{}, feedbackPolicy(), 0)
	assert.Equal(t, DefaultFeedbackLimit, c.limit)

	res := c.Get(context.Background())
	assert.NoError(t, res.Err)
	assert.NotNil(t, res.Context)
}
