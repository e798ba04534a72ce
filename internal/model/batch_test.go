package model

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInputs() []VehicleInput {
	return []VehicleInput{
		{Brand: "Audi", Model: "A3", Year: 2018},
		{Brand: "Fiat", Model: "500", Year: 2017},
		{Brand: "Seat", Model: "Leon", Year: 2021},
	}
}

func TestNewBatchJob_PreSizesPendingResults(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	snap := job.Snapshot()

	assert.Equal(t, "b1", snap.ID)
	assert.Equal(t, 3, snap.Total)
	require.Len(t, snap.Results, 3)
	for i, r := range snap.Results {
		assert.Equal(t, StatusPending, r.Status)
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, 3, snap.Pending)
	assert.False(t, snap.Running)
}

func TestBatchJob_ProgressAndResults(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	job.Start(time.Now())

	require.NoError(t, job.MarkProcessing(0))
	snap := job.Snapshot()
	assert.Equal(t, 1, snap.Current)
	assert.Equal(t, "Audi A3", snap.CurrentLabel)
	assert.Equal(t, StatusProcessing, snap.Results[0].Status)

	require.NoError(t, job.SetResult(0, VehicleResult{Status: StatusCompleted, RecordID: "r1"}))
	require.NoError(t, job.MarkProcessing(1))
	require.NoError(t, job.SetResult(1, VehicleResult{Status: StatusError, Error: "boom"}))

	snap = job.Snapshot()
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, "Fiat 500", snap.CurrentLabel)
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, "Fiat", snap.Results[1].Input.Brand)
	assert.Equal(t, 1, snap.Results[1].Index)
}

func TestBatchJob_RejectsRegression(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	require.NoError(t, job.MarkProcessing(0))
	require.NoError(t, job.SetResult(0, VehicleResult{Status: StatusCompleted}))

	err := job.MarkProcessing(0)
	assert.True(t, errors.Is(err, ErrStatusRegression))

	err = job.SetResult(0, VehicleResult{Status: StatusError})
	assert.True(t, errors.Is(err, ErrStatusRegression))

	err = job.SetResult(1, VehicleResult{Status: StatusPending})
	assert.Error(t, err)

	assert.Error(t, job.MarkProcessing(7))
	assert.Equal(t, StatusCompleted, job.Snapshot().Results[0].Status)
}

func TestBatchJob_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	snap := job.Snapshot()
	snap.Results[0].Status = StatusCompleted

	assert.Equal(t, StatusPending, job.Snapshot().Results[0].Status)
}

func TestBatchJob_SubscribeReceivesUpdatesAndCloses(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs()[:1])
	ch, cancel := job.Subscribe(16)
	defer cancel()

	var got []BatchSnapshot
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range ch {
			got = append(got, s)
		}
	}()

	job.Start(time.Now())
	require.NoError(t, job.MarkProcessing(0))
	require.NoError(t, job.SetResult(0, VehicleResult{Status: StatusCompleted}))
	job.Finish(time.Now())
	wg.Wait()

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.Finished)
	assert.Equal(t, 1, last.Completed)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Current, got[i-1].Current)
	}
}

func TestBatchJob_SubscribeAfterFinish(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	job.Finish(time.Now())

	ch, cancel := job.Subscribe(1)
	defer cancel()
	snap, ok := <-ch
	require.True(t, ok)
	assert.True(t, snap.Finished)
	_, ok = <-ch
	assert.False(t, ok)
}

func TestBatchJob_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	job := NewBatchJob("b1", testInputs())
	ch, cancel := job.Subscribe(1)
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	// Updates after unsubscribe must not panic on the closed channel.
	job.Start(time.Now())
	require.NoError(t, job.MarkProcessing(0))
}
