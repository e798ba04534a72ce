package model

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrStatusRegression is returned when an update would move a vehicle's
// status backwards.
var ErrStatusRegression = eris.New("status regression")

// BatchSnapshot is a point-in-time copy of a BatchJob, safe to hand to
// observers and to serialize.
type BatchSnapshot struct {
	ID           string          `json:"id"`
	Total        int             `json:"total"`
	Current      int             `json:"current"`
	CurrentLabel string          `json:"current_label,omitempty"`
	Running      bool            `json:"running"`
	Finished     bool            `json:"finished"`
	Completed    int             `json:"completed"`
	Failed       int             `json:"failed"`
	Pending      int             `json:"pending"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	Results      []VehicleResult `json:"results"`
}

// BatchJob is the live, in-memory state of one bulk valuation run. All
// methods are safe for concurrent use. Every mutation publishes a snapshot
// to subscribers.
type BatchJob struct {
	mu         sync.RWMutex
	id         string
	inputs     []VehicleInput
	results    []VehicleResult
	current    int
	label      string
	running    bool
	finished   bool
	startedAt  time.Time
	finishedAt time.Time

	subMu  sync.Mutex
	subs   map[int]chan BatchSnapshot
	nextID int
}

// NewBatchJob creates a job with one pending result per input.
func NewBatchJob(id string, inputs []VehicleInput) *BatchJob {
	in := make([]VehicleInput, len(inputs))
	copy(in, inputs)
	results := make([]VehicleResult, len(in))
	for i, v := range in {
		results[i] = PendingResult(i, v)
	}
	return &BatchJob{
		id:      id,
		inputs:  in,
		results: results,
		subs:    make(map[int]chan BatchSnapshot),
	}
}

// ID returns the batch identifier.
func (j *BatchJob) ID() string {
	return j.id
}

// Len returns the number of vehicles in the batch.
func (j *BatchJob) Len() int {
	return len(j.inputs)
}

// Input returns the input at index i.
func (j *BatchJob) Input(i int) VehicleInput {
	return j.inputs[i]
}

// Start marks the batch running.
func (j *BatchJob) Start(now time.Time) {
	j.mu.Lock()
	j.running = true
	j.startedAt = now
	j.mu.Unlock()
	j.publish()
}

// MarkProcessing moves the vehicle at i to processing and advances the
// progress counters. Current never decreases.
func (j *BatchJob) MarkProcessing(i int) error {
	j.mu.Lock()
	if err := j.transitionLocked(i, StatusProcessing); err != nil {
		j.mu.Unlock()
		return err
	}
	if i+1 > j.current {
		j.current = i + 1
		j.label = j.inputs[i].Label()
	}
	j.mu.Unlock()
	j.publish()
	return nil
}

// SetResult stores a terminal result for index i.
func (j *BatchJob) SetResult(i int, r VehicleResult) error {
	if !r.Status.Terminal() {
		return eris.Errorf("batch: result for index %d has non-terminal status %q", i, r.Status)
	}
	j.mu.Lock()
	if err := j.transitionLocked(i, r.Status); err != nil {
		j.mu.Unlock()
		return err
	}
	r.Index = i
	r.Input = j.inputs[i]
	j.results[i] = r
	j.mu.Unlock()
	j.publish()
	return nil
}

func (j *BatchJob) transitionLocked(i int, next Status) error {
	if i < 0 || i >= len(j.results) {
		return eris.Errorf("batch: index %d out of range (total %d)", i, len(j.results))
	}
	cur := j.results[i].Status
	if !cur.CanTransition(next) {
		return eris.Wrapf(ErrStatusRegression, "index %d: %s -> %s", i, cur, next)
	}
	j.results[i].Status = next
	return nil
}

// Finish marks the batch done, publishes the final snapshot and closes all
// subscriptions.
func (j *BatchJob) Finish(now time.Time) {
	j.mu.Lock()
	j.running = false
	j.finished = true
	j.finishedAt = now
	j.mu.Unlock()
	j.publish()

	j.subMu.Lock()
	for id, ch := range j.subs {
		close(ch)
		delete(j.subs, id)
	}
	j.subMu.Unlock()
}

// Finished reports whether the batch has completed.
func (j *BatchJob) Finished() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finished
}

// Snapshot returns a copy of the current state.
func (j *BatchJob) Snapshot() BatchSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := BatchSnapshot{
		ID:           j.id,
		Total:        len(j.inputs),
		Current:      j.current,
		CurrentLabel: j.label,
		Running:      j.running,
		Finished:     j.finished,
		Results:      make([]VehicleResult, len(j.results)),
	}
	copy(s.Results, j.results)
	for _, r := range j.results {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Failed++
		case StatusPending:
			s.Pending++
		}
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Subscribe returns a channel receiving a snapshot after every update, and
// a func to stop receiving. Slow subscribers only miss intermediate
// snapshots; the newest one is always delivered. The channel is closed when
// the batch finishes.
func (j *BatchJob) Subscribe(buffer int) (<-chan BatchSnapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan BatchSnapshot, buffer)

	j.subMu.Lock()
	if j.Finished() {
		j.subMu.Unlock()
		ch <- j.Snapshot()
		close(ch)
		return ch, func() {}
	}
	id := j.nextID
	j.nextID++
	j.subs[id] = ch
	j.subMu.Unlock()

	return ch, func() {
		j.subMu.Lock()
		defer j.subMu.Unlock()
		if c, ok := j.subs[id]; ok {
			close(c)
			delete(j.subs, id)
		}
	}
}

func (j *BatchJob) publish() {
	// Holding subMu while snapshotting keeps deliveries in mutation order.
	j.subMu.Lock()
	defer j.subMu.Unlock()
	if len(j.subs) == 0 {
		return
	}
	snap := j.Snapshot()
	for _, ch := range j.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
