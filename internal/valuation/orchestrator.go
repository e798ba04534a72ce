package valuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/progress"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

var (
	// ErrNothingToProcess is returned for an empty batch.
	ErrNothingToProcess = eris.New("nothing to process")
	// ErrBatchRunning is returned when a batch is already in progress.
	ErrBatchRunning = eris.New("a batch is already running")
)

// DefaultItemDelay is the pause between consecutive vehicles.
const DefaultItemDelay = time.Second

// cancelledMessage is the error recorded for vehicles a cancelled batch never reached.
const cancelledMessage = "batch cancelled"

// VehicleEnricher processes a single vehicle. *Enricher implements it.
type VehicleEnricher interface {
	Enrich(ctx context.Context, batchID string, index int, in model.VehicleInput, feedback model.FeedbackContext) model.VehicleResult
}

// Options tunes an Orchestrator.
type Options struct {
	// Workers bounds how many vehicles are processed at once. Default 1.
	Workers int
	// ItemDelay is the pause after each vehicle but the last. Zero disables it.
	ItemDelay time.Duration
	Publisher progress.Publisher
}

// Orchestrator runs one batch at a time and keeps its live state.
type Orchestrator struct {
	enricher VehicleEnricher
	feedback *FeedbackCache
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	current *model.BatchJob
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOrchestrator creates an Orchestrator. feedback may be nil, in which case
// every vehicle is valued without feedback context.
func NewOrchestrator(enricher VehicleEnricher, feedback *FeedbackCache, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	return &Orchestrator{enricher: enricher, feedback: feedback, opts: opts, now: time.Now}
}

// Start begins processing inputs in the background and returns the live job.
// ctx bounds the whole batch; cancelling it stops the batch cooperatively.
func (o *Orchestrator) Start(ctx context.Context, inputs []model.VehicleInput) (*model.BatchJob, error) {
	job, runCtx, err := o.begin(ctx, inputs)
	if err != nil {
		return nil, err
	}
	go o.process(runCtx, job)
	return job, nil
}

// Run processes inputs and returns once every vehicle has a terminal result.
func (o *Orchestrator) Run(ctx context.Context, inputs []model.VehicleInput) (*model.BatchJob, error) {
	job, runCtx, err := o.begin(ctx, inputs)
	if err != nil {
		return nil, err
	}
	o.process(runCtx, job)
	return job, nil
}

func (o *Orchestrator) begin(ctx context.Context, inputs []model.VehicleInput) (*model.BatchJob, context.Context, error) {
	if len(inputs) == 0 {
		return nil, nil, ErrNothingToProcess
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, nil, ErrBatchRunning
	}

	// A new dataset starts with fresh feedback, including after a failed load.
	if o.feedback != nil {
		o.feedback.Invalidate()
	}
	runCtx, cancel := context.WithCancel(ctx)
	job := model.NewBatchJob(uuid.New().String(), inputs)
	o.current = job
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})
	return job, runCtx, nil
}

func (o *Orchestrator) process(ctx context.Context, job *model.BatchJob) {
	log := zap.L().With(zap.String("batch_id", job.ID()))
	forwarded := o.forward(job)

	job.Start(o.now())
	log.Info("batch started", zap.Int("vehicles", job.Len()), zap.Int("workers", o.opts.Workers))

	feedback := model.FeedbackContext{}
	if o.feedback != nil {
		res := o.feedback.Get(ctx)
		feedback = res.Context
	}

	n := job.Len()
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o.processItem(ctx, job, i, feedback)
			if i < n-1 {
				_ = resilience.Sleep(ctx, o.opts.ItemDelay)
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		o.markCancelled(job)
	}

	job.Finish(o.now())
	<-forwarded

	snap := job.Snapshot()
	log.Info("batch finished",
		zap.Int("completed", snap.Completed),
		zap.Int("failed", snap.Failed),
		zap.Bool("cancelled", ctx.Err() != nil),
	)

	o.mu.Lock()
	o.running = false
	o.cancel()
	close(o.done)
	o.mu.Unlock()
}

// processItem runs one vehicle. Nothing that happens here may abort the batch.
func (o *Orchestrator) processItem(ctx context.Context, job *model.BatchJob, i int, feedback model.FeedbackContext) {
	in := job.Input(i)
	log := zap.L().With(zap.String("batch_id", job.ID()), zap.Int("index", i), zap.String("vehicle", in.Label()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("vehicle processing panicked", zap.Any("panic", r))
			res := model.ErrorResult(i, in, "", fmt.Sprintf("internal error: %v", r))
			res.ErrorKind = resilience.KindPermanent
			if err := job.SetResult(i, res); err != nil {
				log.Error("record panic result", zap.Error(err))
			}
		}
	}()

	if err := job.MarkProcessing(i); err != nil {
		log.Error("mark processing", zap.Error(err))
		return
	}

	res := o.enricher.Enrich(ctx, job.ID(), i, in, feedback)
	if !res.Status.Terminal() {
		res = model.ErrorResult(i, in, res.FailedStage, fmt.Sprintf("enricher returned non-terminal status %q", res.Status))
	}
	if err := job.SetResult(i, res); err != nil {
		log.Error("store result", zap.Error(err))
	}
}

func (o *Orchestrator) markCancelled(job *model.BatchJob) {
	for _, r := range job.Snapshot().Results {
		if r.Status.Terminal() {
			continue
		}
		res := model.ErrorResult(r.Index, r.Input, "", cancelledMessage)
		res.ErrorKind = resilience.KindCancelled
		if err := job.SetResult(r.Index, res); err != nil {
			zap.L().Error("mark cancelled", zap.Int("index", r.Index), zap.Error(err))
		}
	}
}

// forward relays job snapshots to the publisher until the job finishes. The
// returned channel closes once the final snapshot has been published.
func (o *Orchestrator) forward(job *model.BatchJob) <-chan struct{} {
	done := make(chan struct{})
	if o.opts.Publisher == nil {
		close(done)
		return done
	}
	ch, _ := job.Subscribe(64)
	go func() {
		defer close(done)
		for snap := range ch {
			if err := o.opts.Publisher.Publish(context.Background(), snap); err != nil {
				zap.L().Warn("publish progress", zap.String("batch_id", snap.ID), zap.Error(err))
			}
		}
	}()
	return done
}

// Current returns the most recent batch, or nil.
func (o *Orchestrator) Current() *model.BatchJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Running reports whether a batch is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Cancel stops the running batch, if any. Vehicles not yet started are
// recorded as errors.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return false
	}
	o.cancel()
	return true
}

// Wait blocks until the current batch finishes or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset discards the finished batch and invalidates the feedback cache so
// the next batch starts from fresh data.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrBatchRunning
	}
	o.current = nil
	if o.feedback != nil {
		o.feedback.Invalidate()
	}
	return nil
}
