// Package valuation drives batches of vehicles through the enrichment
// stages: baseline pricing, market comparables, internal sales history and
// AI synthesis.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/advisor"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

// Policies holds the executor policy of every stage.
type Policies struct {
	Baseline  resilience.Policy
	Market    resilience.Policy
	Internal  resilience.Policy
	Synthesis resilience.Policy
	Persist   resilience.Policy
	Feedback  resilience.Policy
}

const defaultRetryDelay = time.Second

// DefaultPolicies returns the stage budgets used when config leaves them unset.
func DefaultPolicies() Policies {
	return Policies{
		Baseline:  resilience.Policy{Name: string(model.StageBaseline), Timeout: 30 * time.Second, Retries: 2, Delay: defaultRetryDelay},
		Market:    resilience.Policy{Name: string(model.StageMarket), Timeout: 45 * time.Second, Retries: 2, Delay: defaultRetryDelay},
		Internal:  resilience.Policy{Name: string(model.StageInternal), Timeout: 15 * time.Second, Retries: 1, Delay: defaultRetryDelay},
		Synthesis: resilience.Policy{Name: string(model.StageSynthesis), Timeout: 60 * time.Second, Retries: 2, Delay: defaultRetryDelay},
		Persist:   resilience.Policy{Name: string(model.StagePersist), Timeout: 15 * time.Second, Retries: 1, Delay: defaultRetryDelay},
		Feedback:  resilience.Policy{Name: "feedback", Timeout: 10 * time.Second, Retries: 0},
	}
}

// DefaultStagePacing is the pause between consecutive stages of one vehicle.
const DefaultStagePacing = 300 * time.Millisecond

// Services are the collaborators an Enricher calls.
type Services struct {
	Baseline  BaselineService
	Market    MarketService
	Internal  InternalService
	Synthesis SynthesisService
	Saver     RecordSaver
}

// Enricher runs one vehicle through every stage.
type Enricher struct {
	svc      Services
	policies Policies
	pacing   time.Duration
	now      func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher(svc Services, policies Policies, pacing time.Duration) *Enricher {
	return &Enricher{svc: svc, policies: policies, pacing: pacing, now: time.Now}
}

// stageError is a failed stage with the name it failed in.
type stageError struct {
	stage model.Stage
	err   error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.stage, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

// Enrich processes the vehicle at index and always returns a terminal
// result. Stage outputs are recorded on the result as they arrive. A failing
// stage short-circuits the remaining stages and nothing is persisted; the
// outputs gathered so far stay on the error result. Panics become error
// results.
func (e *Enricher) Enrich(ctx context.Context, batchID string, index int, in model.VehicleInput, feedback model.FeedbackContext) (res model.VehicleResult) {
	start := e.now()
	log := zap.L().With(zap.Int("index", index), zap.String("vehicle", in.Label()))
	res = model.VehicleResult{Index: index, Status: model.StatusProcessing, Input: in}

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment panicked", zap.Any("panic", r))
			res.Fail("", fmt.Sprintf("internal error: %v", r), resilience.KindPermanent)
		}
		res.DurationMs = e.now().Sub(start).Milliseconds()
	}()

	if err := e.run(ctx, batchID, in, feedback, &res); err != nil {
		var se *stageError
		stage := model.Stage("")
		if errors.As(err, &se) {
			stage = se.stage
			err = se.err
		}
		log.Warn("vehicle failed", zap.String("stage", string(stage)), zap.Error(err))
		res.Fail(stage, err.Error(), resilience.ClassifyError(err))
		return res
	}

	res.Status = model.StatusCompleted
	log.Info("vehicle valued",
		zap.String("recommendation", res.Recommendation.Label),
		zap.Float64("purchase_price", res.Recommendation.PurchasePrice),
		zap.String("record_id", res.RecordID),
	)
	return res
}

func (e *Enricher) run(ctx context.Context, batchID string, in model.VehicleInput, feedback model.FeedbackContext, res *model.VehicleResult) error {
	v, err := model.NormalizeVehicle(in, e.now())
	if err != nil {
		return &stageError{stage: model.StageBaseline, err: err}
	}
	res.Vehicle = &v

	baseline, err := resilience.Execute(ctx, e.policies.Baseline, func(ctx context.Context) (*model.BaselineValuation, error) {
		bl, err := e.svc.Baseline.Estimate(ctx, v)
		if err == nil && bl == nil {
			err = eris.New("baseline service returned no valuation")
		}
		return bl, err
	})
	if err != nil {
		return &stageError{stage: model.StageBaseline, err: err}
	}
	res.Baseline = baseline
	if err := e.pause(ctx, model.StageMarket); err != nil {
		return err
	}

	market, err := resilience.Execute(ctx, e.policies.Market, func(ctx context.Context) (*model.MarketComparables, error) {
		mc, err := e.svc.Market.Search(ctx, v, baseline.Routing)
		if err == nil && mc == nil {
			mc = &model.MarketComparables{}
		}
		return mc, err
	})
	if err != nil {
		return &stageError{stage: model.StageMarket, err: err}
	}
	res.Market = market
	if err := e.pause(ctx, model.StageInternal); err != nil {
		return err
	}

	internal, err := resilience.Execute(ctx, e.policies.Internal, func(ctx context.Context) (*model.InternalComparables, error) {
		ic, err := e.svc.Internal.InternalComparables(ctx, v)
		if err == nil && ic == nil {
			ic = &model.InternalComparables{}
		}
		return ic, err
	})
	if err != nil {
		return &stageError{stage: model.StageInternal, err: err}
	}
	res.Internal = internal
	if err := e.pause(ctx, model.StageSynthesis); err != nil {
		return err
	}

	rec, err := resilience.Execute(ctx, e.policies.Synthesis, func(ctx context.Context) (*model.Recommendation, error) {
		r, err := e.svc.Synthesis.Recommend(ctx, advisor.Request{
			Vehicle:  v,
			Input:    in,
			Baseline: baseline,
			Market:   market,
			Internal: internal,
			Feedback: feedback,
		})
		if err == nil && r == nil {
			err = eris.New("synthesis returned no recommendation")
		}
		return r, err
	})
	if err != nil {
		return &stageError{stage: model.StageSynthesis, err: err}
	}
	res.Recommendation = rec

	record := &model.ValuationRecord{
		BatchID:        batchID,
		Input:          in,
		Vehicle:        v,
		Baseline:       *baseline,
		Market:         *market,
		Internal:       *internal,
		Recommendation: *rec,
		CreatedAt:      e.now().UTC(),
	}
	id, err := resilience.Execute(ctx, e.policies.Persist, func(ctx context.Context) (string, error) {
		return e.svc.Saver.SaveValuation(ctx, record)
	})
	if err != nil {
		return &stageError{stage: model.StagePersist, err: err}
	}

	res.RecordID = id
	return nil
}

// pause waits the stage pacing delay before next.
func (e *Enricher) pause(ctx context.Context, next model.Stage) error {
	if e.pacing <= 0 {
		return nil
	}
	if err := resilience.Sleep(ctx, e.pacing); err != nil {
		return &stageError{stage: next, err: err}
	}
	return nil
}
