package valuation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/valuation-cli/internal/advisor"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/resilience"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fastPolicies keeps retries but removes timeouts long enough to slow tests.
func fastPolicies(retries int) Policies {
	p := func(name model.Stage) resilience.Policy {
		return resilience.Policy{Name: string(name), Timeout: time.Second, Retries: retries, Delay: time.Millisecond}
	}
	return Policies{
		Baseline:  p(model.StageBaseline),
		Market:    p(model.StageMarket),
		Internal:  p(model.StageInternal),
		Synthesis: p(model.StageSynthesis),
		Persist:   p(model.StagePersist),
		Feedback:  resilience.Policy{Name: "feedback", Timeout: time.Second},
	}
}

type mockBaseline struct{ mock.Mock }

func (m *mockBaseline) Estimate(ctx context.Context, v model.Vehicle) (*model.BaselineValuation, error) {
	args := m.Called(ctx, v)
	if bl := args.Get(0); bl != nil {
		return bl.(*model.BaselineValuation), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMarket struct{ mock.Mock }

func (m *mockMarket) Search(ctx context.Context, v model.Vehicle, routing model.RoutingData) (*model.MarketComparables, error) {
	args := m.Called(ctx, v, routing)
	if mc := args.Get(0); mc != nil {
		return mc.(*model.MarketComparables), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInternal struct{ mock.Mock }

func (m *mockInternal) InternalComparables(ctx context.Context, v model.Vehicle) (*model.InternalComparables, error) {
	args := m.Called(ctx, v)
	if ic := args.Get(0); ic != nil {
		return ic.(*model.InternalComparables), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSynthesis struct{ mock.Mock }

func (m *mockSynthesis) Recommend(ctx context.Context, req advisor.Request) (*model.Recommendation, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*model.Recommendation), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSaver struct{ mock.Mock }

func (m *mockSaver) SaveValuation(ctx context.Context, rec *model.ValuationRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// memorySaver records saved valuations.
type memorySaver struct {
	mu      sync.Mutex
	records []*model.ValuationRecord
}

func (s *memorySaver) SaveValuation(_ context.Context, rec *model.ValuationRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return rec.Input.Label(), nil
}

func (s *memorySaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// emptyInternal reports no sales history.
type emptyInternal struct{}

func (emptyInternal) InternalComparables(context.Context, model.Vehicle) (*model.InternalComparables, error) {
	return &model.InternalComparables{}, nil
}

// countingFeedback serves a fixed feedback list and counts calls.
type countingFeedback struct {
	records []model.FeedbackRecord
	err     error
	calls   atomic.Int32
}

func (f *countingFeedback) RecentFeedback(_ context.Context, limit int) ([]model.FeedbackRecord, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

// stubServices wires the offline stand-ins around saver.
func stubServices(saver RecordSaver) Services {
	bl := StubBaseline{Now: func() time.Time { return fixedNow }}
	return Services{
		Baseline:  bl,
		Market:    StubMarket{Baseline: bl},
		Internal:  emptyInternal{},
		Synthesis: StubSynthesis{},
		Saver:     saver,
	}
}

func newTestEnricher(svc Services, retries int) *Enricher {
	e := NewEnricher(svc, fastPolicies(retries), 0)
	e.now = func() time.Time { return fixedNow }
	return e
}

func vehicleInput(brand, mdl string, year int) model.VehicleInput {
	return model.VehicleInput{Brand: brand, Model: mdl, Year: year, Mileage: 80000, Fuel: "diesel", Transmission: "manual"}
}

func price(v float64) *float64 { return &v }
