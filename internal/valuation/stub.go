package valuation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/valuation-cli/internal/advisor"
	"github.com/sells-group/valuation-cli/internal/model"
)

// Offline stand-ins for the external services. They are deterministic so
// runs with --offline are reproducible.

const (
	stubNewPrice     = 32000.0
	stubYearlyFactor = 0.86
	stubPerKm        = 0.04
	stubFloor        = 750.0
	stubMarginFactor = 0.85
	stubDefaultDays  = 45
)

// StubBaseline estimates value from age and mileage alone.
type StubBaseline struct {
	Now func() time.Time
}

func (s StubBaseline) Estimate(_ context.Context, v model.Vehicle) (*model.BaselineValuation, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	age := max(now.Year()-v.Year, 0)
	value := stubNewPrice*math.Pow(stubYearlyFactor, float64(age)) - float64(v.Mileage)*stubPerKm
	value = math.Max(math.Round(value/50)*50, stubFloor)

	return &model.BaselineValuation{
		Value:      value,
		Low:        math.Round(value * 0.92),
		High:       math.Round(value * 1.08),
		Confidence: 0.5,
		Currency:   "EUR",
		Routing: model.RoutingData{
			SearchLocators: []string{"offline"},
			ModelID:        strings.ToLower(strings.ReplaceAll(v.Label(), " ", "-")),
		},
	}, nil
}

// StubMarket fabricates five listings spread around the stub baseline.
type StubMarket struct {
	Baseline StubBaseline
}

func (s StubMarket) Search(ctx context.Context, v model.Vehicle, _ model.RoutingData) (*model.MarketComparables, error) {
	bl, err := s.Baseline.Estimate(ctx, v)
	if err != nil {
		return nil, err
	}
	spreads := []float64{-0.08, -0.04, 0, 0.04, 0.08}
	out := make([]model.Listing, 0, len(spreads))
	for i, sp := range spreads {
		out = append(out, model.Listing{
			Title:   fmt.Sprintf("%s %d", v.Label(), v.Year),
			Source:  "offline",
			Price:   math.Round(bl.Value * (1 + sp)),
			Mileage: max(v.Mileage+(i-2)*5000, 0),
			Year:    v.Year,
		})
	}
	mc := model.SummarizeListings(out)
	return &mc, nil
}

// StubSynthesis applies a fixed margin rule instead of calling a model.
type StubSynthesis struct{}

func (StubSynthesis) Recommend(_ context.Context, req advisor.Request) (*model.Recommendation, error) {
	selling := req.Baseline.Value
	if req.Market != nil && req.Market.Median > 0 {
		selling = req.Market.Median
	}
	purchase := math.Round(selling * stubMarginFactor)

	days := stubDefaultDays
	if req.Internal != nil && req.Internal.SoldCount > 0 {
		days = int(math.Round(req.Internal.AvgDaysToSell))
	}

	rec := &model.Recommendation{
		PurchasePrice:      purchase,
		SellingPrice:       selling,
		ExpectedDaysToSell: days,
		Risks:              []string{},
		Opportunities:      []string{},
	}
	switch ask := req.Vehicle.AskingPrice; {
	case ask == nil:
		rec.Label = model.RecommendationNegotiate
		rec.Reasoning = fmt.Sprintf("No asking price; offer up to %.0f.", purchase)
	case *ask <= purchase:
		rec.Label = model.RecommendationBuy
		rec.Reasoning = fmt.Sprintf("Asking %.0f is within the %.0f purchase target.", *ask, purchase)
		rec.Opportunities = append(rec.Opportunities, "priced below target")
	case *ask <= purchase*1.1:
		rec.Label = model.RecommendationNegotiate
		rec.Reasoning = fmt.Sprintf("Asking %.0f is slightly above the %.0f purchase target.", *ask, purchase)
	default:
		rec.Label = model.RecommendationPass
		rec.Reasoning = fmt.Sprintf("Asking %.0f leaves no margin against %.0f retail.", *ask, selling)
		rec.Risks = append(rec.Risks, "overpriced")
	}
	return rec, nil
}
