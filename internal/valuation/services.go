package valuation

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/advisor"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/pkg/listings"
	"github.com/sells-group/valuation-cli/pkg/pricing"
)

// BaselineService produces a baseline market valuation plus routing data.
type BaselineService interface {
	Estimate(ctx context.Context, v model.Vehicle) (*model.BaselineValuation, error)
}

// MarketService finds comparable vehicles currently for sale.
type MarketService interface {
	Search(ctx context.Context, v model.Vehicle, routing model.RoutingData) (*model.MarketComparables, error)
}

// InternalService summarizes the dealership's own sales of similar vehicles.
type InternalService interface {
	InternalComparables(ctx context.Context, v model.Vehicle) (*model.InternalComparables, error)
}

// SynthesisService turns the collected data into a recommendation.
type SynthesisService interface {
	Recommend(ctx context.Context, req advisor.Request) (*model.Recommendation, error)
}

// RecordSaver persists completed valuations.
type RecordSaver interface {
	SaveValuation(ctx context.Context, rec *model.ValuationRecord) (string, error)
}

// FeedbackSource lists past corrections, newest first.
type FeedbackSource interface {
	RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackRecord, error)
}

// PricingBaseline adapts the pricing API to BaselineService.
type PricingBaseline struct {
	Client pricing.Client
}

func (p PricingBaseline) Estimate(ctx context.Context, v model.Vehicle) (*model.BaselineValuation, error) {
	resp, err := p.Client.Estimate(ctx, pricing.EstimateRequest{
		Brand:        v.Brand,
		Model:        v.Model,
		Year:         v.Year,
		Mileage:      v.Mileage,
		Fuel:         v.Fuel,
		Transmission: v.Transmission,
		PowerKW:      v.PowerKW,
		Variant:      v.Variant,
	})
	if err != nil {
		return nil, err
	}
	return &model.BaselineValuation{
		Value:      resp.Value,
		Low:        resp.Low,
		High:       resp.High,
		Confidence: resp.Confidence,
		Currency:   resp.Currency,
		Routing: model.RoutingData{
			SearchLocators: resp.Routing.SearchLocators,
			MakeID:         resp.Routing.MakeID,
			ModelID:        resp.Routing.ModelID,
		},
	}, nil
}

// ListingsMarket adapts the listings API to MarketService. Listings within
// YearWindow model years of the vehicle are searched.
type ListingsMarket struct {
	Client     listings.Client
	YearWindow int
	Limit      int
}

func (l ListingsMarket) Search(ctx context.Context, v model.Vehicle, routing model.RoutingData) (*model.MarketComparables, error) {
	if len(routing.SearchLocators) == 0 && routing.ModelID == "" {
		return nil, eris.New("listings: baseline returned no routing data")
	}
	resp, err := l.Client.Search(ctx, listings.SearchRequest{
		Brand:          v.Brand,
		Model:          v.Model,
		YearFrom:       v.Year - l.YearWindow,
		YearTo:         v.Year + l.YearWindow,
		Fuel:           v.Fuel,
		Transmission:   v.Transmission,
		SearchLocators: routing.SearchLocators,
		MakeID:         routing.MakeID,
		ModelID:        routing.ModelID,
		Limit:          l.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Listing, 0, len(resp.Listings))
	for _, hit := range resp.Listings {
		out = append(out, model.Listing{
			Title:   hit.Title,
			Source:  hit.Source,
			URL:     hit.URL,
			Price:   hit.Price,
			Mileage: hit.Mileage,
			Year:    hit.Year,
		})
	}
	mc := model.SummarizeListings(out)
	return &mc, nil
}
