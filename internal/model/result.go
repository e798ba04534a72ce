package model

import (
	"sort"
	"time"
)

// Status is the lifecycle state of one vehicle within a batch.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusError:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic. Terminal states never change.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Stage names one enrichment step.
type Stage string

const (
	StageBaseline  Stage = "baseline"
	StageMarket    Stage = "market"
	StageInternal  Stage = "internal"
	StageSynthesis Stage = "synthesis"
	StagePersist   Stage = "persist"
)

// Recommendation labels.
const (
	RecommendationBuy       = "buy"
	RecommendationNegotiate = "negotiate"
	RecommendationPass      = "pass"
)

// RoutingData is auxiliary baseline output consumed by the market search.
type RoutingData struct {
	SearchLocators []string `json:"search_locators,omitempty"`
	MakeID         string   `json:"make_id,omitempty"`
	ModelID        string   `json:"model_id,omitempty"`
}

// BaselineValuation is the output of the baseline pricing stage.
type BaselineValuation struct {
	Value      float64     `json:"value"`
	Low        float64     `json:"low"`
	High       float64     `json:"high"`
	Confidence float64     `json:"confidence"`
	Currency   string      `json:"currency,omitempty"`
	Routing    RoutingData `json:"routing"`
}

// Listing is one comparable vehicle currently for sale.
type Listing struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	URL     string  `json:"url,omitempty"`
	Price   float64 `json:"price"`
	Mileage int     `json:"mileage"`
	Year    int     `json:"year"`
}

// MarketComparables is the output of the market search stage.
type MarketComparables struct {
	Listings []Listing `json:"listings"`
	Lowest   float64   `json:"lowest"`
	Median   float64   `json:"median"`
	Highest  float64   `json:"highest"`
	Count    int       `json:"count"`
}

// SummarizeListings computes price statistics over listings. Listings with a
// non-positive price are ignored for the statistics.
func SummarizeListings(listings []Listing) MarketComparables {
	mc := MarketComparables{Listings: listings}
	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}
	mc.Count = len(listings)
	if len(prices) == 0 {
		return mc
	}
	sort.Float64s(prices)
	mc.Lowest = prices[0]
	mc.Highest = prices[len(prices)-1]
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		mc.Median = (prices[mid-1] + prices[mid]) / 2
	} else {
		mc.Median = prices[mid]
	}
	return mc
}

// SimilarSale is one vehicle the dealership sold before.
type SimilarSale struct {
	Brand      string  `json:"brand"`
	Model      string  `json:"model"`
	Year       int     `json:"year"`
	Mileage    int     `json:"mileage"`
	SalePrice  float64 `json:"sale_price"`
	Margin     float64 `json:"margin"`
	DaysToSell int     `json:"days_to_sell"`
}

// InternalComparables is the output of the sales-history stage.
type InternalComparables struct {
	SoldCount     int           `json:"sold_count"`
	AvgMargin     float64       `json:"avg_margin"`
	AvgDaysToSell float64       `json:"avg_days_to_sell"`
	Similar       []SimilarSale `json:"similar,omitempty"`
}

// Recommendation is the structured output of the AI synthesis stage.
type Recommendation struct {
	PurchasePrice      float64  `json:"purchase_price"`
	SellingPrice       float64  `json:"selling_price"`
	ExpectedDaysToSell int      `json:"expected_days_to_sell"`
	Label              string   `json:"recommendation"`
	Reasoning          string   `json:"reasoning"`
	Risks              []string `json:"risks"`
	Opportunities      []string `json:"opportunities"`
}

// VehicleResult is the per-vehicle outcome of a batch.
type VehicleResult struct {
	Index          int                  `json:"index"`
	Status         Status               `json:"status"`
	Input          VehicleInput         `json:"input"`
	Vehicle        *Vehicle             `json:"vehicle,omitempty"`
	Baseline       *BaselineValuation   `json:"baseline,omitempty"`
	Market         *MarketComparables   `json:"market,omitempty"`
	Internal       *InternalComparables `json:"internal,omitempty"`
	Recommendation *Recommendation      `json:"recommendation,omitempty"`
	RecordID       string               `json:"record_id,omitempty"`
	Error          string               `json:"error,omitempty"`
	ErrorKind      string               `json:"error_kind,omitempty"`
	FailedStage    Stage                `json:"failed_stage,omitempty"`
	DurationMs     int64                `json:"duration_ms,omitempty"`
}

// PendingResult returns the initial result for the input at index i.
func PendingResult(i int, in VehicleInput) VehicleResult {
	return VehicleResult{Index: i, Status: StatusPending, Input: in}
}

// Fail turns r into an error result, keeping any stage outputs already set.
func (r *VehicleResult) Fail(stage Stage, msg, kind string) {
	r.Status = StatusError
	r.Error = msg
	r.FailedStage = stage
	r.ErrorKind = kind
}

// ErrorResult builds an error result for in.
func ErrorResult(i int, in VehicleInput, stage Stage, msg string) VehicleResult {
	return VehicleResult{
		Index:       i,
		Status:      StatusError,
		Input:       in,
		Error:       msg,
		FailedStage: stage,
	}
}

// ValuationRecord is the persisted aggregate of one completed valuation.
type ValuationRecord struct {
	ID             string              `json:"id"`
	BatchID        string              `json:"batch_id,omitempty"`
	Input          VehicleInput        `json:"input"`
	Vehicle        Vehicle             `json:"vehicle"`
	Baseline       BaselineValuation   `json:"baseline"`
	Market         MarketComparables   `json:"market"`
	Internal       InternalComparables `json:"internal"`
	Recommendation Recommendation      `json:"recommendation"`
	CreatedAt      time.Time           `json:"created_at"`
}
