package model

import "time"

// FeedbackType classifies a human correction of an earlier valuation.
type FeedbackType string

const (
	FeedbackPriceCorrection        FeedbackType = "price_correction"
	FeedbackRecommendationOverride FeedbackType = "recommendation_override"
	FeedbackComment                FeedbackType = "comment"
)

// FeedbackRecord is one historical correction.
type FeedbackRecord struct {
	ID                  string       `json:"id"`
	ValuationID         string       `json:"valuation_id,omitempty"`
	Type                FeedbackType `json:"type"`
	Reasoning           string       `json:"reasoning"`
	PriorRecommendation string       `json:"prior_recommendation,omitempty"`
	SuggestedPrice      *float64     `json:"suggested_price,omitempty"`
	MarketContext       string       `json:"market_context,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// FeedbackContext is the bounded, newest-first list of corrections shared by
// every synthesis call in a batch.
type FeedbackContext []FeedbackRecord

// Sale is one row of the dealership's internal sales history.
type Sale struct {
	ID            string    `json:"id"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Year          int       `json:"year"`
	Mileage       int       `json:"mileage"`
	PurchasePrice float64   `json:"purchase_price"`
	SalePrice     float64   `json:"sale_price"`
	DaysToSell    int       `json:"days_to_sell"`
	SoldAt        time.Time `json:"sold_at"`
}

// Margin is the gross margin of the sale.
func (s Sale) Margin() float64 {
	return s.SalePrice - s.PurchasePrice
}
