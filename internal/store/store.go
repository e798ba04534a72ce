package store

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("not found")

// ValuationFilter specifies criteria for listing valuations.
type ValuationFilter struct {
	BatchID string `json:"batch_id,omitempty"`
	Brand   string `json:"brand,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the valuation pipeline: the
// valuation records it produces, the feedback history it learns from and the
// internal sales history it compares against.
type Store interface {
	// Valuations
	SaveValuation(ctx context.Context, rec *model.ValuationRecord) (string, error)
	GetValuation(ctx context.Context, id string) (*model.ValuationRecord, error)
	ListValuations(ctx context.Context, filter ValuationFilter) ([]model.ValuationRecord, error)

	// Feedback
	AddFeedback(ctx context.Context, fb model.FeedbackRecord) (string, error)
	RecentFeedback(ctx context.Context, limit int) ([]model.FeedbackRecord, error)

	// Sales history
	RecordSale(ctx context.Context, sale model.Sale) (string, error)
	ImportSales(ctx context.Context, sales []model.Sale) (int64, error)
	InternalComparables(ctx context.Context, v model.Vehicle) (*model.InternalComparables, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
	// comparableYearWindow is how far (in model years) a sale may be from
	// the vehicle and still count as comparable.
	comparableYearWindow = 2
	maxSimilarSales      = 10
)

// summarizeSales aggregates candidate sales into InternalComparables. The
// similar list is ordered by closeness in year, then mileage.
func summarizeSales(v model.Vehicle, sales []model.Sale) *model.InternalComparables {
	ic := &model.InternalComparables{SoldCount: len(sales)}
	if len(sales) == 0 {
		return ic
	}

	var marginSum, daysSum float64
	for _, s := range sales {
		marginSum += s.Margin()
		daysSum += float64(s.DaysToSell)
	}
	ic.AvgMargin = round2(marginSum / float64(len(sales)))
	ic.AvgDaysToSell = round2(daysSum / float64(len(sales)))

	sorted := make([]model.Sale, len(sales))
	copy(sorted, sales)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := absInt(sorted[i].Year-v.Year), absInt(sorted[j].Year-v.Year)
		if di != dj {
			return di < dj
		}
		return absInt(sorted[i].Mileage-v.Mileage) < absInt(sorted[j].Mileage-v.Mileage)
	})
	if len(sorted) > maxSimilarSales {
		sorted = sorted[:maxSimilarSales]
	}
	for _, s := range sorted {
		ic.Similar = append(ic.Similar, model.SimilarSale{
			Brand:      s.Brand,
			Model:      s.Model,
			Year:       s.Year,
			Mileage:    s.Mileage,
			SalePrice:  s.SalePrice,
			Margin:     s.Margin(),
			DaysToSell: s.DaysToSell,
		})
	}
	return ic
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
