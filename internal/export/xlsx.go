// Package export writes batch results to spreadsheets.
package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/valuation-cli/internal/model"
)

const (
	resultsSheet = "Valuations"
	summarySheet = "Summary"
)

var resultHeaders = []string{
	"Row", "Brand", "Model", "Year", "Mileage", "Asking price",
	"Status", "Baseline value", "Market median", "Market count",
	"Sold before", "Avg days to sell",
	"Purchase price", "Selling price", "Expected days", "Recommendation",
	"Reasoning", "Risks", "Opportunities", "Failed stage", "Error",
}

// BatchXLSX renders a snapshot as a workbook with one row per vehicle and a
// summary sheet.
func BatchXLSX(snap model.BatchSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, eris.Wrap(err, "export: rename sheet")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, h); err != nil {
			return nil, eris.Wrap(err, "export: write header")
		}
	}

	for i, r := range snap.Results {
		row := i + 2
		if err := f.SetSheetRow(resultsSheet, cellName(1, row), rowValues(r)); err != nil {
			return nil, eris.Wrapf(err, "export: write row %d", row)
		}
	}

	summary := [][]any{
		{"Batch", snap.ID},
		{"Total", snap.Total},
		{"Completed", snap.Completed},
		{"Failed", snap.Failed},
		{"Pending", snap.Pending},
	}
	if snap.StartedAt != nil {
		summary = append(summary, []any{"Started", snap.StartedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	if snap.FinishedAt != nil {
		summary = append(summary, []any{"Finished", snap.FinishedAt.UTC().Format("2006-01-02 15:04:05")})
	}
	for i, vals := range summary {
		if err := f.SetSheetRow(summarySheet, cellName(1, i+1), &vals); err != nil {
			return nil, eris.Wrap(err, "export: write summary")
		}
	}

	_ = f.SetColWidth(resultsSheet, "B", "C", 16)
	_ = f.SetColWidth(resultsSheet, "Q", "Q", 60)
	_ = f.SetColWidth(resultsSheet, "R", "S", 30)
	_ = f.SetColWidth(resultsSheet, "U", "U", 40)
	_ = f.SetColWidth(summarySheet, "A", "B", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func rowValues(r model.VehicleResult) *[]any {
	in := r.Input
	vals := []any{in.Row, in.Brand, in.Model, in.Year, in.Mileage, optional(in.AskingPrice), string(r.Status)}

	if r.Baseline != nil {
		vals = append(vals, r.Baseline.Value)
	} else {
		vals = append(vals, nil)
	}
	if r.Market != nil {
		vals = append(vals, r.Market.Median, r.Market.Count)
	} else {
		vals = append(vals, nil, nil)
	}
	if r.Internal != nil {
		vals = append(vals, r.Internal.SoldCount, r.Internal.AvgDaysToSell)
	} else {
		vals = append(vals, nil, nil)
	}
	if rec := r.Recommendation; rec != nil {
		vals = append(vals, rec.PurchasePrice, rec.SellingPrice, rec.ExpectedDaysToSell, rec.Label,
			rec.Reasoning, strings.Join(rec.Risks, "; "), strings.Join(rec.Opportunities, "; "))
	} else {
		vals = append(vals, nil, nil, nil, nil, nil, nil, nil)
	}
	vals = append(vals, string(r.FailedStage), r.Error)
	return &vals
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
