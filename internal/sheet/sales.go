package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Sales-history columns.
const (
	FieldPurchasePrice Field = "purchase_price"
	FieldSalePrice     Field = "sale_price"
	FieldDaysToSell    Field = "days_to_sell"
	FieldSoldAt        Field = "sold_at"
)

// saleSynonyms is checked before the vehicle synonyms. Purchase and date
// columns come first because their names often contain "price" or "sale".
var saleSynonyms = []struct {
	field    Field
	synonyms []string
}{
	{FieldPurchasePrice, []string{"purchase", "purchase price", "inkoop", "inkoopprijs", "einkauf", "einkaufspreis", "cost", "prix d'achat"}},
	{FieldDaysToSell, []string{"days", "days to sell", "dagen", "standtage", "stand days", "days in stock", "jours"}},
	{FieldSoldAt, []string{"sold at", "sold on", "sale date", "date sold", "verkocht op", "verkoopdatum", "verkaufsdatum", "date"}},
	{FieldSalePrice, []string{"sale", "sale price", "sold price", "selling price", "verkoop", "verkoopprijs", "verkaufspreis", "prix de vente", "price"}},
}

// saleVehicleFields are the vehicle columns a sales sheet may carry.
var saleVehicleFields = map[Field]bool{
	FieldBrand: true, FieldModel: true, FieldYear: true, FieldMileage: true, FieldVehicle: true,
}

// MapSaleColumns assigns header cells of a sales-history sheet to fields.
func MapSaleColumns(header []string) Columns {
	cols := Columns{}
	for i, cell := range header {
		folded := model.Fold(cell)
		if folded == "" {
			continue
		}
		words := strings.FieldsFunc(folded, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f, ok := firstMatch(folded, words, cols, saleSynonyms, nil); ok {
			cols[f] = i
			continue
		}
		if f, ok := firstMatch(folded, words, cols, fieldSynonyms, saleVehicleFields); ok {
			cols[f] = i
		}
	}
	return cols
}

func firstMatch(folded string, words []string, taken Columns, list []struct {
	field    Field
	synonyms []string
}, allowed map[Field]bool) (Field, bool) {
	for _, fs := range list {
		if allowed != nil && !allowed[fs.field] {
			continue
		}
		if _, ok := taken[fs.field]; ok {
			continue
		}
		if matchesAny(folded, words, fs.synonyms) {
			return fs.field, true
		}
	}
	return "", false
}

// ToSales converts sales-history rows below headerIdx. Rows without brand,
// model or a positive sale price are skipped and counted.
func ToSales(rows [][]string, headerIdx int) (sales []model.Sale, skipped int) {
	if headerIdx < 0 || headerIdx >= len(rows) {
		return nil, 0
	}
	cols := MapSaleColumns(rows[headerIdx])

	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if populated(row) < 2 {
			continue
		}
		cell := func(f Field) string {
			idx, ok := cols[f]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		sale := model.Sale{
			Brand:         cell(FieldBrand),
			Model:         cell(FieldModel),
			Year:          parseYear(cell(FieldYear)),
			Mileage:       int(parseNumber(cell(FieldMileage))),
			PurchasePrice: parseNumber(cell(FieldPurchasePrice)),
			SalePrice:     parseNumber(cell(FieldSalePrice)),
			DaysToSell:    int(math.Round(parseNumber(cell(FieldDaysToSell)))),
			SoldAt:        parseDate(cell(FieldSoldAt)),
		}
		if v := cell(FieldVehicle); v != "" && (sale.Brand == "" || sale.Model == "") {
			brand, rest, _ := strings.Cut(v, " ")
			if sale.Brand == "" {
				sale.Brand = brand
			}
			if sale.Model == "" {
				sale.Model = strings.TrimSpace(rest)
			}
		}
		if sale.Brand == "" || sale.Model == "" || sale.SalePrice <= 0 {
			skipped++
			continue
		}
		sales = append(sales, sale)
	}
	return sales, skipped
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"1/2/06",
	"01-02-06",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseDate accepts ISO, day-first European dates and spreadsheet serial
// numbers. Unparseable values yield the zero time.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 100000 {
		return excelEpoch.AddDate(0, 0, int(serial))
	}
	return time.Time{}
}
