package sheet

import (
	"strings"

	"github.com/sells-group/valuation-cli/internal/model"
)

const (
	headerScanRows    = 20
	fallbackScanRows  = 10
	minKeywordHits    = 2
	minPopulatedCells = 5
)

// headerKeywords groups fragments of common vehicle-listing column names in
// English, Dutch, German and French, already folded, by the field they name.
var headerKeywords = []struct {
	field    string
	keywords []string
}{
	{"brand", []string{"brand", "make", "merk", "marke", "marque"}},
	{"model", []string{"model", "modele"}},
	{"year", []string{"year", "bouwjaar", "baujahr", "annee"}},
	{"mileage", []string{"mileage", "kilomet", "km", "odometer"}},
	{"price", []string{"price", "prijs", "preis", "prix"}},
	{"fuel", []string{"fuel", "brandstof", "kraftstoff", "carburant"}},
	{"transmission", []string{"transmission", "gearbox", "versnelling", "getriebe"}},
	{"colour", []string{"colo", "kleur", "farbe", "couleur"}},
	{"power", []string{"power", "vermogen", "leistung"}},
}

// DetectHeaderRow returns the index of the row most likely to hold column
// names. Title rows above the header are skipped: the first of the first 20
// rows matching at least two keywords wins. Failing that, the first of the
// first 10 rows with at least five populated cells is used, else row 0.
func DetectHeaderRow(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if keywordHits(rows[i]) >= minKeywordHits {
			return i
		}
	}
	for i := 0; i < len(rows) && i < fallbackScanRows; i++ {
		if populated(rows[i]) >= minPopulatedCells {
			return i
		}
	}
	return 0
}

// keywordHits counts the distinct fields named by the cells of row. A cell
// names at most one field, the one with the longest matching keyword, so
// "Brandstof" is fuel and not brand.
func keywordHits(row []string) int {
	fields := make(map[string]bool)
	for _, cell := range row {
		if f := cellField(model.Fold(cell)); f != "" {
			fields[f] = true
		}
	}
	return len(fields)
}

func cellField(text string) string {
	if text == "" {
		return ""
	}
	field, best := "", 0
	for _, g := range headerKeywords {
		for _, kw := range g.keywords {
			if len(kw) > best && strings.Contains(text, kw) {
				field, best = g.field, len(kw)
			}
		}
	}
	return field
}

func populated(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// Import is a spreadsheet converted to vehicle inputs.
type Import struct {
	HeaderRow int                  `json:"header_row"`
	Header    []string             `json:"header"`
	Columns   Columns              `json:"columns"`
	Inputs    []model.VehicleInput `json:"inputs"`
}

// Parse locates the header row and converts every data row below it.
func Parse(rows [][]string) Import {
	if len(rows) == 0 {
		return Import{Columns: Columns{}}
	}
	idx := DetectHeaderRow(rows)
	return Import{
		HeaderRow: idx,
		Header:    rows[idx],
		Columns:   MapColumns(rows[idx]),
		Inputs:    ToInputs(rows, idx),
	}
}
