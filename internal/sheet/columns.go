package sheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Field is a vehicle attribute a column can map to.
type Field string

const (
	FieldBrand        Field = "brand"
	FieldModel        Field = "model"
	FieldYear         Field = "year"
	FieldMileage      Field = "mileage"
	FieldFuel         Field = "fuel"
	FieldTransmission Field = "transmission"
	FieldPrice        Field = "price"
	FieldColor        Field = "color"
	FieldPower        Field = "power"
	FieldVariant      Field = "variant"
	FieldVehicle      Field = "vehicle"

	// fieldPowerHP marks a power column stated in horsepower.
	fieldPowerHP Field = "power_hp"
)

// coreFields drive the parse confidence of a row.
var coreFields = []Field{FieldBrand, FieldModel, FieldYear, FieldMileage, FieldFuel, FieldTransmission}

// fieldSynonyms is checked in order; a column maps to the first field with a
// matching synonym. Multi-word synonyms match as phrases, the rest as whole
// words.
var fieldSynonyms = []struct {
	field    Field
	synonyms []string
}{
	{FieldFuel, []string{"fuel", "fuel type", "brandstof", "kraftstoff", "carburant", "energy"}},
	{FieldTransmission, []string{"transmission", "gearbox", "gear", "versnellingsbak", "transmissie", "getriebe", "boite"}},
	{FieldYear, []string{"year", "bouwjaar", "baujahr", "annee", "jaar", "erstzulassung", "first registration", "build year"}},
	{FieldBrand, []string{"brand", "make", "merk", "marke", "marque", "manufacturer"}},
	{FieldModel, []string{"model", "modell", "modele"}},
	{FieldMileage, []string{"mileage", "km", "kms", "kilometer", "kilometers", "kilometrage", "kilometerstand", "odometer", "miles"}},
	{FieldPrice, []string{"price", "prijs", "preis", "prix", "asking", "vraagprijs"}},
	{FieldColor, []string{"color", "colour", "kleur", "farbe", "couleur"}},
	{FieldPower, []string{"power", "kw", "hp", "pk", "ps", "vermogen", "leistung", "puissance"}},
	{FieldVariant, []string{"variant", "version", "uitvoering", "trim", "edition"}},
	{FieldVehicle, []string{"vehicle", "voertuig", "fahrzeug", "vehicule", "car", "description", "omschrijving"}},
}

// Columns maps fields to column indexes.
type Columns map[Field]int

// MapColumns assigns header cells to fields. Each field takes the first
// column that names it; unrecognised columns are ignored.
func MapColumns(header []string) Columns {
	cols := Columns{}
	for i, cell := range header {
		folded := model.Fold(cell)
		if folded == "" {
			continue
		}
		words := strings.FieldsFunc(folded, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, fs := range fieldSynonyms {
			if _, taken := cols[fs.field]; taken {
				continue
			}
			if matchesAny(folded, words, fs.synonyms) {
				cols[fs.field] = i
				if fs.field == FieldPower && matchesAny(folded, words, []string{"hp", "pk", "ps", "bhp"}) {
					cols[fieldPowerHP] = i
				}
				break
			}
		}
	}
	return cols
}

func matchesAny(folded string, words, synonyms []string) bool {
	for _, syn := range synonyms {
		if strings.Contains(syn, " ") {
			if strings.Contains(folded, syn) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == syn {
				return true
			}
		}
	}
	return false
}

// ToInputs converts the rows below headerIdx into vehicle inputs. Rows with
// fewer than two populated cells are skipped. Row numbers are 1-based as in
// the source spreadsheet.
func ToInputs(rows [][]string, headerIdx int) []model.VehicleInput {
	if headerIdx < 0 || headerIdx >= len(rows) {
		return nil
	}
	cols := MapColumns(rows[headerIdx])

	var out []model.VehicleInput
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if populated(row) < 2 {
			continue
		}
		out = append(out, rowToInput(row, cols, i+1))
	}
	return out
}

func rowToInput(row []string, cols Columns, rowNum int) model.VehicleInput {
	cell := func(f Field) string {
		i, ok := cols[f]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	in := model.VehicleInput{
		Row:          rowNum,
		Brand:        cell(FieldBrand),
		Model:        cell(FieldModel),
		Year:         parseYear(cell(FieldYear)),
		Mileage:      int(parseNumber(cell(FieldMileage))),
		Fuel:         cell(FieldFuel),
		Transmission: cell(FieldTransmission),
		Color:        cell(FieldColor),
		Variant:      cell(FieldVariant),
		Description:  joinRow(row),
	}

	if v := cell(FieldVehicle); v != "" && (in.Brand == "" || in.Model == "") {
		brand, rest, _ := strings.Cut(v, " ")
		if in.Brand == "" {
			in.Brand = brand
		}
		if in.Model == "" {
			in.Model = strings.TrimSpace(rest)
		}
	}
	if p := parseNumber(cell(FieldPrice)); p > 0 {
		in.AskingPrice = &p
	}
	if p := parseNumber(cell(FieldPower)); p > 0 {
		if _, hp := cols[fieldPowerHP]; hp {
			p *= kwPerHP
		}
		kw := int(math.Round(p))
		in.PowerKW = &kw
	}

	present := map[Field]bool{
		FieldBrand:        in.Brand != "",
		FieldModel:        in.Model != "",
		FieldYear:         in.Year > 0,
		FieldMileage:      cell(FieldMileage) != "",
		FieldFuel:         in.Fuel != "",
		FieldTransmission: in.Transmission != "",
	}
	n := 0
	for _, f := range coreFields {
		if present[f] {
			n++
		}
	}
	in.Confidence = math.Round(float64(n)/float64(len(coreFields))*100) / 100
	return in
}

const kwPerHP = 0.7355

func joinRow(row []string) string {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " | ")
}

var yearRe = regexp.MustCompile(`\b(19[5-9]\d|20\d\d)\b`)

// parseYear finds a four-digit model year in values like "2019",
// "03/2019" or "2019-03-01". Two-digit "03/19" style dates map to 20xx.
func parseYear(s string) int {
	if m := yearRe.FindString(s); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	if i := strings.LastIndexAny(s, "/-."); i >= 0 && len(s)-i == 3 {
		if y, err := strconv.Atoi(s[i+1:]); err == nil {
			return 2000 + y
		}
	}
	return 0
}

// parseNumber reads numbers written with either "." or "," as thousands or
// decimal separator, ignoring currency symbols and units.
func parseNumber(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	num := strings.Trim(b.String(), ".,")
	if num == "" {
		return 0
	}

	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := "."
		thousands := ","
		if lastComma > lastDot {
			dec, thousands = ",", "."
		}
		num = strings.ReplaceAll(num, thousands, "")
		num = strings.Replace(num, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(num, sep) > 1 || len(num)-idx-1 == 3 {
			num = strings.ReplaceAll(num, sep, "")
		} else {
			num = strings.Replace(num, sep, ".", 1)
		}
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return v
}
