package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func TestDetectHeaderRow(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want int
	}{
		{
			name: "header on first row",
			rows: [][]string{
				{"Brand", "Model", "Year"},
				{"BMW", "320d", "2019"},
			},
			want: 0,
		},
		{
			name: "title rows above header",
			rows: [][]string{
				{"ACME Motors stock list"},
				{"Exported 1 June"},
				{"Brand", "Model", "Mileage", "Price"},
				{"BMW", "320d", "85000", "18500"},
			},
			want: 2,
		},
		{
			name: "accented and translated header",
			rows: [][]string{
				{"Inventaire"},
				{"Marque", "Modèle", "Kilométrage", "Prix"},
			},
			want: 1,
		},
		{
			name: "single keyword is not enough",
			rows: [][]string{
				{"Price list"},
				{"Merk", "Type", "Bouwjaar"},
			},
			want: 1,
		},
		{
			name: "title cell with several keywords is one field",
			rows: [][]string{
				{"Brandstofprijzen overzicht"},
				{"Merk", "Model", "Bouwjaar", "Kilometerstand"},
			},
			want: 1,
		},
		{
			name: "synonyms of one field count once",
			rows: [][]string{
				{"Make", "Brand", "Marque"},
				{"Make", "Model"},
			},
			want: 1,
		},
		{
			name: "populated row fallback",
			rows: [][]string{
				{"x"},
				{"", "a"},
				{"c1", "c2", "c3", "c4", "c5", "c6"},
				{"1", "2", "3", "4", "5", "6"},
			},
			want: 2,
		},
		{
			name: "nothing qualifies",
			rows: [][]string{
				{"a", "b"},
				{"c"},
			},
			want: 0,
		},
		{
			name: "empty",
			rows: nil,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectHeaderRow(tt.rows))
		})
	}
}

func TestKeywordHits(t *testing.T) {
	assert.Equal(t, 1, keywordHits([]string{"Brandstof"}))
	assert.Equal(t, "fuel", cellField(model.Fold("Brandstof")))
	assert.Equal(t, "model", cellField(model.Fold("Modèle")))
	assert.Equal(t, 4, keywordHits([]string{"Merk", "Model", "Bouwjaar", "Kilometerstand"}))
	assert.Equal(t, 0, keywordHits([]string{"", "  "}))
}

func TestDetectHeaderRow_ScanLimit(t *testing.T) {
	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = []string{"note"}
	}
	rows[22] = []string{"Brand", "Model"}
	assert.Equal(t, 0, DetectHeaderRow(rows))

	rows[12] = []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, 0, DetectHeaderRow(rows), "fallback only looks at the first ten rows")

	rows[9] = []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, 9, DetectHeaderRow(rows))
}

func TestParse(t *testing.T) {
	imp := Parse([][]string{
		{"Dealer stock"},
		{"Make", "Model", "Year", "Km", "Fuel", "Gearbox", "Price"},
		{"BMW", "320d", "2019", "85.000", "Diesel", "Manual", "€ 18.500"},
		{"", ""},
		{"Audi", "A4", "2018"},
	})

	require.Equal(t, 1, imp.HeaderRow)
	assert.Equal(t, "Make", imp.Header[0])
	require.Len(t, imp.Inputs, 2)
	assert.Equal(t, 3, imp.Inputs[0].Row)
	assert.Equal(t, 5, imp.Inputs[1].Row)
	assert.Equal(t, 85000, imp.Inputs[0].Mileage)

	assert.Empty(t, Parse(nil).Inputs)
}
