package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/sheet"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInputs_YAML(t *testing.T) {
	path := writeTemp(t, "stock.yaml", `
- brand: BMW
  model: 320d
  year: 2019
  mileage: 85000
  asking_price: 17500
- row: 7
  brand: Kia
  model: Ceed
  year: 2021
`)

	inputs, err := loadInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, 1, inputs[0].Row)
	assert.Equal(t, "BMW", inputs[0].Brand)
	require.NotNil(t, inputs[0].AskingPrice)
	assert.Equal(t, 17500.0, *inputs[0].AskingPrice)
	assert.Equal(t, 7, inputs[1].Row)
}

func TestLoadInputs_CSV(t *testing.T) {
	path := writeTemp(t, "stock.csv", "Merk;Model;Bouwjaar;KM-stand;Prijs\nBMW;320d;2019;85.000;17.500\n")

	inputs, err := loadInputs(path)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "BMW", inputs[0].Brand)
	assert.Equal(t, 2, inputs[0].Row)
}

func TestLoadInputs_Errors(t *testing.T) {
	_, err := loadInputs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadInputs(writeTemp(t, "bad.yml", "brand: [unterminated"))
	assert.Error(t, err)
}

func sampleSnapshot() model.BatchSnapshot {
	return model.BatchSnapshot{
		ID: "batch-1", Total: 2, Current: 2, Finished: true, Completed: 1, Failed: 1,
		Results: []model.VehicleResult{
			{
				Index: 0, Status: model.StatusCompleted,
				Input: model.VehicleInput{Row: 2, Brand: "BMW", Model: "320d", Year: 2019},
				Recommendation: &model.Recommendation{
					PurchasePrice: 15000, SellingPrice: 17900, ExpectedDaysToSell: 30, Label: model.RecommendationBuy,
				},
			},
			model.ErrorResult(1, model.VehicleInput{Row: 3, Brand: "Kia", Model: "Ceed", Year: 2021}, model.StageMarket, "listings unavailable"),
		},
	}
}

func TestFormatResults(t *testing.T) {
	var buf bytes.Buffer
	formatResults(&buf, sampleSnapshot())
	out := buf.String()

	assert.Contains(t, out, "ROW")
	assert.Contains(t, out, "15000")
	assert.Contains(t, out, model.RecommendationBuy)
	assert.Contains(t, out, "[market] listings unavailable")
	assert.Contains(t, out, "Completed: 1")
	assert.Contains(t, out, "Failed: 1")
}

func TestFormatResults_TruncatesMultibyteErrors(t *testing.T) {
	snap := model.BatchSnapshot{
		Total: 1, Current: 1, Finished: true, Failed: 1,
		Results: []model.VehicleResult{
			model.ErrorResult(0, model.VehicleInput{Row: 2, Brand: "Škoda", Model: "Octavia"}, model.StageSynthesis,
				"advies mislukt: "+strings.Repeat("é", 80)),
		},
	}

	var buf bytes.Buffer
	formatResults(&buf, snap)
	out := buf.String()
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("é", 80))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
	assert.Equal(t, "€€", truncate("€€€€", 2))
	assert.Equal(t, 50, utf8.RuneCountInString(truncate(strings.Repeat("ü", 70), 50)))
}

func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, writeSnapshot(jsonPath, sampleSnapshot()))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var fromJSON model.BatchSnapshot
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, "batch-1", fromJSON.ID)
	assert.Len(t, fromJSON.Results, 2)

	yamlPath := filepath.Join(dir, "out.yaml")
	require.NoError(t, writeSnapshot(yamlPath, sampleSnapshot()))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.NotEmpty(t, fromYAML)
}

func TestFormatImport(t *testing.T) {
	imp := sheet.Parse([][]string{
		{"Brand", "Model", "Year", "Mileage"},
		{"BMW", "320d", "2019", "85000"},
	})

	var buf bytes.Buffer
	formatImport(&buf, imp)
	out := buf.String()
	assert.Contains(t, out, "Header row:")
	assert.Contains(t, out, "Vehicles:")
	assert.Contains(t, out, "brand")
	assert.Contains(t, out, "Mileage")
}
