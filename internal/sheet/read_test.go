package sheet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	ws, err := f.AddSheet("Stock")
	require.NoError(t, err)
	for _, data := range rows {
		row := ws.AddRow()
		for _, v := range data {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "stock.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadFile_XLSX(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"Voorraad juni"},
		{"Merk", "Model", "Bouwjaar", "Km-stand"},
		{"Peugeot", " 308 ", "2018", "90.000"},
	})

	rows, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Peugeot", "308", "2018", "90.000"}, rows[2])

	imp := Parse(rows)
	assert.Equal(t, 1, imp.HeaderRow)
	require.Len(t, imp.Inputs, 1)
	assert.Equal(t, 90000, imp.Inputs[0].Mileage)
}

func TestReadCSV_Semicolon(t *testing.T) {
	data := "\xef\xbb\xbfMerk;Model;Prijs\nOpel;Corsa;\"7.950\"\nFord;Fiesta;6.500\n"
	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Merk", "Model", "Prijs"}, rows[0])
	assert.Equal(t, "7.950", rows[1][2])
}

func TestReadCSV_CommaVariableWidth(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("Brand,Model,Year\nKia,Ceed\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1], 2)
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read("stock.pdf", []byte("%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestReadXLSX_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))
	_, err := ReadFile(path)
	assert.Error(t, err)
}
