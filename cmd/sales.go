package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/sheet"
)

var salesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Manage the internal sales history used for comparables",
}

// -- sales import --

var salesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import sold vehicles from a spreadsheet",
	Long:  "Reads an .xlsx or .csv export of past sales, detects the header row and stores every row that has a brand, model and sale price.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		rows, err := sheet.ReadFile(path)
		if err != nil {
			return err
		}
		headerIdx := sheet.DetectHeaderRow(rows)
		sales, skipped := sheet.ToSales(rows, headerIdx)
		if len(sales) == 0 {
			return eris.Errorf("sales import: no usable rows in %s (%d skipped)", path, skipped)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportSales(ctx, sales)
		if err != nil {
			return eris.Wrap(err, "sales import")
		}
		zap.L().Info("sales imported",
			zap.String("file", path),
			zap.Int("header_row", headerIdx+1),
			zap.Int64("imported", n),
			zap.Int("skipped", skipped),
		)
		fmt.Printf("Imported %d sales (%d rows skipped)\n", n, skipped)
		return nil
	},
}

func init() {
	salesImportCmd.Flags().String("file", "", "sales spreadsheet (.xlsx or .csv)")
	_ = salesImportCmd.MarkFlagRequired("file")

	salesCmd.AddCommand(salesImportCmd)
	rootCmd.AddCommand(salesCmd)
}
