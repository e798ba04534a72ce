package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/sheet"
)

var (
	detectFile string
	detectJSON bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected header row and column mapping of a spreadsheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rows, err := sheet.ReadFile(detectFile)
		if err != nil {
			return err
		}
		imp := sheet.Parse(rows)

		if detectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(imp)
		}
		formatImport(os.Stdout, imp)
		return nil
	},
}

// formatImport writes the header row, mapping and parsed vehicle count.
func formatImport(out io.Writer, imp sheet.Import) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Header row:\t%d\n", imp.HeaderRow+1)
	_, _ = fmt.Fprintf(w, "Vehicles:\t%d\n", len(imp.Inputs))
	_, _ = fmt.Fprintln(w, "\nFIELD\tCOLUMN\tHEADER")

	fields := make([]string, 0, len(imp.Columns))
	for f := range imp.Columns {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)
	for _, f := range fields {
		idx := imp.Columns[sheet.Field(f)]
		header := ""
		if idx < len(imp.Header) {
			header = imp.Header[idx]
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", f, idx+1, header)
	}
	_ = w.Flush()
}

func init() {
	detectCmd.Flags().StringVar(&detectFile, "file", "", "spreadsheet to inspect (required)")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the parsed import as JSON")
	_ = detectCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(detectCmd)
}
