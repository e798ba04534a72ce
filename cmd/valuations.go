package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/store"
)

var valuationsCmd = &cobra.Command{
	Use:   "valuations",
	Short: "Inspect stored valuations",
}

// -- valuations list --

var valuationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored valuations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		batchID, _ := cmd.Flags().GetString("batch")
		brand, _ := cmd.Flags().GetString("brand")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListValuations(ctx, store.ValuationFilter{
			BatchID: batchID,
			Brand:   brand,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "valuations list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No valuations found.")
			return nil
		}
		formatValuationsList(os.Stdout, recs)
		return nil
	},
}

// -- valuations show --

var valuationsShowCmd = &cobra.Command{
	Use:   "show <valuation-id>",
	Short: "Show the full record of a valuation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetValuation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "valuations show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// formatValuationsList writes a tabular list of valuations to w.
func formatValuationsList(out io.Writer, recs []model.ValuationRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVEHICLE\tYEAR\tKM\tPURCHASE\tLABEL\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t--\t--------\t-----\t-------")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%d\t%d\t%.0f\t%s\t%s\n",
			truncateID(r.ID),
			r.Vehicle.Brand, r.Vehicle.Model,
			r.Vehicle.Year,
			r.Vehicle.Mileage,
			r.Recommendation.PurchasePrice,
			r.Recommendation.Label,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	valuationsListCmd.Flags().String("batch", "", "filter by batch ID")
	valuationsListCmd.Flags().String("brand", "", "filter by brand")
	valuationsListCmd.Flags().Int("limit", 50, "max number of valuations to display")

	valuationsCmd.AddCommand(valuationsListCmd)
	valuationsCmd.AddCommand(valuationsShowCmd)
	rootCmd.AddCommand(valuationsCmd)
}
