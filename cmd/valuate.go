package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/valuation-cli/internal/export"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/sheet"
)

var (
	valuateFile    string
	valuateExport  string
	valuateOutput  string
	valuateOffline bool
	valuateLimit   int
	valuateWorkers int
)

var valuateCmd = &cobra.Command{
	Use:   "valuate",
	Short: "Value every vehicle in a spreadsheet or YAML list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "valuate"
		if valuateOffline {
			mode = "offline"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		inputs, err := loadInputs(valuateFile)
		if err != nil {
			return err
		}
		if valuateLimit > 0 && len(inputs) > valuateLimit {
			inputs = inputs[:valuateLimit]
		}
		zap.L().Info("loaded vehicles", zap.String("file", valuateFile), zap.Int("count", len(inputs)))

		env, err := initValuation(ctx, envOptions{Offline: valuateOffline, Workers: valuateWorkers})
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Orchestrator.Run(ctx, inputs)
		if err != nil {
			return eris.Wrap(err, "valuate")
		}
		snap := job.Snapshot()

		formatResults(os.Stdout, snap)

		if valuateOutput != "" {
			if err := writeSnapshot(valuateOutput, snap); err != nil {
				return err
			}
		}
		if valuateExport != "" {
			data, err := export.BatchXLSX(snap)
			if err != nil {
				return err
			}
			if err := os.WriteFile(valuateExport, data, 0o644); err != nil {
				return eris.Wrap(err, "write export")
			}
			zap.L().Info("exported results", zap.String("path", valuateExport))
		}
		return nil
	},
}

// loadInputs reads vehicles from a .yaml/.yml list or a spreadsheet.
func loadInputs(path string) ([]model.VehicleInput, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		var inputs []model.VehicleInput
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, eris.Wrapf(err, "parse %s", path)
		}
		return model.KeepPopulated(inputs), nil
	default:
		rows, err := sheet.ReadFile(path)
		if err != nil {
			return nil, err
		}
		imp := sheet.Parse(rows)
		zap.L().Info("detected header",
			zap.Int("header_row", imp.HeaderRow),
			zap.Int("mapped_columns", len(imp.Columns)),
		)
		return imp.Inputs, nil
	}
}

// writeSnapshot writes snap as YAML or JSON depending on the extension.
func writeSnapshot(path string, snap model.BatchSnapshot) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(snap)
	default:
		data, err = json.MarshalIndent(snap, "", "  ")
	}
	if err != nil {
		return eris.Wrap(err, "encode results")
	}
	return eris.Wrap(os.WriteFile(path, data, 0o644), "write results")
}

// formatResults writes one line per vehicle and a summary to w.
func formatResults(out io.Writer, snap model.BatchSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tVEHICLE\tSTATUS\tPURCHASE\tSELLING\tDAYS\tADVICE\tERROR")
	_, _ = fmt.Fprintln(w, "---\t-------\t------\t--------\t-------\t----\t------\t-----")
	for _, r := range snap.Results {
		purchase, selling, days, advice := "", "", "", ""
		if rec := r.Recommendation; rec != nil {
			purchase = fmt.Sprintf("%.0f", rec.PurchasePrice)
			selling = fmt.Sprintf("%.0f", rec.SellingPrice)
			days = fmt.Sprintf("%d", rec.ExpectedDaysToSell)
			advice = rec.Label
		}
		errMsg := r.Error
		if r.FailedStage != "" {
			errMsg = fmt.Sprintf("[%s] %s", r.FailedStage, r.Error)
		}
		errMsg = truncate(errMsg, 60)
		_, _ = fmt.Fprintf(w, "%d\t%s %d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Input.Row, r.Input.Label(), r.Input.Year, r.Status,
			purchase, selling, days, advice, errMsg)
	}
	_, _ = fmt.Fprintf(w, "\nTotal: %d\tCompleted: %d\tFailed: %d\n", snap.Total, snap.Completed, snap.Failed)
	_ = w.Flush()
}

func init() {
	valuateCmd.Flags().StringVar(&valuateFile, "file", "", "spreadsheet (.xlsx, .csv) or YAML vehicle list (required)")
	valuateCmd.Flags().StringVar(&valuateExport, "export", "", "write results to this .xlsx file")
	valuateCmd.Flags().StringVar(&valuateOutput, "output", "", "write the batch snapshot as JSON or YAML")
	valuateCmd.Flags().BoolVar(&valuateOffline, "offline", false, "use deterministic stand-ins instead of external APIs")
	valuateCmd.Flags().IntVar(&valuateLimit, "limit", 0, "only value the first N vehicles")
	valuateCmd.Flags().IntVar(&valuateWorkers, "workers", 0, "vehicles processed concurrently (default from config)")
	_ = valuateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(valuateCmd)
}
