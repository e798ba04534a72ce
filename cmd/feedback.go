package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and inspect corrections to past valuations",
}

// -- feedback add --

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a correction the synthesis step will learn from",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		valuationID, _ := cmd.Flags().GetString("valuation-id")
		typ, _ := cmd.Flags().GetString("type")
		reasoning, _ := cmd.Flags().GetString("reasoning")
		prior, _ := cmd.Flags().GetString("prior")
		marketCtx, _ := cmd.Flags().GetString("market-context")

		fb := model.FeedbackRecord{
			ValuationID:         valuationID,
			Type:                model.FeedbackType(typ),
			Reasoning:           reasoning,
			PriorRecommendation: prior,
			MarketContext:       marketCtx,
		}
		if cmd.Flags().Changed("price") {
			price, _ := cmd.Flags().GetFloat64("price")
			fb.SuggestedPrice = &price
		}
		if err := validateFeedback(fb); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		id, err := st.AddFeedback(ctx, fb)
		if err != nil {
			return eris.Wrap(err, "feedback add")
		}
		zap.L().Info("feedback recorded", zap.String("id", id), zap.String("type", typ))
		fmt.Println(id)
		return nil
	},
}

// -- feedback list --

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent corrections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := st.RecentFeedback(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "feedback list")
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No feedback found.")
			return nil
		}
		formatFeedbackList(os.Stdout, records)
		return nil
	},
}

// validateFeedback checks a correction before it is stored.
func validateFeedback(fb model.FeedbackRecord) error {
	switch fb.Type {
	case model.FeedbackPriceCorrection, model.FeedbackRecommendationOverride, model.FeedbackComment:
	default:
		return eris.Errorf("feedback type must be %s, %s or %s",
			model.FeedbackPriceCorrection, model.FeedbackRecommendationOverride, model.FeedbackComment)
	}
	if fb.Reasoning == "" {
		return eris.New("feedback reasoning is required")
	}
	if fb.Type == model.FeedbackPriceCorrection && fb.SuggestedPrice == nil {
		return eris.New("price corrections need a suggested price")
	}
	if fb.SuggestedPrice != nil && *fb.SuggestedPrice < 0 {
		return eris.New("suggested price must be >= 0")
	}
	return nil
}

// formatFeedbackList writes a tabular list of corrections to w.
func formatFeedbackList(out io.Writer, records []model.FeedbackRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tPRICE\tCREATED\tREASONING")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-------\t---------")
	for _, fb := range records {
		price := ""
		if fb.SuggestedPrice != nil {
			price = fmt.Sprintf("%.0f", *fb.SuggestedPrice)
		}
		reasoning := truncate(fb.Reasoning, 50)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(fb.ID), fb.Type, price, fb.CreatedAt.Format("2006-01-02 15:04"), reasoning)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate shortens s to at most n characters, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func init() {
	feedbackAddCmd.Flags().String("valuation-id", "", "valuation the correction refers to")
	feedbackAddCmd.Flags().String("type", string(model.FeedbackPriceCorrection), "price_correction, recommendation_override or comment")
	feedbackAddCmd.Flags().String("reasoning", "", "why the valuation was wrong (required)")
	feedbackAddCmd.Flags().Float64("price", 0, "suggested purchase price")
	feedbackAddCmd.Flags().String("prior", "", "the recommendation being overridden")
	feedbackAddCmd.Flags().String("market-context", "", "market conditions at the time")
	_ = feedbackAddCmd.MarkFlagRequired("reasoning")

	feedbackListCmd.Flags().Int("limit", 30, "max number of corrections to display")

	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackListCmd)
	rootCmd.AddCommand(feedbackCmd)
}
