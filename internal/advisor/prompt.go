package advisor

import (
	"fmt"
	"strings"

	"github.com/sells-group/valuation-cli/internal/model"
)

// maxPromptListings caps how many market listings are quoted in the prompt.
const maxPromptListings = 10

const systemPrompt = `You are a used-car purchasing advisor for a car dealership.
Given a vehicle, its baseline valuation, comparable listings currently on the
market and the dealership's own sales history, recommend whether to buy it.

Weigh the corrections the dealership made to earlier recommendations: they
describe how the buyers disagree with past advice.

Respond with a single JSON object and nothing else:
{
  "purchase_price": number,          // maximum price the dealership should pay
  "selling_price": number,           // expected retail price
  "expected_days_to_sell": integer,
  "recommendation": "buy" | "negotiate" | "pass",
  "reasoning": string,
  "risks": [string],
  "opportunities": [string]
}`

func buildUserPrompt(req Request) string {
	var b strings.Builder
	v := req.Vehicle

	b.WriteString("## Vehicle\n")
	fmt.Fprintf(&b, "%s %s", v.Brand, v.Model)
	if v.Variant != "" {
		fmt.Fprintf(&b, " %s", v.Variant)
	}
	fmt.Fprintf(&b, ", %d, %d km", v.Year, v.Mileage)
	if v.Fuel != "" {
		fmt.Fprintf(&b, ", %s", v.Fuel)
	}
	if v.Transmission != "" {
		fmt.Fprintf(&b, ", %s", v.Transmission)
	}
	if v.PowerKW != nil {
		fmt.Fprintf(&b, ", %d kW", *v.PowerKW)
	}
	if v.Color != "" {
		fmt.Fprintf(&b, ", %s", v.Color)
	}
	b.WriteString("\n")
	if v.AskingPrice != nil {
		fmt.Fprintf(&b, "Asking price: %.0f\n", *v.AskingPrice)
	}
	if d := strings.TrimSpace(req.Input.Description); d != "" {
		fmt.Fprintf(&b, "Original listing text: %s\n", d)
	}

	if bl := req.Baseline; bl != nil {
		b.WriteString("\n## Baseline valuation\n")
		fmt.Fprintf(&b, "Value %.0f (range %.0f-%.0f), confidence %.2f\n", bl.Value, bl.Low, bl.High, bl.Confidence)
	}

	if m := req.Market; m != nil {
		b.WriteString("\n## Market comparables\n")
		if m.Count == 0 {
			b.WriteString("No comparable listings found.\n")
		} else {
			fmt.Fprintf(&b, "%d listings; lowest %.0f, median %.0f, highest %.0f\n", m.Count, m.Lowest, m.Median, m.Highest)
			for i, l := range m.Listings {
				if i == maxPromptListings {
					break
				}
				fmt.Fprintf(&b, "- %s (%d, %d km): %.0f [%s]\n", l.Title, l.Year, l.Mileage, l.Price, l.Source)
			}
		}
	}

	if ic := req.Internal; ic != nil {
		b.WriteString("\n## Dealership sales history\n")
		if ic.SoldCount == 0 {
			b.WriteString("No comparable vehicles sold before.\n")
		} else {
			fmt.Fprintf(&b, "%d sold; average margin %.0f; average %.0f days to sell\n", ic.SoldCount, ic.AvgMargin, ic.AvgDaysToSell)
			for _, s := range ic.Similar {
				fmt.Fprintf(&b, "- %s %s %d, %d km: sold %.0f, margin %.0f, %d days\n",
					s.Brand, s.Model, s.Year, s.Mileage, s.SalePrice, s.Margin, s.DaysToSell)
			}
		}
	}

	if len(req.Feedback) > 0 {
		b.WriteString("\n## Past corrections\n")
		for _, fb := range req.Feedback {
			b.WriteString(formatFeedback(fb))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatFeedback(fb model.FeedbackRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s]", fb.Type)
	if fb.PriorRecommendation != "" {
		fmt.Fprintf(&b, " advised %s;", fb.PriorRecommendation)
	}
	if fb.SuggestedPrice != nil {
		fmt.Fprintf(&b, " should have been %.0f;", *fb.SuggestedPrice)
	}
	fmt.Fprintf(&b, " %s", strings.TrimSpace(fb.Reasoning))
	if fb.MarketContext != "" {
		fmt.Fprintf(&b, " (%s)", fb.MarketContext)
	}
	return b.String()
}
