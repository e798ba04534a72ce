// Package advisor turns the collected valuation data for one vehicle into a
// purchase recommendation using Claude.
package advisor

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 1024
)

// Config tunes the advisor.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Request bundles everything the synthesis stage knows about a vehicle.
type Request struct {
	Vehicle  model.Vehicle
	Input    model.VehicleInput
	Baseline *model.BaselineValuation
	Market   *model.MarketComparables
	Internal *model.InternalComparables
	Feedback model.FeedbackContext
}

// Advisor produces recommendations via the Anthropic messages API.
type Advisor struct {
	client anthropic.Client
	cfg    Config
	schema *jsonschema.Schema
}

// New creates an Advisor. The response schema is compiled once here.
func New(client anthropic.Client, cfg Config) (*Advisor, error) {
	if client == nil {
		return nil, eris.New("advisor: anthropic client is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	return &Advisor{client: client, cfg: cfg, schema: schema}, nil
}

// Recommend asks the model for a recommendation and validates the answer.
func (a *Advisor) Recommend(ctx context.Context, req Request) (*model.Recommendation, error) {
	if req.Baseline == nil {
		return nil, eris.New("advisor: baseline valuation is required")
	}

	temp := a.cfg.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: systemPrompt, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: buildUserPrompt(req)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "advisor: create message")
	}
	resp.Usage.LogCost(a.cfg.Model, "synthesis")

	rec, err := a.parse(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "advisor: %s", req.Vehicle.Label())
	}
	return rec, nil
}
