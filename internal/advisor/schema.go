package advisor

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/valuation-cli/internal/model"
)

const recommendationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["purchase_price", "selling_price", "expected_days_to_sell", "recommendation", "reasoning"],
  "properties": {
    "purchase_price": {"type": "number", "minimum": 0},
    "selling_price": {"type": "number", "minimum": 0},
    "expected_days_to_sell": {"type": "integer", "minimum": 0},
    "recommendation": {"type": "string", "enum": ["buy", "negotiate", "pass"]},
    "reasoning": {"type": "string", "minLength": 1},
    "risks": {"type": "array", "items": {"type": "string"}},
    "opportunities": {"type": "array", "items": {"type": "string"}}
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("recommendation.json", strings.NewReader(recommendationSchema)); err != nil {
		return nil, eris.Wrap(err, "advisor: add schema")
	}
	schema, err := compiler.Compile("recommendation.json")
	if err != nil {
		return nil, eris.Wrap(err, "advisor: compile schema")
	}
	return schema, nil
}

// parse extracts the JSON object from the model's text, validates it and
// decodes it into a Recommendation.
func (a *Advisor) parse(text string) (*model.Recommendation, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return nil, eris.New("empty model response")
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, eris.Wrap(err, "response is not JSON")
	}
	if m, ok := v.(map[string]any); ok {
		if label, ok := m["recommendation"].(string); ok {
			m["recommendation"] = strings.ToLower(strings.TrimSpace(label))
		}
	}
	if err := a.schema.Validate(v); err != nil {
		return nil, eris.Wrap(err, "response does not match schema")
	}

	normalized, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "re-marshal response")
	}
	var rec model.Recommendation
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, eris.Wrap(err, "decode recommendation")
	}
	if rec.Risks == nil {
		rec.Risks = []string{}
	}
	if rec.Opportunities == nil {
		rec.Opportunities = []string{}
	}
	return &rec, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
