package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/llm"
	"github.com/eventparse/chrono/internal/models"
)

// semanticConfidenceCap bounds what the model-backed strategy may report.
// The semantic model is a last resort and is never allowed to outrank
// deterministic extraction, whatever certainty it claims.
const semanticConfidenceCap = 0.6

// ProviderStrategy implements SemanticStrategy on top of an llm.Provider.
type ProviderStrategy struct {
	provider llm.Provider
}

// NewProviderStrategy wraps a provider. A nil provider yields a strategy
// that reports itself unavailable.
func NewProviderStrategy(provider llm.Provider) *ProviderStrategy {
	return &ProviderStrategy{provider: provider}
}

// Available probes the backend without performing a full extraction.
func (p *ProviderStrategy) Available(ctx context.Context) bool {
	return p.provider != nil && p.provider.Available(ctx)
}

type semanticResult struct {
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
}

// fieldPrompts describe each field to the model.
var fieldPrompts = map[models.FieldName]string{
	models.FieldTitle:        `the event title, as a short string`,
	models.FieldStart:        `the event start as an RFC 3339 timestamp, e.g. "2025-10-09T14:00:00Z"`,
	models.FieldEnd:          `the event end as an RFC 3339 timestamp`,
	models.FieldDuration:     `the event length in minutes, as a number`,
	models.FieldLocation:     `the event location or meeting platform, as a short string`,
	models.FieldParticipants: `the attendee names or email addresses, as a JSON array of strings`,
	models.FieldRecurrence:   `the recurrence rule in plain words, e.g. "weekly on Friday"`,
	models.FieldDescription:  `a one-sentence description of the event`,
}

// Extract asks the model for a single field and maps its JSON reply to a
// typed field result. The reported confidence is clamped to the cap.
func (p *ProviderStrategy) Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
	if p.provider == nil {
		return nil, fmt.Errorf("no semantic backend configured")
	}

	what, ok := fieldPrompts[field]
	if !ok {
		return nil, nil
	}

	systemPrompt := fmt.Sprintf(`You extract one piece of calendar-event information from text.

Extract %s.

The current date and time is %s. Resolve relative expressions like
"tomorrow" against it.

Respond with a JSON object:
{"value": <the extracted value, or null if the text does not contain it>, "confidence": <0.0-1.0>}

Only respond with the JSON object, no other text.`, what, ref.Format(time.RFC3339))

	opts := llm.DefaultCompletionOptions()
	response, err := p.provider.CompleteWithSystem(ctx, systemPrompt, "Text:\n\n"+text, opts)
	if err != nil {
		return nil, fmt.Errorf("semantic extraction failed: %w", err)
	}

	result, err := parseSemanticResponse(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse semantic response: %w", err)
	}
	if result == nil || len(result.Value) == 0 || string(result.Value) == "null" {
		return nil, nil
	}

	value, err := decodeFieldValue(field, result.Value, ref)
	if err != nil || value == nil {
		// A malformed value from the model is a miss, not a failure.
		return nil, nil
	}

	conf := result.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > semanticConfidenceCap {
		conf = semanticConfidenceCap
	}

	return &models.FieldResult{
		Field:      field,
		Value:      value,
		Source:     models.StrategySemantic,
		Confidence: conf,
	}, nil
}

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

func parseSemanticResponse(response string) (*semanticResult, error) {
	response = strings.TrimSpace(response)

	// Handle markdown code blocks.
	if strings.HasPrefix(response, "```") {
		if matches := fencedBlock.FindStringSubmatch(response); len(matches) > 1 {
			response = matches[1]
		}
	}

	var result semanticResult
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		// Try to find a JSON object in the response.
		start := strings.Index(response, "{")
		end := strings.LastIndex(response, "}")
		if start >= 0 && end > start {
			if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
		} else {
			return nil, fmt.Errorf("no JSON found in response")
		}
	}

	return &result, nil
}

func decodeFieldValue(field models.FieldName, raw json.RawMessage, ref time.Time) (*models.FieldValue, error) {
	switch field {
	case models.FieldStart, models.FieldEnd:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		t, err := parseTimestamp(s, ref)
		if err != nil {
			return nil, err
		}
		return models.TimeValue(t), nil

	case models.FieldDuration:
		var minutes float64
		if err := json.Unmarshal(raw, &minutes); err != nil {
			return nil, err
		}
		if minutes <= 0 {
			return nil, nil
		}
		return models.DurationValue(time.Duration(minutes * float64(time.Minute))), nil

	case models.FieldParticipants:
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			if len(list) == 0 {
				return nil, nil
			}
			return models.ListValue(list), nil
		}
		// Some models reply with a comma-separated string instead.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		var list2 []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list2 = append(list2, p)
			}
		}
		if len(list2) == 0 {
			return nil, nil
		}
		return models.ListValue(list2), nil

	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s = strings.TrimSpace(s); s == "" {
			return nil, nil
		}
		return models.TextValue(s), nil
	}
}

func parseTimestamp(s string, ref time.Time) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, ref.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
