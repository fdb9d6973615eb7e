package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/models"
	"github.com/eventparse/chrono/internal/patterns"
)

// backupMaxConfidence caps everything the rule backup reports: it is a
// second guess by construction, so it never outranks a clean first-pass
// pattern match.
const backupMaxConfidence = 0.75

// RuleBackup is the default deterministic backup strategy: a permissive
// rule-based second pass over the text. It shares the pattern engine's
// title cleaner so the two strategies cannot disagree about cleanup.
type RuleBackup struct {
	engine     *patterns.Engine
	loosePlace *regexp.Regexp
}

// NewRuleBackup builds the rule-based backup extractor.
func NewRuleBackup(engine *patterns.Engine) *RuleBackup {
	return &RuleBackup{
		engine:     engine,
		loosePlace: regexp.MustCompile(`(?i)\b(?:at|in|@)\s+([^,.;:]{3,40})`),
	}
}

// Available always reports true; the rule backup has no external dependency.
func (b *RuleBackup) Available() bool { return true }

// Extract runs the permissive second pass for one field. A miss returns a
// nil result, never an error.
func (b *RuleBackup) Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &models.FieldResult{Field: field, Source: models.StrategyBackup}

	switch field {
	case models.FieldTitle:
		sentence := text
		if idx := strings.IndexAny(text, ".!?\n"); idx > 0 {
			sentence = text[:idx]
		}
		title := b.engine.CleanTitle(sentence)
		if len(title) < 3 {
			return nil, nil
		}
		res.Value = models.TextValue(title)
		res.Confidence = 0.65
		res.Span = sentence

	case models.FieldStart:
		c := firstWithStart(b.engine.ExtractDateTime(text, ref))
		if c == nil {
			return nil, nil
		}
		res.Value = models.TimeValue(c.Start)
		res.Confidence = minConf(c.Confidence, backupMaxConfidence)
		res.Span = c.MatchedText

	case models.FieldEnd:
		c := firstWithEnd(b.engine.ExtractDateTime(text, ref))
		if c == nil {
			return nil, nil
		}
		res.Value = models.TimeValue(c.End)
		res.Confidence = minConf(c.Confidence, backupMaxConfidence)
		res.Span = c.MatchedText

	case models.FieldDuration:
		for _, c := range b.engine.ExtractDateTime(text, ref) {
			if c.Kind == models.CandidateDuration {
				res.Value = models.DurationValue(c.Duration)
				res.Confidence = minConf(c.Confidence, backupMaxConfidence)
				res.Span = c.MatchedText
				return res, nil
			}
		}
		return nil, nil

	case models.FieldLocation:
		m := b.loosePlace.FindStringSubmatch(text)
		if m == nil {
			return nil, nil
		}
		place := b.engine.CleanTitle(m[1])
		if len(place) < 3 {
			return nil, nil
		}
		res.Value = models.TextValue(place)
		res.Confidence = 0.6
		res.Span = m[0]

	case models.FieldParticipants:
		people, conf, span := b.engine.ExtractParticipants(text)
		if len(people) == 0 {
			return nil, nil
		}
		res.Value = models.ListValue(people)
		res.Confidence = minConf(conf, 0.65)
		res.Span = span

	case models.FieldRecurrence:
		rule, conf, span := b.engine.ExtractRecurrence(text)
		if rule == "" {
			return nil, nil
		}
		res.Value = models.TextValue(rule)
		res.Confidence = minConf(conf, 0.65)
		res.Span = span

	case models.FieldDescription:
		desc := strings.TrimSpace(text)
		if desc == "" {
			return nil, nil
		}
		if len(desc) > maxDescriptionLen {
			desc = desc[:maxDescriptionLen]
		}
		res.Value = models.TextValue(desc)
		res.Confidence = 0.55

	default:
		return nil, nil
	}

	return res, nil
}

func firstWithStart(cands []models.ExtractionCandidate) *models.ExtractionCandidate {
	for i := range cands {
		if cands[i].Kind != models.CandidateDuration && !cands[i].Start.IsZero() {
			return &cands[i]
		}
	}
	return nil
}

func firstWithEnd(cands []models.ExtractionCandidate) *models.ExtractionCandidate {
	for i := range cands {
		if cands[i].Kind != models.CandidateDuration && !cands[i].End.IsZero() {
			return &cands[i]
		}
	}
	return nil
}

func minConf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
