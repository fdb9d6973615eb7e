// Package pipeline drives the end-to-end extraction flow: clean, analyze,
// route, execute, aggregate, validate, cache.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eventparse/chrono/internal/models"
	"github.com/eventparse/chrono/internal/patterns"
)

// BackupStrategy is the deterministic second-pass extractor invoked for
// mid-confidence fields. It reports unavailability instead of erroring so
// the orchestrator can fall back to the pattern result with reduced
// confidence.
type BackupStrategy interface {
	Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error)
	Available() bool
}

// SemanticStrategy is the slow model-backed extractor, a last resort for
// low-confidence fields. Implementations must cap their reported
// confidence; the orchestrator clamps it again as a guardrail.
type SemanticStrategy interface {
	Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error)
	Available(ctx context.Context) bool
}

// maxDescriptionLen bounds the description the pattern strategy echoes back.
const maxDescriptionLen = 500

// patternShot runs the pattern engine at most once per request and serves
// every pattern-routed field from that single pass. It is always
// synchronous and never suspends.
type patternShot struct {
	engine *patterns.Engine
	text   string
	ref    time.Time

	once  sync.Once
	cands []models.ExtractionCandidate
}

func newPatternShot(engine *patterns.Engine, text string, ref time.Time) *patternShot {
	return &patternShot{engine: engine, text: text, ref: ref}
}

func (s *patternShot) candidates() []models.ExtractionCandidate {
	s.once.Do(func() {
		s.cands = s.engine.ExtractDateTime(s.text, s.ref)
	})
	return s.cands
}

// extract produces the pattern-match result for one field, plus any issue
// strings the match carried. A miss is an empty result, not an error.
func (s *patternShot) extract(field models.FieldName) (models.FieldResult, []string) {
	res := models.FieldResult{Field: field, Source: models.StrategyPattern}

	switch field {
	case models.FieldStart:
		for _, c := range s.candidates() {
			if c.Kind == models.CandidateDuration || c.Start.IsZero() {
				continue
			}
			res.Value = models.TimeValue(c.Start)
			res.Confidence = c.Confidence
			res.Span = c.MatchedText
			return res, c.Issues
		}

	case models.FieldEnd:
		for _, c := range s.candidates() {
			if c.Kind == models.CandidateDuration || c.End.IsZero() {
				continue
			}
			res.Value = models.TimeValue(c.End)
			res.Confidence = c.Confidence
			res.Span = c.MatchedText
			return res, c.Issues
		}

	case models.FieldDuration:
		for _, c := range s.candidates() {
			if c.Kind == models.CandidateDuration {
				res.Value = models.DurationValue(c.Duration)
				res.Confidence = c.Confidence
				res.Span = c.MatchedText
				return res, c.Issues
			}
		}
		// A time range still pins the duration down, just less directly.
		for _, c := range s.candidates() {
			if c.Kind == models.CandidateTimeRange && c.End.After(c.Start) {
				res.Value = models.DurationValue(c.End.Sub(c.Start))
				res.Confidence = c.Confidence * 0.9
				res.Span = c.MatchedText
				return res, nil
			}
		}

	case models.FieldTitle:
		if title, conf, span := s.engine.ExtractTitle(s.text); title != "" {
			res.Value = models.TextValue(title)
			res.Confidence = conf
			res.Span = span
			return res, nil
		}

	case models.FieldLocation:
		if loc, conf, span := s.engine.ExtractLocation(s.text); loc != "" {
			res.Value = models.TextValue(loc)
			res.Confidence = conf
			res.Span = span
			return res, nil
		}

	case models.FieldParticipants:
		if people, conf, span := s.engine.ExtractParticipants(s.text); len(people) > 0 {
			res.Value = models.ListValue(people)
			res.Confidence = conf
			res.Span = span
			return res, nil
		}

	case models.FieldRecurrence:
		if rule, conf, span := s.engine.ExtractRecurrence(s.text); rule != "" {
			res.Value = models.TextValue(rule)
			res.Confidence = conf
			res.Span = span
			return res, nil
		}

	case models.FieldDescription:
		desc := strings.TrimSpace(s.text)
		if len(desc) > maxDescriptionLen {
			desc = desc[:maxDescriptionLen]
		}
		if desc != "" {
			res.Value = models.TextValue(desc)
			res.Confidence = 0.4
			return res, nil
		}
	}

	return res, nil
}
