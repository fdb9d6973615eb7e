// Package analyze implements the per-field extractability analyzer.
//
// The analyzer scans raw text once per field type with its own pattern
// battery and reports how extractable each field looks. It never resolves
// ambiguity; it only surfaces it for the router to act on. Compiled
// batteries are read-only after construction, so one analyzer is shared
// across concurrent requests.
package analyze

import (
	"fmt"
	"regexp"

	"github.com/eventparse/chrono/internal/models"
	"github.com/eventparse/chrono/internal/route"
)

// battery is one weighted pattern category for a field.
type battery struct {
	category string
	re       *regexp.Regexp
	weight   float64
}

// Analyzer scores each field's extraction potential.
type Analyzer struct {
	batteries map[models.FieldName][]battery
	router    *route.Router
}

// New compiles the per-field batteries. The router supplies strategy
// recommendations and processing priorities for the reports.
func New(router *route.Router) *Analyzer {
	months := `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	weekdays := `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

	return &Analyzer{
		router: router,
		batteries: map[models.FieldName][]battery{
			models.FieldTitle: {
				{"subject_line", regexp.MustCompile(`(?im)^\s*(?:subject|title|event|re)\s*:\s*.+$`), 0.95},
				{"quoted_phrase", regexp.MustCompile(`"[^"]{3,80}"`), 0.9},
				{"event_keyword", regexp.MustCompile(`(?i)^\s*(?:the\s+)?(?:meeting|lunch|dinner|breakfast|coffee|call|appointment|workshop|review|standup|sync|interview|demo|session|party|conference|class|training|checkup|check-in)\b`), 0.85},
				{"capitalized_lead", regexp.MustCompile(`^[A-Z][\w']*(?:\s+[a-zA-Z][\w']*){0,5}`), 0.6},
			},
			models.FieldStart: {
				{"explicit_date", regexp.MustCompile(`(?i)\b(?:` + months + `)\.?\s+\d{1,2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b|\b\d{4}-\d{2}-\d{2}\b`), 0.9},
				{"clock_time", regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:AM|PM)\b|\b[01]?\d:[0-5]\d\b|\b(?:noon|midnight)\b`), 0.85},
				{"relative_day", regexp.MustCompile(`(?i)\b(?:today|tomorrow|tonight|day after tomorrow|in\s+\d+\s+(?:day|week)s?)\b`), 0.85},
				{"prefixed_weekday", regexp.MustCompile(`(?i)\b(?:next|this|coming)\s+(?:` + weekdays + `)\b`), 0.7},
				{"bare_weekday", regexp.MustCompile(`(?i)\b(?:` + weekdays + `)\b`), 0.55},
			},
			models.FieldEnd: {
				{"time_range", regexp.MustCompile(`(?i)\bfrom\s+\d{1,2}(?::\d{2})?\s*(?:AM|PM)?\s+(?:to|until|till|through)\s+\d{1,2}|\bbetween\s+\d{1,2}.{0,12}\band\s+\d{1,2}|\b\d{1,2}(?::\d{2})?\s*(?:AM|PM)?\s*[-–]\s*\d{1,2}(?::\d{2})?\s*(?:AM|PM)\b`), 0.85},
				{"until_time", regexp.MustCompile(`(?i)\b(?:until|till|ends?\s+at)\s+\d{1,2}`), 0.8},
				{"duration_derivable", regexp.MustCompile(`(?i)\bfor\s+\d+(?:\.\d+)?\s*(?:hours?|hrs?|minutes?|mins?)\b|\bfor\s+(?:an?|one)\s+hour\b`), 0.65},
				{"implied_end", regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*(?:AM|PM)\b`), 0.5},
			},
			models.FieldDuration: {
				{"for_phrase", regexp.MustCompile(`(?i)\bfor\s+\d+(?:\.\d+)?\s*(?:hours?|hrs?|minutes?|mins?)\b`), 0.9},
				{"long_phrase", regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:hours?|hrs?|minutes?|mins?)\s+long\b`), 0.85},
				{"word_phrase", regexp.MustCompile(`(?i)\b(?:half\s+an?\s+hour|an?\s+hour\s+and\s+a\s+half|for\s+an?\s+hour)\b`), 0.7},
			},
			models.FieldLocation: {
				{"address", regexp.MustCompile(`\b\d+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\s+(?:Street|St\.?|Avenue|Ave\.?|Boulevard|Blvd\.?|Road|Rd\.?|Drive|Dr\.?|Lane|Ln\.?|Way|Place|Pl\.?)\b`), 0.9},
				{"venue_keyword", regexp.MustCompile(`(?i)\b(?:(?:conference\s+)?room|rm\.?|suite|hall|building|floor|office|auditorium|cafeteria|lobby)\s*#?\s*[A-Za-z0-9-]+\b`), 0.85},
				{"virtual_venue", regexp.MustCompile(`(?i)\b(?:zoom|google\s+meet|microsoft\s+teams|teams|webex|skype|hangouts|online|virtual)\b`), 0.85},
				{"preposition_place", regexp.MustCompile(`\b(?:at|in)\s+(?:the\s+)?[A-Z][\w'&.-]+`), 0.7},
			},
			models.FieldParticipants: {
				{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), 0.9},
				{"attendee_line", regexp.MustCompile(`(?im)^\s*(?:attendees|participants|invitees|guests)\s*:`), 0.85},
				{"with_name", regexp.MustCompile(`\bwith\s+[A-Z][a-z]+`), 0.75},
			},
			models.FieldRecurrence: {
				{"every_expr", regexp.MustCompile(`(?i)\bevery\s+(?:other\s+)?(?:day|week|month|year|weekday|` + weekdays + `)s?\b`), 0.9},
				{"frequency_word", regexp.MustCompile(`(?i)\b(?:daily|weekly|biweekly|fortnightly|monthly|quarterly|yearly|annually)\b`), 0.85},
			},
			models.FieldDescription: {
				{"long_text", regexp.MustCompile(`(?s)^.{60,}$`), 0.55},
				{"multi_sentence", regexp.MustCompile(`[.!?]\s+\S`), 0.5},
			},
		},
	}
}

// Analyze scores every field against its battery. Confidence is the maximum
// across matched categories, never a sum: several weak matches do not
// outweigh one strong match. Multiple distinct matches for the same field
// raise the complexity score and record an ambiguity note.
func (a *Analyzer) Analyze(text string) map[models.FieldName]models.FieldAnalysis {
	out := make(map[models.FieldName]models.FieldAnalysis, len(a.batteries))

	for field, batteries := range a.batteries {
		fa := models.FieldAnalysis{Field: field}

		// Matches across categories are complementary (a date plus a
		// time both help the start field); several matches within one
		// category compete and make the field ambiguous.
		maxInCategory := 0

		for _, b := range batteries {
			matches := b.re.FindAllString(text, -1)
			if len(matches) == 0 {
				continue
			}
			if len(matches) > maxInCategory {
				maxInCategory = len(matches)
			}
			fa.MatchedCategories = append(fa.MatchedCategories, b.category)
			if b.weight > fa.ConfidencePotential {
				fa.ConfidencePotential = b.weight
			}
		}

		if maxInCategory > 1 {
			extra := float64(maxInCategory-1) * 0.2
			if extra > 1 {
				extra = 1
			}
			fa.ComplexityScore = extra
			fa.Ambiguities = append(fa.Ambiguities, fmt.Sprintf(
				"%d competing candidates for %s", maxInCategory, field))
		}

		fa.Recommended = a.router.Route(field, fa.ConfidencePotential)
		fa.Priority = a.router.Priority(field)
		out[field] = fa
	}

	return out
}
