// Package route implements the confidence-based strategy router.
//
// The router is pure decision logic: it maps analyzer scores to extraction
// strategies, computes the dependency-respecting field processing order,
// and checks cross-field consistency of finished results. It holds no
// mutable state and is safe to share.
package route

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/models"
)

// processingOrder is the fixed dependency order: the start time anchors
// everything, duration can derive the end time, and the description comes
// last so it can lean on every other resolved field.
var processingOrder = []models.FieldName{
	models.FieldStart,
	models.FieldDuration,
	models.FieldEnd,
	models.FieldTitle,
	models.FieldLocation,
	models.FieldParticipants,
	models.FieldRecurrence,
	models.FieldDescription,
}

// thresholdAdjustments shift the routing cut points per field. Essential
// fields are held to the strict default bar; optional fields are attempted
// more readily at lower raw confidence.
var thresholdAdjustments = map[models.FieldName]float64{
	models.FieldTitle:        0,
	models.FieldStart:        0,
	models.FieldEnd:          0,
	models.FieldDuration:     -0.1,
	models.FieldLocation:     -0.1,
	models.FieldParticipants: -0.1,
	models.FieldRecurrence:   -0.1,
	models.FieldDescription:  -0.2,
}

// genericTitles are low-value titles worth a rename suggestion.
var genericTitles = map[string]bool{
	"meeting": true, "event": true, "appointment": true, "call": true,
}

// Router maps confidence to strategy and validates cross-field consistency.
type Router struct {
	patternMin  float64
	backupMin   float64
	semanticMin float64
}

// New builds a router from the configured thresholds.
func New(t config.ThresholdConfig) *Router {
	return &Router{
		patternMin:  t.PatternMin,
		backupMin:   t.BackupMin,
		semanticMin: t.SemanticMin,
	}
}

// Route picks the extraction strategy for one field given its analyzer
// confidence. Essential fields never resolve to Skip: a best-effort guess
// flagged for confirmation beats returning no title or start time at all.
func (r *Router) Route(field models.FieldName, confidence float64) models.Strategy {
	adj := thresholdAdjustments[field]

	var s models.Strategy
	switch {
	case confidence >= r.patternMin+adj:
		s = models.StrategyPattern
	case confidence >= r.backupMin+adj:
		s = models.StrategyBackup
	case confidence >= r.semanticMin+adj:
		s = models.StrategySemantic
	default:
		s = models.StrategySkip
	}

	if s == models.StrategySkip && models.IsEssential(field) {
		s = models.StrategyBackup
	}
	return s
}

// Priority returns the field's position in the dependency order. Unknown
// fields sort after all known ones.
func (r *Router) Priority(field models.FieldName) int {
	for i, f := range processingOrder {
		if f == field {
			return i
		}
	}
	return len(processingOrder)
}

// OptimizeOrder sorts fields into dependency order. Fields outside the
// known set are appended alphabetically.
func (r *Router) OptimizeOrder(fields []models.FieldName) []models.FieldName {
	out := make([]models.FieldName, len(fields))
	copy(out, fields)

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := r.Priority(out[i]), r.Priority(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out
}

// ValidateConsistency checks an aggregated event for cross-field problems.
// An end at or before the start makes the whole event invalid; everything
// else is a warning or suggestion.
func (r *Router) ValidateConsistency(ev *models.ParsedEvent) models.ValidationResult {
	v := models.ValidationResult{
		IsValid:       true,
		Warnings:      map[models.FieldName][]string{},
		Suggestions:   map[models.FieldName][]string{},
		LowConfidence: map[models.FieldName]bool{},
	}

	warn := func(f models.FieldName, msg string) {
		v.Warnings[f] = append(v.Warnings[f], msg)
	}

	if strings.TrimSpace(ev.Title) == "" {
		v.Missing = append(v.Missing, models.FieldTitle)
		v.IsValid = false
	}
	if ev.Start == nil {
		v.Missing = append(v.Missing, models.FieldStart)
		v.IsValid = false
	}

	if ev.Start != nil && ev.End != nil {
		if !ev.End.After(*ev.Start) {
			v.IsValid = false
			warn(models.FieldEnd, fmt.Sprintf(
				"end time %s is not after start time %s",
				ev.End.Format("15:04"), ev.Start.Format("15:04")))
		} else if !ev.AllDay {
			d := ev.End.Sub(*ev.Start)
			if d > 24*time.Hour {
				warn(models.FieldDuration, fmt.Sprintf("event runs %s, longer than a day", d))
			}
			if d < 15*time.Minute {
				warn(models.FieldDuration, fmt.Sprintf("event runs only %s", d))
			}
		}
	}

	if t := strings.TrimSpace(ev.Title); t != "" {
		if len(t) < 3 {
			warn(models.FieldTitle, "title is shorter than 3 characters")
		}
		if len(t) > 100 {
			warn(models.FieldTitle, "title is longer than 100 characters")
		}
		if genericTitles[strings.ToLower(t)] {
			v.Suggestions[models.FieldTitle] = append(v.Suggestions[models.FieldTitle],
				fmt.Sprintf("title %q is generic; consider something more specific", t))
		}
	}

	for field, fr := range ev.FieldResults {
		if fr.Value != nil && fr.Confidence < 0.5 {
			v.LowConfidence[field] = true
		}
	}

	return v
}
