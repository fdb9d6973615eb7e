package route

import (
	"testing"
	"time"

	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestRouter() *Router {
	return New(config.ThresholdConfig{
		PatternMin:  0.8,
		BackupMin:   0.6,
		SemanticMin: 0.4,
	})
}

func TestRoute(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name  string
		field models.FieldName
		conf  float64
		want  models.Strategy
	}{
		{"high confidence pattern", models.FieldTitle, 0.85, models.StrategyPattern},
		{"boundary is inclusive", models.FieldTitle, 0.8, models.StrategyPattern},
		{"mid confidence backup", models.FieldTitle, 0.7, models.StrategyBackup},
		{"low confidence semantic", models.FieldTitle, 0.5, models.StrategySemantic},
		{"essential never skips", models.FieldTitle, 0.1, models.StrategyBackup},
		{"start never skips", models.FieldStart, 0.0, models.StrategyBackup},
		{"optional field skips", models.FieldLocation, 0.25, models.StrategySkip},
		{"optional threshold relaxed", models.FieldLocation, 0.75, models.StrategyPattern},
		{"description most relaxed", models.FieldDescription, 0.25, models.StrategySemantic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.field, tt.conf))
		})
	}
}

func TestOptimizeOrder(t *testing.T) {
	r := newTestRouter()

	got := r.OptimizeOrder([]models.FieldName{
		models.FieldDescription,
		models.FieldTitle,
		models.FieldEnd,
		models.FieldStart,
		models.FieldDuration,
	})
	assert.Equal(t, []models.FieldName{
		models.FieldStart,
		models.FieldDuration,
		models.FieldEnd,
		models.FieldTitle,
		models.FieldDescription,
	}, got)
}

func TestOptimizeOrderUnknownFieldsAlphabetical(t *testing.T) {
	r := newTestRouter()

	got := r.OptimizeOrder([]models.FieldName{"zebra", models.FieldStart, "aardvark"})
	assert.Equal(t, []models.FieldName{models.FieldStart, "aardvark", "zebra"}, got)
}

func TestValidateConsistencyMissingEssentials(t *testing.T) {
	r := newTestRouter()

	v := r.ValidateConsistency(&models.ParsedEvent{})
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Missing, models.FieldTitle)
	assert.Contains(t, v.Missing, models.FieldStart)
}

func TestValidateConsistencyEndBeforeStart(t *testing.T) {
	r := newTestRouter()

	start := time.Date(2025, 10, 8, 15, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	v := r.ValidateConsistency(&models.ParsedEvent{Title: "Review", Start: &start, End: &end})

	assert.False(t, v.IsValid)
	assert.NotEmpty(t, v.Warnings[models.FieldEnd])
}

func TestValidateConsistencyDurationWarnings(t *testing.T) {
	r := newTestRouter()
	start := time.Date(2025, 10, 8, 15, 0, 0, 0, time.UTC)

	t.Run("too long", func(t *testing.T) {
		end := start.Add(30 * time.Hour)
		v := r.ValidateConsistency(&models.ParsedEvent{Title: "Offsite", Start: &start, End: &end})
		assert.True(t, v.IsValid)
		assert.NotEmpty(t, v.Warnings[models.FieldDuration])
	})

	t.Run("too short", func(t *testing.T) {
		end := start.Add(5 * time.Minute)
		v := r.ValidateConsistency(&models.ParsedEvent{Title: "Blip", Start: &start, End: &end})
		assert.True(t, v.IsValid)
		assert.NotEmpty(t, v.Warnings[models.FieldDuration])
	})

	t.Run("all day exempt", func(t *testing.T) {
		end := start.AddDate(0, 0, 2)
		v := r.ValidateConsistency(&models.ParsedEvent{Title: "Conference", Start: &start, End: &end, AllDay: true})
		assert.Empty(t, v.Warnings[models.FieldDuration])
	})
}

func TestValidateConsistencyGenericTitle(t *testing.T) {
	r := newTestRouter()
	start := time.Date(2025, 10, 8, 15, 0, 0, 0, time.UTC)

	v := r.ValidateConsistency(&models.ParsedEvent{Title: "Meeting", Start: &start})
	assert.True(t, v.IsValid)
	assert.NotEmpty(t, v.Suggestions[models.FieldTitle])
}

func TestValidateConsistencyLowConfidenceFlags(t *testing.T) {
	r := newTestRouter()
	start := time.Date(2025, 10, 8, 15, 0, 0, 0, time.UTC)

	v := r.ValidateConsistency(&models.ParsedEvent{
		Title: "Planning session",
		Start: &start,
		FieldResults: map[models.FieldName]models.FieldResult{
			models.FieldLocation: {
				Field:      models.FieldLocation,
				Value:      models.TextValue("somewhere"),
				Confidence: 0.3,
			},
			models.FieldTitle: {
				Field:      models.FieldTitle,
				Value:      models.TextValue("Planning session"),
				Confidence: 0.9,
			},
		},
	})

	assert.True(t, v.LowConfidence[models.FieldLocation])
	assert.False(t, v.LowConfidence[models.FieldTitle])
}
