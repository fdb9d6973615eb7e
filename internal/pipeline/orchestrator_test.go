package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/eventparse/chrono/internal/cache"
	"github.com/eventparse/chrono/internal/config"
	"github.com/eventparse/chrono/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refTime is a Wednesday afternoon used as the reference for every scenario.
var refTime = time.Date(2025, 10, 8, 14, 30, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Concurrent = false
	return cfg
}

func newTestOrchestrator(cfg *config.Config, semantic SemanticStrategy) (*Orchestrator, *cache.Cache) {
	c := cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	return New(cfg, nil, semantic, c), c
}

func parseReq(text string) models.ParseRequest {
	ref := refTime
	return models.ParseRequest{Text: text, ReferenceTime: &ref}
}

// fakeSemantic is a scriptable semantic strategy for tests.
type fakeSemantic struct {
	available bool
	extract   func(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error)
}

func (f *fakeSemantic) Available(ctx context.Context) bool { return f.available }

func (f *fakeSemantic) Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
	return f.extract(ctx, field, text, ref)
}

// panicBackup triggers the orchestrator's terminal failure path.
type panicBackup struct{}

func (panicBackup) Available() bool { return true }

func (panicBackup) Extract(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
	panic("backup exploded")
}

func TestParseBasicEvent(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Team meeting tomorrow at 3 PM with Sarah"))
	require.NotNil(t, resp)

	ev := resp.Event
	assert.Equal(t, "Team meeting", ev.Title)
	require.NotNil(t, ev.Start)
	assert.Equal(t, time.Date(2025, 10, 9, 15, 0, 0, 0, time.UTC), *ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Date(2025, 10, 9, 16, 0, 0, 0, time.UTC), *ev.End)
	assert.Equal(t, []string{"Sarah"}, ev.Participants)

	assert.Equal(t, models.PathPatternOnly, resp.Path)
	assert.True(t, resp.Validation.IsValid)
	assert.False(t, ev.NeedsConfirmation)
	assert.Greater(t, ev.ConfidenceScore, 0.6)

	assert.Equal(t, models.StrategyPattern, ev.FieldResults[models.FieldStart].Source)
	assert.Equal(t, models.StrategyBackup, ev.FieldResults[models.FieldTitle].Source)
}

func TestParseDateOnlyBecomesAllDay(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Company holiday on December 25"))

	ev := resp.Event
	require.NotNil(t, ev.Start)
	assert.Equal(t, time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC), *ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), *ev.End)
	assert.True(t, ev.AllDay)
	assert.Equal(t, "Company holiday", ev.Title)
	assert.True(t, resp.Validation.IsValid)
}

func TestParseTimeOnlyAssumesReferenceDay(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Quick call at 4 PM"))

	ev := resp.Event
	require.NotNil(t, ev.Start)
	assert.Equal(t, time.Date(2025, 10, 8, 16, 0, 0, 0, time.UTC), *ev.Start)
	assert.True(t, ev.NeedsConfirmation, "a guessed date needs user confirmation")

	found := false
	for _, w := range resp.Warnings {
		if w.Message == "date assumed from reference time" {
			found = true
		}
	}
	assert.True(t, found, "the assumption is surfaced as a warning")
}

func TestParseCacheHit(t *testing.T) {
	orch, c := newTestOrchestrator(testConfig(), nil)

	first := orch.Parse(context.Background(), parseReq("Team meeting tomorrow at 3 PM"))
	assert.False(t, first.Event.CacheHit)

	// Same content up to case and whitespace.
	second := orch.Parse(context.Background(), parseReq("  team MEETING   tomorrow at 3 PM "))
	assert.True(t, second.Event.CacheHit)
	assert.Equal(t, first.Event.Title, second.Event.Title)
	assert.Equal(t, first.Path, second.Path)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
}

func TestParseCacheHitKeepsWarnings(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	req := parseReq("Quick call at 4 PM")
	first := orch.Parse(context.Background(), req)
	second := orch.Parse(context.Background(), req)
	require.True(t, second.Event.CacheHit)

	assumed := func(ws []models.Warning) bool {
		for _, w := range ws {
			if w.Message == "date assumed from reference time" {
				return true
			}
		}
		return false
	}
	require.True(t, assumed(first.Warnings))
	assert.True(t, assumed(second.Warnings), "a cache hit repeats the original parse warnings")
}

func TestParseFieldSubsetBypassesCache(t *testing.T) {
	orch, c := newTestOrchestrator(testConfig(), nil)

	req := parseReq("Team meeting tomorrow at 3 PM with Sarah")
	req.Fields = []models.FieldName{models.FieldTitle}
	resp := orch.Parse(context.Background(), req)

	// Essential fields ride along with any requested subset.
	assert.NotNil(t, resp.Event.Start)
	assert.NotEmpty(t, resp.Event.Title)
	assert.Empty(t, resp.Event.Participants, "unrequested optional fields are not extracted")

	assert.Equal(t, 0, c.Stats().Entries, "partial requests are not cached")
}

func TestParseEmptyTextFallback(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), models.ParseRequest{Text: "   "})

	assert.Equal(t, models.PathErrorFallback, resp.Path)
	assert.InDelta(t, 0.1, resp.Event.ConfidenceScore, 0.001)
	assert.True(t, resp.Event.NeedsConfirmation)
	assert.False(t, resp.Validation.IsValid)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0].Message, "fallback")
}

func TestParsePatternOnlyDeterministic(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	req := parseReq("Lunch on Friday from 12:00 to 1:30 PM at Luigi's Bistro")
	req.Mode = models.ModePatternOnly

	first := orch.Parse(context.Background(), req)
	for i := 0; i < 3; i++ {
		resp := orch.Parse(context.Background(), req)
		assert.Equal(t, first.Event.Title, resp.Event.Title)
		assert.Equal(t, first.Event.Start, resp.Event.Start)
		assert.Equal(t, first.Event.End, resp.Event.End)
		assert.Equal(t, first.Event.ConfidenceScore, resp.Event.ConfidenceScore)
		assert.Equal(t, first.Path, resp.Path)
	}
}

func TestParseSemanticOnlyFailingBackend(t *testing.T) {
	sem := &fakeSemantic{
		available: true,
		extract: func(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
			return nil, assert.AnError
		},
	}
	orch, _ := newTestOrchestrator(testConfig(), sem)

	req := parseReq("Team meeting tomorrow at 3 PM")
	req.Mode = models.ModeSemanticOnly
	resp := orch.Parse(context.Background(), req)

	assert.Equal(t, models.PathSemanticOnly, resp.Path)
	assert.Nil(t, resp.Event.Start, "a failed field contributes no value")
	assert.False(t, resp.Validation.IsValid)
	assert.True(t, resp.Event.NeedsConfirmation)
	assert.Equal(t, models.StrategyError, resp.Event.FieldResults[models.FieldStart].Source)

	found := false
	for _, w := range resp.Warnings {
		if w.Source == string(models.FieldStart) {
			found = true
		}
	}
	assert.True(t, found, "each failed field produces a warning")
}

func TestParseSemanticValues(t *testing.T) {
	start := time.Date(2025, 10, 9, 15, 0, 0, 0, time.UTC)
	sem := &fakeSemantic{
		available: true,
		extract: func(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
			switch field {
			case models.FieldTitle:
				return &models.FieldResult{
					Field:      field,
					Value:      models.TextValue("Quarterly sync"),
					Source:     models.StrategySemantic,
					Confidence: 0.55,
				}, nil
			case models.FieldStart:
				return &models.FieldResult{
					Field:      field,
					Value:      models.TimeValue(start),
					Source:     models.StrategySemantic,
					Confidence: 0.5,
				}, nil
			}
			return nil, nil
		},
	}
	orch, _ := newTestOrchestrator(testConfig(), sem)

	req := parseReq("Team meeting tomorrow at 3 PM")
	req.Mode = models.ModeSemanticOnly
	resp := orch.Parse(context.Background(), req)

	assert.Equal(t, "Quarterly sync", resp.Event.Title)
	require.NotNil(t, resp.Event.Start)
	assert.Equal(t, start, *resp.Event.Start)
	assert.Equal(t, models.StrategySemantic, resp.Event.FieldResults[models.FieldTitle].Source)
	assert.Equal(t, models.PathSemanticOnly, resp.Path)
}

func TestParseConcurrentMatchesSequential(t *testing.T) {
	seqCfg := testConfig()
	conCfg := config.DefaultConfig()
	conCfg.Pipeline.Concurrent = true

	seq, _ := newTestOrchestrator(seqCfg, nil)
	con, _ := newTestOrchestrator(conCfg, nil)

	req := parseReq("Standup tomorrow at 9 AM for 30 minutes in Room 12 with Alice and Bob")
	a := seq.Parse(context.Background(), req)
	b := con.Parse(context.Background(), req)

	assert.Equal(t, a.Event.Title, b.Event.Title)
	assert.Equal(t, a.Event.Start, b.Event.Start)
	assert.Equal(t, a.Event.End, b.Event.End)
	assert.Equal(t, a.Event.Location, b.Event.Location)
	assert.Equal(t, a.Event.Participants, b.Event.Participants)
	assert.Equal(t, a.Event.ConfidenceScore, b.Event.ConfidenceScore)
}

func TestParseConcurrentTimeoutPartialResults(t *testing.T) {
	if testing.Short() {
		t.Skip("timeout scenario sleeps through real deadlines")
	}

	sem := &fakeSemantic{
		available: true,
		extract: func(ctx context.Context, field models.FieldName, text string, ref time.Time) (*models.FieldResult, error) {
			<-ctx.Done()
			// Finish strictly after the deadline fires so the timeout
			// branch is taken deterministically.
			time.Sleep(50 * time.Millisecond)
			return nil, ctx.Err()
		},
	}

	cfg := config.DefaultConfig()
	cfg.Pipeline.Concurrent = true
	cfg.Pipeline.BatchTimeoutSeconds = 1
	cfg.Pipeline.PriorityTimeoutSeconds = 0.2
	orch, _ := newTestOrchestrator(cfg, sem)

	req := parseReq("Team meeting tomorrow at 3 PM")
	req.Mode = models.ModeSemanticOnly
	resp := orch.Parse(context.Background(), req)

	require.NotNil(t, resp)
	assert.Nil(t, resp.Event.Start)
	assert.True(t, resp.Event.NeedsConfirmation)

	found := false
	for _, w := range resp.Warnings {
		if w.Message == "field extraction timed out, returning partial results" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParsePanicFallback(t *testing.T) {
	cfg := testConfig()
	c := cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	orch := New(cfg, panicBackup{}, nil, c)

	// No usable signals, so the essential fields route to the backup.
	resp := orch.Parse(context.Background(), parseReq("xyzzy plugh"))

	assert.Equal(t, models.PathErrorFallback, resp.Path)
	assert.Equal(t, "xyzzy plugh", resp.Event.Description)
	assert.InDelta(t, 0.1, resp.Event.ConfidenceScore, 0.001)
	assert.True(t, resp.Event.NeedsConfirmation)
}

func TestParseConcurrentPanicIsolated(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Concurrent = true
	c := cache.New(cfg.CacheTTL(), cfg.Cache.MaxEntries)
	orch := New(cfg, panicBackup{}, nil, c)

	// No usable signals, so both essential fields route to the panicking
	// backup, on worker goroutines.
	resp := orch.Parse(context.Background(), parseReq("xyzzy plugh"))
	require.NotNil(t, resp)

	// The panic is contained to its field, not escalated to the fallback.
	assert.Equal(t, models.PathPatternOnly, resp.Path)
	assert.Equal(t, models.StrategyError, resp.Event.FieldResults[models.FieldStart].Source)
	assert.Equal(t, models.StrategyError, resp.Event.FieldResults[models.FieldTitle].Source)
	assert.Nil(t, resp.Event.Start)
	assert.False(t, resp.Validation.IsValid)
	assert.True(t, resp.Event.NeedsConfirmation)

	found := false
	for _, w := range resp.Warnings {
		if strings.Contains(w.Message, "panicked") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseMeetingWithTime(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Meeting with John tomorrow at 2:00 PM"))

	ev := resp.Event
	require.NotNil(t, ev.Start)
	assert.Equal(t, time.Date(2025, 10, 9, 14, 0, 0, 0, time.UTC), *ev.Start)
	require.NotNil(t, ev.End)
	assert.Equal(t, time.Date(2025, 10, 9, 15, 0, 0, 0, time.UTC), *ev.End)
	assert.Equal(t, []string{"John"}, ev.Participants)
	assert.Equal(t, models.StrategyPattern, ev.FieldResults[models.FieldStart].Source)
	assert.Equal(t, models.StrategyPattern, ev.FieldResults[models.FieldTitle].Source)
	assert.GreaterOrEqual(t, ev.ConfidenceScore, 0.8)
	assert.True(t, resp.Validation.IsValid)
}

func TestParseInvertedRange(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Meeting from 3 PM to 2 PM tomorrow"))

	// Both times are still populated; the inversion is reported, not fixed.
	require.NotNil(t, resp.Event.Start)
	require.NotNil(t, resp.Event.End)
	assert.True(t, resp.Event.End.Before(*resp.Event.Start))
	assert.False(t, resp.Validation.IsValid)
	assert.True(t, resp.Event.NeedsConfirmation)

	found := false
	for _, w := range resp.Warnings {
		if w.Message == "end time precedes start time" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseRelativeWeekday(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Lunch next Friday"))

	require.NotNil(t, resp.Event.Start)
	y, m, d := resp.Event.Start.Date()
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.October, m)
	assert.Equal(t, 17, d)
	assert.Equal(t, "Lunch", resp.Event.Title)
}

func TestParseMetadata(t *testing.T) {
	orch, _ := newTestOrchestrator(testConfig(), nil)

	resp := orch.Parse(context.Background(), parseReq("Team meeting tomorrow at 3 PM"))

	assert.Equal(t, models.ModeHybrid, resp.Metadata.Mode)
	assert.Equal(t, refTime, resp.Metadata.ReferenceTime)
	assert.False(t, resp.Metadata.Concurrent)
	assert.GreaterOrEqual(t, resp.Metadata.ProcessingTimeMs, int64(0))
}
