package patterns

import (
	"testing"
	"time"

	"github.com/eventparse/chrono/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ref is a Wednesday afternoon; relative expressions resolve against it.
var ref = time.Date(2025, 10, 8, 14, 30, 0, 0, time.UTC)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "Meeting  at\t3 PM", "Meeting at 3 PM"},
		{"normalizes compact meridiem", "call at 3pm", "call at 3 PM"},
		{"normalizes dotted meridiem", "starts 9 a.m. sharp", "starts 9 AM sharp"},
		{"trims ends", "  lunch tomorrow  ", "lunch tomorrow"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestExtractDateTimeRelativeDay(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Team meeting tomorrow at 3 PM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, models.CandidateDateTime, c.Kind)
	assert.Equal(t, time.Date(2025, 10, 9, 15, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, time.Date(2025, 10, 9, 16, 0, 0, 0, time.UTC), c.End, "default length fills in the end")
	assert.Equal(t, models.CategoryRelative, c.Category)
	assert.InDelta(t, 0.9, c.Confidence, 0.001)
}

func TestExtractDateTimeRangeWithWeekday(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Lunch on Friday from 12:00 to 1:30 PM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, models.CandidateTimeRange, c.Kind)
	assert.Equal(t, time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, time.Date(2025, 10, 10, 13, 30, 0, 0, time.UTC), c.End)
	// A bare weekday is the weakest date signal, and the range inherits it.
	assert.InDelta(t, 0.7, c.Confidence, 0.001)
}

func TestExtractDateTimeWeekdayMismatch(t *testing.T) {
	e := NewEngine()

	// October 10, 2025 is a Friday, not a Thursday.
	cands := e.ExtractDateTime("Meeting on Thursday, October 10, 2025 at 2 PM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, time.Date(2025, 10, 10, 14, 0, 0, 0, time.UTC), c.Start)
	assert.InDelta(t, 0.7, c.Confidence, 0.001, "mismatch lowers confidence, never corrects the date")
	require.NotEmpty(t, c.Issues)
	assert.Contains(t, c.Issues[0], "stated weekday Thursday")
}

func TestExtractDateTimeWeekdayAgreement(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Meeting on Friday, October 10, 2025", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC), c.Start)
	assert.Empty(t, c.Issues)
	assert.InDelta(t, 0.97, c.Confidence, 0.001, "agreement nudges confidence up")
}

func TestExtractDateTimeAmbiguousNumericDate(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Meeting on 3/4", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, models.CandidateDate, c.Kind)
	assert.True(t, c.AllDay)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), c.Start, "month-first reading wins")
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), c.End)
	require.NotEmpty(t, c.Issues)
	assert.Contains(t, c.Issues[0], "ambiguous numeric date")
	assert.Contains(t, c.Issues[0], "April 3", "the alternate reading is on record")
}

func TestExtractDateTimeUnambiguousNumericDate(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Deadline on 3/25/2026", ref)
	require.NotEmpty(t, cands)
	assert.Equal(t, time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC), cands[0].Start)
	assert.Empty(t, cands[0].Issues)
}

func TestExtractDateTimeAssumedDate(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Call at 4 PM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, time.Date(2025, 10, 8, 16, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, models.CategoryInferred, c.Category)
	assert.LessOrEqual(t, c.Confidence, 0.6, "a guessed date caps confidence")
	assert.Contains(t, c.Issues, "date assumed from reference time")
}

func TestExtractDateTimeOvernightRange(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Party tomorrow from 10 PM to 1 AM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, time.Date(2025, 10, 9, 22, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, time.Date(2025, 10, 10, 1, 0, 0, 0, time.UTC), c.End, "end rolls to the next day")
}

func TestExtractDateTimeInvertedRange(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Meeting from 3 PM to 2 PM", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.False(t, c.End.After(c.Start))
	assert.Contains(t, c.Issues, "end time precedes start time")
}

func TestExtractDateTimeDurationSynthesis(t *testing.T) {
	e := NewEngine()

	cands := e.ExtractDateTime("Standup tomorrow at 9 AM for 30 minutes", ref)
	require.NotEmpty(t, cands)

	c := cands[0]
	assert.Equal(t, time.Date(2025, 10, 9, 9, 0, 0, 0, time.UTC), c.Start)
	assert.Equal(t, time.Date(2025, 10, 9, 9, 30, 0, 0, time.UTC), c.End)

	var dur *models.ExtractionCandidate
	for i := range cands {
		if cands[i].Kind == models.CandidateDuration {
			dur = &cands[i]
			break
		}
	}
	require.NotNil(t, dur)
	assert.Equal(t, 30*time.Minute, dur.Duration)
	assert.InDelta(t, 0.9, dur.Confidence, 0.001)
}

func TestExtractDateTimeRelativeOffsets(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		text string
		want time.Time
	}{
		{"review in 2 weeks", time.Date(2025, 10, 22, 0, 0, 0, 0, time.UTC)},
		{"review in 3 days", time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC)},
		{"review 5 days from now", time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)},
		{"review next Wednesday", time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)},
		// "next Friday" skips this week's Friday for the following week's.
		{"review next Friday", time.Date(2025, 10, 17, 0, 0, 0, 0, time.UTC)},
		{"review this Friday", time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)},
		{"review on Friday", time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)},
		{"review day after tomorrow", time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cands := e.ExtractDateTime(tt.text, ref)
			require.NotEmpty(t, cands)
			assert.Equal(t, tt.want, cands[0].Start)
			assert.Equal(t, models.CategoryRelative, cands[0].Category)
		})
	}
}

func TestExtractDateTimeNoMatch(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.ExtractDateTime("nothing temporal about this sentence", ref))
}

func TestExtractDateTimeMalformedDateDiscarded(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.ExtractDateTime("see section 13/45 of the manual", ref))
}

func TestExtractTitle(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		text     string
		want     string
		wantConf float64
	}{
		{"subject line", "Subject: Q3 Planning\nLet's meet tomorrow", "Q3 Planning", 0.95},
		{"quoted phrase", `Join us for "Spring Gala" on Friday`, "Spring Gala", 0.9},
		{"event keyword clause", "Lunch with Sarah tomorrow at noon", "Lunch with Sarah", 0.85},
		{"plain clause", "Dentist appointment on March 3 at 10 AM", "Dentist appointment", 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, conf, _ := e.ExtractTitle(tt.text)
			assert.Equal(t, tt.want, title)
			assert.InDelta(t, tt.wantConf, conf, 0.001)
		})
	}
}

func TestCleanTitle(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		in   string
		want string
	}{
		{"Team sync tomorrow at 3 PM", "Team sync"},
		{"Budget review on March 5", "Budget review"},
		{"Dinner at", "Dinner"},
		{"   spaced   out   title  ", "spaced out title"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.CleanTitle(tt.in))
	}
}

func TestExtractLocation(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name     string
		text     string
		want     string
		wantConf float64
	}{
		{"street address", "Meet at 123 Main Street tomorrow", "123 Main Street", 0.9},
		{"venue keyword", "Sync in Conference Room B at 2", "Conference Room B", 0.85},
		{"virtual venue", "Call on Zoom at 3 PM", "Zoom", 0.85},
		{"preposition place", "Dinner at Luigi's Bistro tonight", "Luigi's Bistro", 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, conf, _ := e.ExtractLocation(tt.text)
			assert.Equal(t, tt.want, loc)
			assert.InDelta(t, tt.wantConf, conf, 0.001)
		})
	}

	loc, conf, _ := e.ExtractLocation("no venue mentioned here")
	assert.Empty(t, loc)
	assert.Zero(t, conf)
}

func TestExtractParticipants(t *testing.T) {
	e := NewEngine()

	t.Run("with names", func(t *testing.T) {
		people, conf, _ := e.ExtractParticipants("Lunch with Sarah and Mike Jones")
		assert.Equal(t, []string{"Sarah", "Mike Jones"}, people)
		assert.InDelta(t, 0.75, conf, 0.001)
	})

	t.Run("attendee line", func(t *testing.T) {
		people, conf, _ := e.ExtractParticipants("Attendees: Alice, Bob\nMeeting at 3 PM")
		assert.Equal(t, []string{"Alice", "Bob"}, people)
		assert.InDelta(t, 0.85, conf, 0.001)
	})

	t.Run("email", func(t *testing.T) {
		people, conf, _ := e.ExtractParticipants("Invite john.doe@example.com to the demo")
		assert.Equal(t, []string{"john.doe@example.com"}, people)
		assert.InDelta(t, 0.9, conf, 0.001)
	})

	t.Run("none", func(t *testing.T) {
		people, _, _ := e.ExtractParticipants("solo focus time")
		assert.Empty(t, people)
	})
}

func TestExtractRecurrence(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		text string
		want string
	}{
		{"standup every day at 9", "daily"},
		{"sync every other week", "biweekly"},
		{"yoga every Tuesday", "weekly on Tuesday"},
		{"report due every month", "monthly"},
		{"gym every weekday", "every weekday"},
		{"newsletter goes out weekly", "weekly"},
		{"billing is fortnightly", "biweekly"},
		{"renewal annually", "yearly"},
		{"one-off meeting", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			rule, _, _ := e.ExtractRecurrence(tt.text)
			assert.Equal(t, tt.want, rule)
		})
	}
}
