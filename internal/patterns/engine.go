// Package patterns implements the regex-based date/time extraction engine.
//
// The engine compiles its pattern batteries once at construction and holds
// no mutable state afterwards, so a single instance is shared across
// concurrent requests. Relative expressions resolve against an injected
// reference time, never the wall clock.
package patterns

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/models"
)

// defaultEventLength is assumed when a start time is found with no explicit
// end and no duration phrase.
const defaultEventLength = time.Hour

// Engine holds the compiled pattern batteries.
type Engine struct {
	// dates
	isoDate       *regexp.Regexp
	monthDayDate  *regexp.Regexp
	dayMonthDate  *regexp.Regexp
	numericDate   *regexp.Regexp
	relativeDay   *regexp.Regexp
	inNDays       *regexp.Regexp
	nDaysFromNow  *regexp.Regexp
	prefixWeekday *regexp.Regexp
	bareWeekday   *regexp.Regexp
	weekdayNear   *regexp.Regexp

	// times
	clock12 *regexp.Regexp
	clock24 *regexp.Regexp
	namedT  *regexp.Regexp
	ranges  []*regexp.Regexp

	// durations
	durNumeric *regexp.Regexp
	durLong    *regexp.Regexp
	durWord    *regexp.Regexp

	// titles and other fields
	subjectLine  *regexp.Regexp
	quotedPhrase *regexp.Regexp
	eventKeyword *regexp.Regexp
	sentenceEnd  *regexp.Regexp
	dateTimeCut  *regexp.Regexp
	fillerTail   *regexp.Regexp

	address      *regexp.Regexp
	venueKeyword *regexp.Regexp
	virtualVenue *regexp.Regexp
	atPlace      *regexp.Regexp

	email        *regexp.Regexp
	withNames    *regexp.Regexp
	attendeeLine *regexp.Regexp

	everyExpr     *regexp.Regexp
	frequencyWord *regexp.Regexp
}

// NewEngine compiles all pattern batteries.
func NewEngine() *Engine {
	// shared fragments
	months := `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	weekdays := `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	timeFrag := `(\d{1,2})(?::([0-5]\d))?\s*([AaPp][Mm])?`

	e := &Engine{
		isoDate:      regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`),
		monthDayDate: regexp.MustCompile(`(?i)\b(` + months + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:\s*,?\s*(\d{4}))?\b`),
		dayMonthDate: regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + months + `)\b(?:\s*,?\s*(\d{4}))?`),
		numericDate:  regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`),

		relativeDay:   regexp.MustCompile(`(?i)\b(day after tomorrow|tomorrow|today|tonight)\b`),
		inNDays:       regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(day|week)s?\b`),
		nDaysFromNow:  regexp.MustCompile(`(?i)\b(\d+)\s+(day|week)s?\s+from\s+(?:now|today)\b`),
		prefixWeekday: regexp.MustCompile(`(?i)\b(?:next|this|coming)\s+(` + weekdays + `)\b`),
		bareWeekday:   regexp.MustCompile(`(?i)\b(` + weekdays + `)\b`),
		weekdayNear:   regexp.MustCompile(`(?i)(` + weekdays + `)`),

		clock12: regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s*(AM|PM)\b`),
		clock24: regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`),
		namedT:  regexp.MustCompile(`(?i)\b(noon|midday|midnight)\b`),
		ranges: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfrom\s+` + timeFrag + `\s+(?:to|until|till|through)\s+` + timeFrag),
			regexp.MustCompile(`(?i)\bbetween\s+` + timeFrag + `\s+and\s+` + timeFrag),
			regexp.MustCompile(`(?i)\b` + timeFrag + `\s*(?:-|–|to)\s*` + timeFrag),
		},

		durNumeric: regexp.MustCompile(`(?i)\bfor\s+(\d+(?:\.\d+)?)\s*(hours?|hrs?|minutes?|mins?)\b`),
		durLong:    regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(hours?|hrs?|minutes?|mins?)\s+long\b`),
		durWord:    regexp.MustCompile(`(?i)\b(?:for\s+)?(half\s+an?\s+hour|an?\s+hour\s+and\s+a\s+half|for\s+an?\s+hour)\b`),

		subjectLine:  regexp.MustCompile(`(?im)^\s*(?:subject|title|event|re)\s*:\s*(.+)$`),
		quotedPhrase: regexp.MustCompile(`"([^"]{3,80})"`),
		eventKeyword: regexp.MustCompile(`(?i)^\s*(?:the\s+)?(meeting|lunch|dinner|breakfast|coffee|call|appointment|workshop|review|standup|sync|interview|demo|session|party|conference|class|training|checkup|check-in)\b`),
		sentenceEnd:  regexp.MustCompile(`[.!?\n]`),
		dateTimeCut: regexp.MustCompile(`(?i)\b(on|at|from|until|till|by|tomorrow|today|tonight|next|this\s+(?:` + weekdays + `)|every|all\s+day|` +
			months + `|` + weekdays + `)\b|\b\d{1,2}[:/]\d|\b\d{1,2}\s*(?:AM|PM)\b`),
		fillerTail: regexp.MustCompile(`(?i)\s+(on|at|in|from|to|for|the|a|an|is|will|be|of|and)\s*$`),

		address:      regexp.MustCompile(`\b\d+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\s+(?:Street|St\.?|Avenue|Ave\.?|Boulevard|Blvd\.?|Road|Rd\.?|Drive|Dr\.?|Lane|Ln\.?|Way|Place|Pl\.?)\b`),
		venueKeyword: regexp.MustCompile(`(?i)\b((?:conference\s+)?room|rm\.?|suite|hall|building|floor|office|auditorium|cafeteria|lobby)\s*#?\s*([A-Za-z0-9-]+)\b`),
		virtualVenue: regexp.MustCompile(`(?i)\b(zoom|google\s+meet|microsoft\s+teams|teams|webex|skype|hangouts|online|virtual)\b`),
		atPlace:      regexp.MustCompile(`\b(?:at|in)\s+(?:the\s+)?([A-Z][\w'&.-]*(?:\s+[A-Z][\w'&.-]*){0,3})`),

		email:        regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		withNames:    regexp.MustCompile(`\bwith\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?(?:(?:\s*,\s*|\s+and\s+)[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)*)`),
		attendeeLine: regexp.MustCompile(`(?im)^\s*(?:attendees|participants|invitees|guests)\s*:\s*(.+)$`),

		everyExpr:     regexp.MustCompile(`(?i)\bevery\s+(other\s+)?(day|week|month|year|weekday|` + weekdays + `)s?\b`),
		frequencyWord: regexp.MustCompile(`(?i)\b(daily|weekly|biweekly|fortnightly|monthly|quarterly|yearly|annually)\b`),
	}
	return e
}

var (
	spaceRun = regexp.MustCompile(`\s+`)
	meridiem = regexp.MustCompile(`(?i)(\d)\s*([ap])\.?\s?m\b\.?`)
)

// Clean normalizes whitespace and AM/PM spelling variants ("a.m", "A M").
// It is a pure string transform applied before any extraction.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = meridiem.ReplaceAllStringFunc(text, func(m string) string {
		sub := meridiem.FindStringSubmatch(m)
		return sub[1] + " " + strings.ToUpper(sub[2]) + "M"
	})
	return text
}

// ExtractDateTime scans text for date/time structure and returns candidates
// ordered time-range > date+time > date-only, then durations, with the
// highest confidence first within each group. No match yields an empty slice.
func (e *Engine) ExtractDateTime(text string, ref time.Time) []models.ExtractionCandidate {
	zone := ref.Location()

	dates := e.findDates(text, ref)
	ranges := e.findRanges(text)
	times := e.findTimes(text, rangeSpans(ranges))
	durs := e.findDurations(text)

	var best *dateMatch
	if len(dates) > 0 {
		best = &dates[0]
	}

	var dur *durationMatch
	if len(durs) > 0 {
		dur = &durs[0]
	}

	var cands []models.ExtractionCandidate

	// Time ranges bind tighter than anything else.
	for i := range ranges {
		cands = append(cands, e.rangeCandidate(&ranges[i], best, ref, zone))
	}

	// Date plus a standalone time.
	if best != nil && len(times) > 0 {
		cands = append(cands, e.dateTimeCandidate(best, &times[0], dur, zone))
	}

	// Time with no date at all: assume the reference day.
	if best == nil && len(times) > 0 && len(ranges) == 0 {
		cands = append(cands, e.assumedDateCandidate(&times[0], dur, ref, zone))
	}

	// Every found date also yields an all-day interpretation.
	for i := range dates {
		cands = append(cands, allDayCandidate(&dates[i], zone))
	}

	for i := range durs {
		cands = append(cands, models.ExtractionCandidate{
			Kind:        models.CandidateDuration,
			Duration:    durs[i].d,
			Confidence:  durs[i].conf,
			MatchedText: durs[i].span,
			Category:    models.CategoryExplicit,
		})
	}

	return cands
}

func (e *Engine) rangeCandidate(r *rangeMatch, d *dateMatch, ref time.Time, zone *time.Location) models.ExtractionCandidate {
	var (
		y, mo, da int
		conf      float64
		cat       models.Category
		issues    []string
		span      = r.span
	)

	if d != nil {
		y, mo, da = d.year, d.month, d.day
		conf = minf(r.conf, d.conf)
		cat = d.category
		issues = append(issues, d.issues...)
		span = span + " " + d.span
	} else {
		y, mo, da = ref.Year(), int(ref.Month()), ref.Day()
		conf = minf(r.conf, assumedDateCap)
		cat = models.CategoryInferred
		issues = append(issues, issueDateAssumed)
	}

	start := time.Date(y, time.Month(mo), da, r.start.hour, r.start.minute, 0, 0, zone)
	end := time.Date(y, time.Month(mo), da, r.end.hour, r.end.minute, 0, 0, zone)

	if !end.After(start) {
		if r.end.hour < 12 {
			// Overnight range: roll the end date forward.
			end = end.AddDate(0, 0, 1)
		} else {
			issues = append(issues, "end time precedes start time")
		}
	}

	return models.ExtractionCandidate{
		Kind:        models.CandidateTimeRange,
		Start:       start,
		End:         end,
		Confidence:  conf,
		MatchedText: span,
		Category:    cat,
		Issues:      issues,
	}
}

func (e *Engine) dateTimeCandidate(d *dateMatch, t *clockMatch, dur *durationMatch, zone *time.Location) models.ExtractionCandidate {
	start := time.Date(d.year, time.Month(d.month), d.day, t.hour, t.minute, 0, 0, zone)

	length := defaultEventLength
	span := d.span + " " + t.span
	if dur != nil {
		length = dur.d
		span += " " + dur.span
	}

	return models.ExtractionCandidate{
		Kind:        models.CandidateDateTime,
		Start:       start,
		End:         start.Add(length),
		Confidence:  minf(d.conf, t.conf),
		MatchedText: span,
		Category:    d.category,
		Issues:      d.issues,
	}
}

func (e *Engine) assumedDateCandidate(t *clockMatch, dur *durationMatch, ref time.Time, zone *time.Location) models.ExtractionCandidate {
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), t.hour, t.minute, 0, 0, zone)

	length := defaultEventLength
	if dur != nil {
		length = dur.d
	}

	return models.ExtractionCandidate{
		Kind:        models.CandidateDateTime,
		Start:       start,
		End:         start.Add(length),
		Confidence:  minf(t.conf, assumedDateCap),
		MatchedText: t.span,
		Category:    models.CategoryInferred,
		Issues:      []string{issueDateAssumed},
	}
}

func allDayCandidate(d *dateMatch, zone *time.Location) models.ExtractionCandidate {
	start := time.Date(d.year, time.Month(d.month), d.day, 0, 0, 0, 0, zone)
	return models.ExtractionCandidate{
		Kind:        models.CandidateDate,
		Start:       start,
		End:         start.AddDate(0, 0, 1),
		AllDay:      true,
		Confidence:  d.conf,
		MatchedText: d.span,
		Category:    d.category,
		Issues:      d.issues,
	}
}

// assumedDateCap bounds the confidence of any candidate whose date was
// guessed from the reference time rather than found in the text.
const assumedDateCap = 0.6

const issueDateAssumed = "date assumed from reference time"

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func sortByConf[T any](items []T, conf func(T) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		return conf(items[i]) > conf(items[j])
	})
}
