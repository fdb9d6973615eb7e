package patterns

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/models"
)

type textSpan struct {
	lo, hi int
}

func (s textSpan) overlaps(o textSpan) bool {
	return s.lo < o.hi && o.lo < s.hi
}

// dateMatch is one resolved calendar date found in the text.
type dateMatch struct {
	year, month, day int
	conf             float64
	category         models.Category
	span             string
	pos              textSpan
	issues           []string
}

var monthIndex = map[string]int{
	"january": 1, "jan": 1,
	"february": 2, "feb": 2,
	"march": 3, "mar": 3,
	"april": 4, "apr": 4,
	"may": 5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8,
	"september": 9, "sept": 9, "sep": 9,
	"october": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

var weekdayIndex = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// findDates returns every calendar date the batteries can resolve, highest
// confidence first. Malformed dates (month or day out of range) are
// discarded, not reported.
func (e *Engine) findDates(text string, ref time.Time) []dateMatch {
	var out []dateMatch
	var consumed []textSpan // weekday tokens claimed by cross-checks or prefixes

	addExplicit := func(y, mo, d int, conf float64, lo, hi int, issues []string) {
		if !validDate(y, mo, d) {
			return
		}
		dm := dateMatch{
			year: y, month: mo, day: d,
			conf:     conf,
			category: models.CategoryExplicit,
			span:     text[lo:hi],
			pos:      textSpan{lo, hi},
			issues:   issues,
		}
		e.crossCheckWeekday(text, &dm, &consumed)
		out = append(out, dm)
	}

	addRelative := func(t time.Time, conf float64, lo, hi int) {
		out = append(out, dateMatch{
			year: t.Year(), month: int(t.Month()), day: t.Day(),
			conf:     conf,
			category: models.CategoryRelative,
			span:     text[lo:hi],
			pos:      textSpan{lo, hi},
		})
	}

	// ISO 8601 dates.
	for _, m := range e.isoDate.FindAllStringSubmatchIndex(text, -1) {
		y := atoi(text[m[2]:m[3]])
		mo := atoi(text[m[4]:m[5]])
		d := atoi(text[m[6]:m[7]])
		addExplicit(y, mo, d, 0.97, m[0], m[1], nil)
	}

	// "March 1st, 2026" and "March 1".
	for _, m := range e.monthDayDate.FindAllStringSubmatchIndex(text, -1) {
		mo := monthIndex[strings.ToLower(text[m[2]:m[3]])]
		d := atoi(text[m[4]:m[5]])
		y, conf := ref.Year(), 0.88
		if m[6] >= 0 {
			y, conf = atoi(text[m[6]:m[7]]), 0.95
		}
		addExplicit(y, mo, d, conf, m[0], m[1], nil)
	}

	// "1st of March" and "1 March 2026".
	for _, m := range e.dayMonthDate.FindAllStringSubmatchIndex(text, -1) {
		d := atoi(text[m[2]:m[3]])
		mo := monthIndex[strings.ToLower(text[m[4]:m[5]])]
		y, conf := ref.Year(), 0.88
		if m[6] >= 0 {
			y, conf = atoi(text[m[6]:m[7]]), 0.95
		}
		addExplicit(y, mo, d, conf, m[0], m[1], nil)
	}

	// "3/4/2026" and "3/4", month-first.
	for _, m := range e.numericDate.FindAllStringSubmatchIndex(text, -1) {
		mo := atoi(text[m[2]:m[3]])
		d := atoi(text[m[4]:m[5]])
		y, conf := ref.Year(), 0.85
		if m[6] >= 0 {
			y, conf = expandYear(atoi(text[m[6]:m[7]])), 0.9
		}
		var issues []string
		if mo <= 12 && d <= 12 && mo != d {
			// Both readings are valid dates; keep the alternate on record.
			issues = append(issues, fmt.Sprintf(
				"ambiguous numeric date %q: read as %s; could be %s",
				text[m[0]:m[1]],
				monthDayLabel(mo, d),
				monthDayLabel(d, mo),
			))
			conf -= 0.05
		}
		addExplicit(y, mo, d, conf, m[0], m[1], issues)
	}

	// "today", "tomorrow", "day after tomorrow".
	for _, m := range e.relativeDay.FindAllStringSubmatchIndex(text, -1) {
		offset := 0
		switch strings.ToLower(text[m[2]:m[3]]) {
		case "tomorrow":
			offset = 1
		case "day after tomorrow":
			offset = 2
		}
		addRelative(ref.AddDate(0, 0, offset), 0.9, m[0], m[1])
	}

	// "in 3 days", "in 2 weeks".
	for _, m := range e.inNDays.FindAllStringSubmatchIndex(text, -1) {
		n := atoi(text[m[2]:m[3]])
		if strings.HasPrefix(strings.ToLower(text[m[4]:m[5]]), "week") {
			n *= 7
		}
		addRelative(ref.AddDate(0, 0, n), 0.85, m[0], m[1])
	}

	// "3 days from now".
	for _, m := range e.nDaysFromNow.FindAllStringSubmatchIndex(text, -1) {
		n := atoi(text[m[2]:m[3]])
		if strings.HasPrefix(strings.ToLower(text[m[4]:m[5]]), "week") {
			n *= 7
		}
		addRelative(ref.AddDate(0, 0, n), 0.85, m[0], m[1])
	}

	// "next Friday", "this Monday".
	for _, m := range e.prefixWeekday.FindAllStringSubmatchIndex(text, -1) {
		name := strings.ToLower(text[m[2]:m[3]])
		delta := int(weekdayIndex[name]-ref.Weekday()+7) % 7
		prefix := strings.ToLower(text[m[0]:m[1]])
		switch {
		case strings.HasPrefix(prefix, "next"):
			// "next Friday" names the Friday of the following week,
			// even when one still occurs this week.
			delta += 7
		case delta == 0 && !strings.HasPrefix(prefix, "this"):
			delta = 7
		}
		consumed = append(consumed, textSpan{m[0], m[1]})
		addRelative(ref.AddDate(0, 0, delta), 0.82, m[0], m[1])
	}

	// A bare weekday name, unless another battery already claimed it.
	for _, m := range e.bareWeekday.FindAllStringSubmatchIndex(text, -1) {
		pos := textSpan{m[0], m[1]}
		if overlapsAny(pos, consumed) {
			continue
		}
		name := strings.ToLower(text[m[2]:m[3]])
		delta := int(weekdayIndex[name]-ref.Weekday()+7) % 7
		if delta == 0 {
			delta = 7
		}
		addRelative(ref.AddDate(0, 0, delta), 0.7, m[0], m[1])
	}

	sortByConf(out, func(d dateMatch) float64 { return d.conf })
	return out
}

// crossCheckWeekday looks for a weekday name adjacent to an explicit date
// and compares it against the computed date. A mismatch is reported, never
// silently corrected.
func (e *Engine) crossCheckWeekday(text string, dm *dateMatch, consumed *[]textSpan) {
	lo := dm.pos.lo - 16
	if lo < 0 {
		lo = 0
	}
	hi := dm.pos.hi + 16
	if hi > len(text) {
		hi = len(text)
	}

	m := e.weekdayNear.FindStringSubmatchIndex(text[lo:hi])
	if m == nil {
		return
	}
	*consumed = append(*consumed, textSpan{lo + m[0], lo + m[1]})

	name := strings.ToLower(text[lo+m[2] : lo+m[3]])
	stated := weekdayIndex[name]
	computed := time.Date(dm.year, time.Month(dm.month), dm.day, 0, 0, 0, 0, time.UTC).Weekday()

	if stated == computed {
		if dm.conf < 0.97 {
			dm.conf = minf(dm.conf+0.02, 0.97)
		}
		return
	}

	dm.conf = 0.7
	dm.issues = append(dm.issues, fmt.Sprintf(
		"stated weekday %s does not match computed date %s (%s)",
		strings.ToUpper(name[:1])+name[1:],
		monthDayLabel(dm.month, dm.day),
		computed,
	))
}

func validDate(y, mo, d int) bool {
	if mo < 1 || mo > 12 || d < 1 || d > 31 || y < 1 || y > 9999 {
		return false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	return int(t.Month()) == mo && t.Day() == d
}

func expandYear(y int) int {
	if y < 100 {
		return 2000 + y
	}
	return y
}

func monthDayLabel(mo, d int) string {
	return time.Month(mo).String() + " " + strconv.Itoa(d)
}

func overlapsAny(s textSpan, spans []textSpan) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
