package patterns

import (
	"strconv"
	"strings"
	"time"
)

// durationMatch is one event-length phrase found in the text.
type durationMatch struct {
	d    time.Duration
	conf float64
	span string
	pos  textSpan
}

// findDurations returns duration phrases ("for 2 hours", "45 minutes long",
// "half an hour"), highest confidence first.
func (e *Engine) findDurations(text string) []durationMatch {
	var out []durationMatch
	var claimed []textSpan

	add := func(d time.Duration, conf float64, lo, hi int) {
		pos := textSpan{lo, hi}
		if d <= 0 || overlapsAny(pos, claimed) {
			return
		}
		claimed = append(claimed, pos)
		out = append(out, durationMatch{d: d, conf: conf, span: text[lo:hi], pos: pos})
	}

	for _, m := range e.durNumeric.FindAllStringSubmatchIndex(text, -1) {
		add(scaleUnit(text[m[2]:m[3]], text[m[4]:m[5]]), 0.9, m[0], m[1])
	}

	for _, m := range e.durLong.FindAllStringSubmatchIndex(text, -1) {
		add(scaleUnit(text[m[2]:m[3]], text[m[4]:m[5]]), 0.85, m[0], m[1])
	}

	for _, m := range e.durWord.FindAllStringSubmatchIndex(text, -1) {
		phrase := strings.ToLower(text[m[2]:m[3]])
		switch {
		case strings.Contains(phrase, "half an") && !strings.Contains(phrase, "and a half"):
			add(30*time.Minute, 0.8, m[0], m[1])
		case strings.Contains(phrase, "and a half"):
			add(90*time.Minute, 0.85, m[0], m[1])
		default: // "for an hour"
			add(time.Hour, 0.85, m[0], m[1])
		}
	}

	sortByConf(out, func(d durationMatch) float64 { return d.conf })
	return out
}

func scaleUnit(amount, unit string) time.Duration {
	n, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(unit), "h") {
		return time.Duration(n * float64(time.Hour))
	}
	return time.Duration(n * float64(time.Minute))
}
