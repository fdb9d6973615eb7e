package patterns

import (
	"strings"
)

// clockMatch is one time-of-day found in the text, already in 24h form.
type clockMatch struct {
	hour, minute int
	conf         float64
	span         string
	pos          textSpan
}

// rangeMatch is a start/end time pair from a single range expression.
type rangeMatch struct {
	start, end clockMatch
	conf       float64
	span       string
	pos        textSpan
}

// findTimes returns standalone times of day, highest confidence first.
// Matches inside the given spans (already claimed by range expressions)
// are skipped.
func (e *Engine) findTimes(text string, exclude []textSpan) []clockMatch {
	var out []clockMatch
	var claimed []textSpan
	claimed = append(claimed, exclude...)

	add := func(hour, minute int, conf float64, lo, hi int) {
		pos := textSpan{lo, hi}
		if overlapsAny(pos, claimed) {
			return
		}
		claimed = append(claimed, pos)
		out = append(out, clockMatch{hour: hour, minute: minute, conf: conf, span: text[lo:hi], pos: pos})
	}

	// 12-hour clock with meridiem.
	for _, m := range e.clock12.FindAllStringSubmatchIndex(text, -1) {
		h := atoi(text[m[2]:m[3]])
		if h < 1 || h > 12 {
			continue
		}
		minute := 0
		conf := 0.9
		if m[4] >= 0 {
			minute = atoi(text[m[4]:m[5]])
			conf = 0.93
		}
		h = to24h(h, text[m[6]:m[7]])
		add(h, minute, conf, m[0], m[1])
	}

	// 24-hour clock.
	for _, m := range e.clock24.FindAllStringSubmatchIndex(text, -1) {
		add(atoi(text[m[2]:m[3]]), atoi(text[m[4]:m[5]]), 0.85, m[0], m[1])
	}

	// "noon", "midnight".
	for _, m := range e.namedT.FindAllStringSubmatchIndex(text, -1) {
		switch strings.ToLower(text[m[2]:m[3]]) {
		case "noon", "midday":
			add(12, 0, 0.85, m[0], m[1])
		case "midnight":
			add(0, 0, 0.8, m[0], m[1])
		}
	}

	sortByConf(out, func(c clockMatch) float64 { return c.conf })
	return out
}

// findRanges returns start/end time pairs from range expressions such as
// "from 3 PM to 5 PM", "between 9 and 10 AM", or "3-5pm".
func (e *Engine) findRanges(text string) []rangeMatch {
	var out []rangeMatch
	var claimed []textSpan

	for _, re := range e.ranges {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			pos := textSpan{m[0], m[1]}
			if overlapsAny(pos, claimed) {
				continue
			}

			r, ok := resolveRange(text, m)
			if !ok {
				continue
			}
			r.span = text[m[0]:m[1]]
			r.pos = pos

			claimed = append(claimed, pos)
			out = append(out, r)
		}
	}

	sortByConf(out, func(r rangeMatch) float64 { return r.conf })
	return out
}

// resolveRange converts the six capture groups of a range expression into
// concrete 24h times, inheriting a missing meridiem from the other side.
func resolveRange(text string, m []int) (rangeMatch, bool) {
	sHour := atoi(text[m[2]:m[3]])
	sMin, sHasMin := groupInt(text, m, 2)
	sMer := groupStr(text, m, 3)

	eHour := atoi(text[m[8]:m[9]])
	eMin, eHasMin := groupInt(text, m, 5)
	eMer := groupStr(text, m, 6)

	conf := 0.92
	switch {
	case sMer == "" && eMer == "":
		// Without any meridiem a bare pair like "3-5" is too ambiguous;
		// only accept 24h-style times with minutes.
		if !sHasMin || !eHasMin {
			return rangeMatch{}, false
		}
		if sHour > 23 || eHour > 23 {
			return rangeMatch{}, false
		}
	case sMer == "":
		if sHour < 1 || sHour > 12 || eHour < 1 || eHour > 12 {
			return rangeMatch{}, false
		}
		sHour = to24h(sHour, eMer)
		eHour = to24h(eHour, eMer)
		conf = 0.88
		if sHour >= eHour && flip12(sHour) < eHour {
			sHour = flip12(sHour)
			conf = 0.85
		}
	case eMer == "":
		if sHour < 1 || sHour > 12 || eHour < 1 || eHour > 12 {
			return rangeMatch{}, false
		}
		eHour = to24h(eHour, sMer)
		sHour = to24h(sHour, sMer)
		conf = 0.88
		if eHour <= sHour && flip12(eHour) > sHour {
			eHour = flip12(eHour)
			conf = 0.85
		}
	default:
		if sHour < 1 || sHour > 12 || eHour < 1 || eHour > 12 {
			return rangeMatch{}, false
		}
		sHour = to24h(sHour, sMer)
		eHour = to24h(eHour, eMer)
	}

	return rangeMatch{
		start: clockMatch{hour: sHour, minute: sMin},
		end:   clockMatch{hour: eHour, minute: eMin},
		conf:  conf,
	}, true
}

func rangeSpans(ranges []rangeMatch) []textSpan {
	spans := make([]textSpan, len(ranges))
	for i, r := range ranges {
		spans[i] = r.pos
	}
	return spans
}

// to24h converts a 12-hour value using a meridiem string; an empty meridiem
// leaves the hour untouched.
func to24h(hour int, mer string) int {
	switch strings.ToLower(mer) {
	case "pm":
		if hour != 12 {
			return hour + 12
		}
	case "am":
		if hour == 12 {
			return 0
		}
	}
	return hour
}

// flip12 moves an hour to the opposite half of the day.
func flip12(hour int) int {
	return (hour + 12) % 24
}

// groupInt reads an optional numeric capture group from a submatch index slice.
func groupInt(text string, m []int, group int) (int, bool) {
	lo, hi := m[2*group], m[2*group+1]
	if lo < 0 {
		return 0, false
	}
	return atoi(text[lo:hi]), true
}

func groupStr(text string, m []int, group int) string {
	lo, hi := m[2*group], m[2*group+1]
	if lo < 0 {
		return ""
	}
	return text[lo:hi]
}
