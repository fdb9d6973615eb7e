package patterns

import (
	"strings"
)

var fillerWords = map[string]bool{
	"on": true, "at": true, "in": true, "from": true, "to": true, "for": true,
	"the": true, "a": true, "an": true, "and": true, "of": true, "is": true,
	"will": true, "be": true,
}

var relativeWords = map[string]bool{
	"today": true, "tomorrow": true, "tonight": true, "yesterday": true,
}

// ExtractTitle pulls the most likely event title out of the text, returning
// the title, a confidence, and the matched span. An unusable text yields an
// empty title with zero confidence.
func (e *Engine) ExtractTitle(text string) (string, float64, string) {
	// Explicit "Subject:" style lines are the strongest signal.
	if m := e.subjectLine.FindStringSubmatch(text); m != nil {
		if t := e.CleanTitle(m[1]); len(t) >= 3 {
			return t, 0.95, m[0]
		}
	}

	// A quoted phrase usually names the event.
	if m := e.quotedPhrase.FindStringSubmatch(text); m != nil {
		if t := strings.TrimSpace(m[1]); len(t) >= 3 {
			return t, 0.9, m[0]
		}
	}

	// The leading clause of the first sentence, cut at the first
	// date/time token.
	sentence := text
	if idx := e.sentenceEnd.FindStringIndex(text); idx != nil {
		sentence = text[:idx[0]]
	}
	if t := e.CleanTitle(sentence); len(t) >= 3 {
		conf := 0.7
		if e.eventKeyword.MatchString(sentence) {
			conf = 0.85
		}
		return t, conf, sentence
	}

	// Last resort: the first few words, cleaned.
	words := strings.Fields(text)
	if len(words) > 8 {
		words = words[:8]
	}
	if t := e.CleanTitle(strings.Join(words, " ")); len(t) >= 3 {
		return t, 0.5, strings.Join(words, " ")
	}

	return "", 0, ""
}

// CleanTitle strips date/time pollution and dangling filler words from a
// candidate title. All title cleanup funnels through here so the pattern
// and backup strategies cannot disagree about what a clean title is.
func (e *Engine) CleanTitle(s string) string {
	if idx := e.dateTimeCut.FindStringIndex(s); idx != nil {
		if idx[0] > 2 {
			s = s[:idx[0]]
		} else {
			// The text leads with the date; remove the tokens instead.
			s = e.dateTimeCut.ReplaceAllString(s, " ")
		}
	}

	s = spaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " \t,.;:-–")

	// Peel dangling filler words off the tail.
	for {
		trimmed := e.fillerTail.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = strings.Trim(trimmed, " \t,.;:-–")
	}

	// And leading ones.
	words := strings.Fields(s)
	for len(words) > 0 && fillerWords[strings.ToLower(words[0])] {
		words = words[1:]
	}

	return strings.Join(words, " ")
}

var virtualNames = map[string]string{
	"zoom":            "Zoom",
	"google meet":     "Google Meet",
	"microsoft teams": "Microsoft Teams",
	"teams":           "Microsoft Teams",
	"webex":           "Webex",
	"skype":           "Skype",
	"hangouts":        "Hangouts",
	"online":          "Online",
	"virtual":         "Online",
}

// ExtractLocation pulls a venue, address, or meeting platform out of the text.
func (e *Engine) ExtractLocation(text string) (string, float64, string) {
	if m := e.address.FindString(text); m != "" {
		return m, 0.9, m
	}

	if m := e.venueKeyword.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[0]), 0.85, m[0]
	}

	if m := e.virtualVenue.FindStringSubmatch(text); m != nil {
		key := strings.ToLower(spaceRun.ReplaceAllString(m[1], " "))
		return virtualNames[key], 0.85, m[0]
	}

	for _, m := range e.atPlace.FindAllStringSubmatch(text, -1) {
		place := trimDateWords(m[1])
		if place == "" {
			continue
		}
		return place, 0.7, m[0]
	}

	return "", 0, ""
}

// trimDateWords drops leading or trailing month, weekday, and relative-day
// words from a captured phrase, and rejects phrases that were nothing else.
func trimDateWords(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && isDateWord(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isDateWord(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isDateWord(w string) bool {
	lw := strings.ToLower(strings.Trim(w, ",."))
	if _, ok := monthIndex[lw]; ok {
		return true
	}
	if _, ok := weekdayIndex[lw]; ok {
		return true
	}
	return relativeWords[lw]
}

// ExtractParticipants pulls attendee names and email addresses out of the text.
func (e *Engine) ExtractParticipants(text string) ([]string, float64, string) {
	var (
		people []string
		conf   float64
		span   string
	)
	seen := map[string]bool{}

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true
		people = append(people, name)
	}

	if m := e.attendeeLine.FindStringSubmatch(text); m != nil {
		for _, p := range splitNameList(m[1]) {
			add(p)
		}
		conf, span = 0.85, m[0]
	}

	for _, m := range e.email.FindAllString(text, -1) {
		add(m)
		if conf < 0.9 {
			conf, span = 0.9, m
		}
	}

	if m := e.withNames.FindStringSubmatch(text); m != nil {
		for _, p := range splitNameList(m[1]) {
			if p = trimDateWords(p); p != "" {
				add(p)
			}
		}
		if conf < 0.75 {
			conf, span = 0.75, m[0]
		}
	}

	if len(people) == 0 {
		return nil, 0, ""
	}
	return people, conf, span
}

func splitNameList(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	s = strings.ReplaceAll(s, ";", ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExtractRecurrence pulls a normalized recurrence phrase out of the text.
func (e *Engine) ExtractRecurrence(text string) (string, float64, string) {
	if m := e.everyExpr.FindStringSubmatch(text); m != nil {
		other := m[1] != ""
		unit := strings.ToLower(m[2])

		var rule string
		switch unit {
		case "day":
			rule = "daily"
			if other {
				rule = "every other day"
			}
		case "week":
			rule = "weekly"
			if other {
				rule = "biweekly"
			}
		case "month":
			rule = "monthly"
		case "year":
			rule = "yearly"
		case "weekday":
			rule = "every weekday"
		default: // a weekday name
			rule = "weekly on " + strings.ToUpper(unit[:1]) + unit[1:]
			if other {
				rule = "biweekly on " + strings.ToUpper(unit[:1]) + unit[1:]
			}
		}
		return rule, 0.9, m[0]
	}

	if m := e.frequencyWord.FindStringSubmatch(text); m != nil {
		rule := strings.ToLower(m[1])
		switch rule {
		case "fortnightly":
			rule = "biweekly"
		case "annually":
			rule = "yearly"
		}
		return rule, 0.85, m[0]
	}

	return "", 0, ""
}
