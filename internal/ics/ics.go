// Package ics renders parsed events as iCalendar (RFC 5545) documents.
package ics

import (
	"fmt"
	"strings"
	"time"

	"github.com/eventparse/chrono/internal/models"
	"github.com/google/uuid"
)

const (
	prodID       = "-//eventparse//chrono//EN"
	dateLayout   = "20060102"
	stampLayout  = "20060102T150405Z"
	localLayout  = "20060102T150405"
	defaultSpan  = time.Hour
	maxLineOctet = 75
)

// Render produces a VCALENDAR document containing one VEVENT per parsed
// event. Events without a start time are skipped; an event without an end
// gets a one hour window. All-day events use DATE values.
func Render(events []models.ParsedEvent, now time.Time) string {
	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:"+prodID)
	writeLine(&b, "CALSCALE:GREGORIAN")

	for _, ev := range events {
		if ev.Start == nil {
			continue
		}
		writeEvent(&b, ev, now)
	}

	writeLine(&b, "END:VCALENDAR")
	return b.String()
}

func writeEvent(b *strings.Builder, ev models.ParsedEvent, now time.Time) {
	start := *ev.Start
	end := start.Add(defaultSpan)
	if ev.End != nil {
		end = *ev.End
	}

	writeLine(b, "BEGIN:VEVENT")
	writeLine(b, "UID:"+uuid.New().String()+"@eventparse")
	writeLine(b, "DTSTAMP:"+now.UTC().Format(stampLayout))

	if ev.AllDay {
		writeLine(b, "DTSTART;VALUE=DATE:"+start.Format(dateLayout))
		writeLine(b, "DTEND;VALUE=DATE:"+end.Format(dateLayout))
	} else {
		writeLine(b, "DTSTART:"+start.Format(localLayout))
		writeLine(b, "DTEND:"+end.Format(localLayout))
	}

	title := ev.Title
	if title == "" {
		title = "Untitled event"
	}
	writeLine(b, "SUMMARY:"+escape(title))

	if ev.Location != "" {
		writeLine(b, "LOCATION:"+escape(ev.Location))
	}
	if ev.Description != "" {
		writeLine(b, "DESCRIPTION:"+escape(ev.Description))
	}
	for _, p := range ev.Participants {
		writeLine(b, "ATTENDEE;CN="+escape(p)+":invalid:nomail")
	}
	if rule := RecurrenceRule(ev.Recurrence); rule != "" {
		writeLine(b, "RRULE:"+rule)
	}

	writeLine(b, fmt.Sprintf("X-CHRONO-CONFIDENCE:%.2f", ev.ConfidenceScore))
	if ev.NeedsConfirmation {
		writeLine(b, "X-CHRONO-NEEDS-CONFIRMATION:TRUE")
	}
	writeLine(b, "END:VEVENT")
}

// RecurrenceRule maps a normalized recurrence phrase to an RRULE value.
// Unknown phrases map to nothing rather than a bad rule.
func RecurrenceRule(recurrence string) string {
	switch strings.ToLower(strings.TrimSpace(recurrence)) {
	case "":
		return ""
	case "daily":
		return "FREQ=DAILY"
	case "weekly":
		return "FREQ=WEEKLY"
	case "biweekly":
		return "FREQ=WEEKLY;INTERVAL=2"
	case "monthly":
		return "FREQ=MONTHLY"
	case "yearly":
		return "FREQ=YEARLY"
	case "every weekday":
		return "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR"
	}

	if day, ok := weeklyOn(recurrence); ok {
		return "FREQ=WEEKLY;BYDAY=" + day
	}
	return ""
}

var icalDays = map[string]string{
	"monday":    "MO",
	"tuesday":   "TU",
	"wednesday": "WE",
	"thursday":  "TH",
	"friday":    "FR",
	"saturday":  "SA",
	"sunday":    "SU",
}

func weeklyOn(recurrence string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(recurrence)), "weekly on ")
	if !ok {
		return "", false
	}
	day, ok := icalDays[strings.TrimSpace(rest)]
	return day, ok
}

// escape applies RFC 5545 text escaping.
func escape(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
		"\r", "",
	)
	return r.Replace(s)
}

// writeLine emits a content line with CRLF termination, folding lines
// longer than 75 octets with a leading space per RFC 5545.
func writeLine(b *strings.Builder, line string) {
	width := maxLineOctet
	for len(line) > width {
		cut := width
		// Never split inside a UTF-8 sequence.
		for cut > 1 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		width = maxLineOctet - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
