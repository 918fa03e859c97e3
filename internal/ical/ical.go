// Package ical renders events as iCalendar feeds for calendar subscriptions.
package ical

import (
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"

	"agenda.org/internal/event"
)

// Calendar renders one VEVENT per date stamp so recurring events subscribe
// cleanly without clients having to interpret the original rule.
func Calendar(events []*event.Event, baseURL string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//agenda.org//agenda-api//EN")

	for _, ev := range events {
		for _, st := range ev.Dates {
			entry := cal.AddEvent(fmt.Sprintf("%s-%s@agenda.org", ev.ID, st.ID))
			entry.SetSummary(ev.Name)
			entry.SetStartAt(st.Start.UTC())
			entry.SetEndAt(st.End.UTC())
			entry.SetDtStampTime(st.Start.UTC())
			if ev.Description != "" {
				entry.SetDescription(ev.Description)
			}
			if ev.Location != "" {
				entry.SetLocation(ev.Location)
			}
			if baseURL != "" && ev.ShortLink != "" {
				entry.SetURL(strings.TrimRight(baseURL, "/") + "/e/" + ev.ShortLink)
			}
		}
	}
	return cal.Serialize()
}
