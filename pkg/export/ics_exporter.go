package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one weekly recurring class.
type CalendarEvent struct {
	UID         string
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
}

// ICSExporter renders recurring weekly events as an iCalendar feed.
type ICSExporter struct {
	productID string
	now       func() time.Time
}

// NewICSExporter constructs an ICS exporter.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//campus-timetable-api//timetable//EN"
	}
	return &ICSExporter{productID: productID, now: time.Now}
}

func (e *ICSExporter) ContentType() string { return "text/calendar" }
func (e *ICSExporter) Extension() string   { return "ics" }

// Render emits one VEVENT per class with a weekly RRULE, optionally bounded by until.
func (e *ICSExporter) Render(name string, events []CalendarEvent, until time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := e.now().UTC()
	rule := "FREQ=WEEKLY"
	if !until.IsZero() {
		rule += ";UNTIL=" + until.UTC().Format("20060102T150405Z")
	}
	for _, evt := range events {
		if !evt.End.After(evt.Start) {
			return nil, fmt.Errorf("event %s ends before it starts", evt.UID)
		}
		vevent := cal.AddEvent(evt.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(evt.Start)
		vevent.SetEndAt(evt.End)
		vevent.SetSummary(evt.Summary)
		if evt.Location != "" {
			vevent.SetLocation(evt.Location)
		}
		if evt.Description != "" {
			vevent.SetDescription(evt.Description)
		}
		vevent.SetProperty(ics.ComponentPropertyRrule, rule)
	}
	return []byte(cal.Serialize()), nil
}
