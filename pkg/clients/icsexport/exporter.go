package icsexport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

const productID = "-//volunteer-planner//shift calendar//EN"

// Exporter writes one <uid>.ics file per calendar event
// Re-exporting an event overwrites the previous file
type Exporter struct {
	dir string
	now func() time.Time
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

func (e *Exporter) Export(ctx context.Context, event notify.CalendarEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.UID == "" {
		return fmt.Errorf("calendar event has no uid")
	}

	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("failed to create calendar directory: %w", err)
	}

	path := e.Path(event.UID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(Render(event, e.now())), 0644); err != nil {
		return fmt.Errorf("failed to write calendar file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move calendar file into place: %w", err)
	}
	return nil
}

// Path returns the file an event with uid is written to
func (e *Exporter) Path(uid string) string {
	return filepath.Join(e.dir, uid+".ics")
}

// Render serialises event as a single-event VCALENDAR
func Render(event notify.CalendarEvent, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)

	vevent := cal.AddEvent(event.UID)
	vevent.SetDtStampTime(stamp.UTC())
	vevent.SetStartAt(event.Start.UTC())
	vevent.SetEndAt(event.End.UTC())
	vevent.SetSummary(event.Title)
	if event.Description != "" {
		vevent.SetDescription(event.Description)
	}
	if event.Location != "" {
		vevent.SetLocation(event.Location)
	}

	return cal.Serialize()
}
