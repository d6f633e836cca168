package icsexport

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/volunteer-planner/pkg/core/notify"
)

var testEvent = notify.CalendarEvent{
	UID:         "1b4e28ba-2fa1-5d2e-883f-0016d3cca427",
	Title:       "Volunteering at: Ilford Centre Kitchen",
	Description: "Call Sam on 0123",
	Start:       time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	End:         time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC),
	Location:    "1 High Road",
}

func TestExport_WritesParsableCalendar(t *testing.T) {
	e := NewExporter(t.TempDir() + "/calendars")
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, e.Export(context.Background(), testEvent))

	f, err := os.Open(e.Path(testEvent.UID))
	require.NoError(t, err)
	defer f.Close()

	cal, err := ics.ParseCalendar(f)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)

	assert.Equal(t, testEvent.UID, events[0].Id())
	start, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, testEvent.Start.Equal(start))
	end, err := events[0].GetEndAt()
	require.NoError(t, err)
	assert.True(t, testEvent.End.Equal(end))
	assert.Equal(t, testEvent.Title, events[0].GetProperty(ics.ComponentPropertySummary).Value)
	assert.Equal(t, testEvent.Location, events[0].GetProperty(ics.ComponentPropertyLocation).Value)
}

func TestExport_OverwritesPreviousFile(t *testing.T) {
	e := NewExporter(t.TempDir())

	require.NoError(t, e.Export(context.Background(), testEvent))
	moved := testEvent
	moved.Location = "2 Low Road"
	require.NoError(t, e.Export(context.Background(), moved))

	data, err := os.ReadFile(e.Path(testEvent.UID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2 Low Road")
	assert.NotContains(t, string(data), "1 High Road")
	assert.Equal(t, 1, strings.Count(string(data), "BEGIN:VEVENT"))
}

func TestExport_RequiresUID(t *testing.T) {
	e := NewExporter(t.TempDir())
	err := e.Export(context.Background(), notify.CalendarEvent{Title: "x"})
	assert.Error(t, err)
}

func TestExport_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExporter(t.TempDir())
	assert.ErrorIs(t, e.Export(ctx, testEvent), context.Canceled)
}
