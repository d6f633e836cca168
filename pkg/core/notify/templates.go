package notify

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type cancelledData struct {
	Shift model.Shift
}

type modifiedData struct {
	Previous model.Shift
	Next     model.Shift
}

type subscribedData struct {
	Shift     model.Shift
	Volunteer model.Volunteer
}

type broadcastData struct {
	Message     model.BroadcastMessage
	Shift       model.Shift
	Recipient   model.Helper
	SenderEmail string
}

// renderer formats email subjects and bodies in one time zone
type renderer struct {
	loc  *time.Location
	tmpl *template.Template
}

func newRenderer(loc *time.Location) (*renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := template.FuncMap{
		"date":  func(t time.Time) string { return t.In(loc).Format("02.01.2006") },
		"clock": func(t time.Time) string { return t.In(loc).Format("15:04") },
	}
	tmpl, err := template.New("notify").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &renderer{loc: loc, tmpl: tmpl}, nil
}

func (r *renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *renderer) shiftCancelled(shift model.Shift) (subject, body string, err error) {
	subject = fmt.Sprintf("Shift on %s was cancelled", shift.StartingTime.In(r.loc).Format("02.01.06"))
	body, err = r.execute("shift_cancelled.tmpl", cancelledData{Shift: shift})
	return subject, body, err
}

func (r *renderer) shiftModified(event lifecycle.ShiftUpdating) (subject, body string, err error) {
	subject = fmt.Sprintf("Shift was changed: %s on %s",
		event.Previous.Task.Name, event.Previous.StartingTime.In(r.loc).Format("02.01.2006"))
	body, err = r.execute("shift_modified.tmpl", modifiedData{Previous: event.Previous, Next: event.Next})
	return subject, body, err
}

func (r *renderer) helperSubscribed(event lifecycle.HelperJoined) (subject, body string, err error) {
	subject = fmt.Sprintf("Volunteer-Planner: Confirmation of your shift %s starting at %s",
		event.Shift.Task.Name, event.Shift.StartingTime.In(r.loc).Format("02.01.2006 15:04"))
	body, err = r.execute("helper_subscribed.tmpl", subscribedData{Shift: event.Shift, Volunteer: event.Volunteer})
	return subject, body, err
}

func (r *renderer) broadcastSent(event lifecycle.MessageSaved, recipient model.Helper) (subject, body string, err error) {
	subject = fmt.Sprintf("Volunteer-Planner: A Message from shift manager of %s", event.Shift.Task.Name)
	body, err = r.execute("broadcast_sent.tmpl", broadcastData{
		Message:     event.Message,
		Shift:       event.Shift,
		Recipient:   recipient,
		SenderEmail: event.Message.Sender.Email,
	})
	return subject, body, err
}

// calendarEvent builds the calendar entry for a shift
func calendarEvent(shift model.Shift) CalendarEvent {
	title := "Volunteering at: " + shift.Facility.Name
	if shift.Workplace.Name != "" {
		title += " " + shift.Workplace.Name
	}
	return CalendarEvent{
		UID:         shift.ICalUID(),
		Title:       title,
		Description: shift.Facility.ContactInfo,
		Start:       shift.StartingTime,
		End:         shift.EndingTime,
		Location:    shift.Facility.Place,
	}
}
