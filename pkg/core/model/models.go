package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// icalNamespace scopes the calendar UIDs generated for shifts
var icalNamespace = uuid.MustParse("6f1c2b1e-3f7a-4c55-9d0e-2b7d8f0a4c11")

// Facility is the place a shift happens at
type Facility struct {
	ID          string
	Name        string
	Place       string
	ContactInfo string
}

// Task describes what volunteers do on a shift
type Task struct {
	ID   string
	Name string
}

// Workplace is the area within a facility a shift is staffed for
type Workplace struct {
	ID   string
	Name string
}

// Shift is a bounded time interval at a facility volunteers can register for
type Shift struct {
	ID           string
	StartingTime time.Time
	EndingTime   time.Time
	Facility     Facility
	Task         Task
	Workplace    Workplace
	Slots        int
}

// ICalUID returns the stable calendar identifier for the shift
func (s Shift) ICalUID() string {
	return uuid.NewSHA1(icalNamespace, []byte("shift:"+s.ID)).String()
}

// String renders the shift the way volunteers see it in conflict lists
func (s Shift) String() string {
	return fmt.Sprintf("%s at %s (%s %s-%s)",
		s.Task.Name,
		s.Facility.Name,
		s.StartingTime.Format("02.01.2006"),
		s.StartingTime.Format("15:04"),
		s.EndingTime.Format("15:04"),
	)
}

// Volunteer represents a volunteer account
type Volunteer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	// ShiftCount is the number of shifts the volunteer is committed to.
	// Refreshed every time the account joins or leaves a shift.
	ShiftCount int
	UpdatedAt  time.Time
}

// FullName returns the volunteer's display name
func (v Volunteer) FullName() string {
	return strings.TrimSpace(v.FirstName + " " + v.LastName)
}

// Helper returns the contact view of the volunteer
func (v Volunteer) Helper() Helper {
	return Helper{
		VolunteerID: v.ID,
		FirstName:   v.FirstName,
		LastName:    v.LastName,
		Email:       v.Email,
	}
}

// HelperRegistration binds a volunteer to a shift
type HelperRegistration struct {
	ID          string
	ShiftID     string
	VolunteerID string
	CreatedAt   time.Time
}

// Helper is the contact details of a registered volunteer
type Helper struct {
	VolunteerID string
	FirstName   string
	LastName    string
	Email       string // Empty string if the account has no address
}

// FullName returns the helper's display name
func (h Helper) FullName() string {
	return strings.TrimSpace(h.FirstName + " " + h.LastName)
}

// BroadcastMessage is a message from a shift manager to the helpers of one shift
type BroadcastMessage struct {
	ID         string
	ShiftID    string
	Sender     Helper
	Body       string
	Recipients []Helper
	CreatedAt  time.Time
}
