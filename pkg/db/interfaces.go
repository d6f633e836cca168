package db

import (
	"context"
	"errors"
	"time"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

var (
	// ErrNotFound is returned when a shift, volunteer or message does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when inserting a record whose ID is taken
	ErrAlreadyExists = errors.New("record already exists")
)

// ShiftFilter narrows ListShifts. Zero fields do not filter.
type ShiftFilter struct {
	FacilityID  string
	EndingAfter time.Time
}

// RegistrationCheck inspects a candidate shift against the shifts a volunteer
// already holds. A non-nil error aborts the registration.
type RegistrationCheck func(candidate model.Shift, current []model.Shift) error

// ShiftStore defines the shift database operations.
// UpdateShift and DeleteShift deliver lifecycle hooks before writing.
type ShiftStore interface {
	CreateShift(ctx context.Context, shift *model.Shift) error
	GetShift(ctx context.Context, id string) (*model.Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]model.Shift, error)
	UpdateShift(ctx context.Context, shift *model.Shift) error
	DeleteShift(ctx context.Context, id string) error
	GetShiftHelpers(ctx context.Context, shiftID string) ([]model.Helper, error)
}

// VolunteerStore defines the volunteer account database operations
type VolunteerStore interface {
	CreateVolunteer(ctx context.Context, volunteer *model.Volunteer) error
	GetVolunteer(ctx context.Context, id string) (*model.Volunteer, error)
	GetVolunteerShifts(ctx context.Context, volunteerID string) ([]model.Shift, error)
}

// RegistrationStore defines the operations that bind volunteers to shifts.
// Both serialise on the volunteer account and persist the account exactly once per call.
type RegistrationStore interface {
	// RegisterHelper runs check with the account locked and creates the registration
	// when check passes. created is false when the volunteer already held the shift,
	// in which case check is not run.
	RegisterHelper(ctx context.Context, volunteerID, shiftID string, check RegistrationCheck) (reg *model.HelperRegistration, created bool, err error)
	// UnregisterHelper removes the registration if present
	UnregisterHelper(ctx context.Context, volunteerID, shiftID string) (removed bool, err error)
}

// MessageStore defines the broadcast message database operations
type MessageStore interface {
	CreateBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error
	SaveBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error
	GetBroadcastMessage(ctx context.Context, id string) (*model.BroadcastMessage, error)
}

// Database defines the interface for all database operations.
// Both the in-memory MemoryDB and postgres.DB implement this interface.
type Database interface {
	ShiftStore
	VolunteerStore
	RegistrationStore
	MessageStore
}
