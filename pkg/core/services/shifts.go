package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/internal/config"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// ErrInvalidShift is returned when a shift does not start before it ends or lacks its facility or task
var ErrInvalidShift = errors.New("invalid shift")

// maxSeriesShifts caps how many shifts one CreateShiftSeries call may create
const maxSeriesShifts = 366

func validateShift(shift *model.Shift) error {
	if !shift.StartingTime.Before(shift.EndingTime) {
		return fmt.Errorf("%w: starting time %s is not before ending time %s",
			ErrInvalidShift, shift.StartingTime.Format(time.RFC3339), shift.EndingTime.Format(time.RFC3339))
	}
	if shift.Facility.ID == "" || shift.Task.ID == "" {
		return fmt.Errorf("%w: facility and task are required", ErrInvalidShift)
	}
	if shift.Slots < 0 {
		return fmt.Errorf("%w: slots must not be negative", ErrInvalidShift)
	}
	return nil
}

func CreateShift(ctx context.Context, store db.ShiftStore, logger *zap.Logger, shift *model.Shift) error {
	if err := validateShift(shift); err != nil {
		return err
	}

	if err := store.CreateShift(ctx, shift); err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}

	logger.Info("Shift created", zap.String("shift_id", shift.ID), zap.Stringer("shift", shift))
	return nil
}

// UpdateShift saves shift over the stored shift with the same ID
// Helpers are notified by the store's hooks when the times change materially
func UpdateShift(ctx context.Context, store db.ShiftStore, logger *zap.Logger, shift *model.Shift) error {
	if err := validateShift(shift); err != nil {
		return err
	}

	if err := store.UpdateShift(ctx, shift); err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}

	logger.Info("Shift updated", zap.String("shift_id", shift.ID), zap.Stringer("shift", shift))
	return nil
}

func DeleteShift(ctx context.Context, store db.ShiftStore, logger *zap.Logger, shiftID string) error {
	if err := store.DeleteShift(ctx, shiftID); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}

	logger.Info("Shift deleted", zap.String("shift_id", shiftID))
	return nil
}

// ShiftWithHelpers pairs a shift with the volunteers registered for it
type ShiftWithHelpers struct {
	Shift   model.Shift
	Helpers []model.Helper
}

// OpenSlots returns the number of unfilled slots, or -1 when the shift is unlimited
func (s ShiftWithHelpers) OpenSlots() int {
	if s.Shift.Slots == 0 {
		return -1
	}
	return max(s.Shift.Slots-len(s.Helpers), 0)
}

// ListUpcomingShifts returns the shifts that have not ended by now, ordered by facility then ending time
// facilityID may be empty to list every facility
func ListUpcomingShifts(ctx context.Context, store db.ShiftStore, logger *zap.Logger, facilityID string, now time.Time) ([]ShiftWithHelpers, error) {
	shifts, err := store.ListShifts(ctx, db.ShiftFilter{FacilityID: facilityID, EndingAfter: now})
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}

	result := make([]ShiftWithHelpers, 0, len(shifts))
	for _, shift := range shifts {
		helpers, err := store.GetShiftHelpers(ctx, shift.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch helpers for shift %s: %w", shift.ID, err)
		}
		result = append(result, ShiftWithHelpers{Shift: shift, Helpers: helpers})
	}

	logger.Debug("Listed upcoming shifts", zap.String("facility_id", facilityID), zap.Int("count", len(result)))
	return result, nil
}

// CreateShiftSeries creates one shift per occurrence of the template's rrule between from and until
// Occurrences take their time of day from from; each lasts the template's duration
func CreateShiftSeries(
	ctx context.Context,
	store db.ShiftStore,
	logger *zap.Logger,
	tmpl config.ShiftTemplate,
	from, until time.Time,
) ([]model.Shift, error) {
	if !from.Before(until) {
		return nil, fmt.Errorf("series start %s must be before end %s", from.Format(time.RFC3339), until.Format(time.RFC3339))
	}

	rule, err := rrule.StrToRRule(tmpl.RRule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rrule for template %s: %w", tmpl.Name, err)
	}
	rule.DTStart(from)

	occurrences, ok := occurrencesUntil(rule, until, maxSeriesShifts)
	if !ok {
		return nil, fmt.Errorf("template %s produces more than the limit of %d shifts", tmpl.Name, maxSeriesShifts)
	}

	logger.Debug("Expanding shift template",
		zap.String("template", tmpl.Name),
		zap.String("rrule", tmpl.RRule),
		zap.Int("occurrences", len(occurrences)))

	created := make([]model.Shift, 0, len(occurrences))
	for _, start := range occurrences {
		shift := shiftFromTemplate(tmpl, start)
		if err := CreateShift(ctx, store, logger, &shift); err != nil {
			return created, fmt.Errorf("failed to create shift starting %s: %w", start.Format(time.RFC3339), err)
		}
		created = append(created, shift)
	}

	logger.Info("Shift series created", zap.String("template", tmpl.Name), zap.Int("count", len(created)))
	return created, nil
}

// occurrencesUntil walks rule up to and including until. It stops at limit+1
// occurrences and reports false, so dense rules are never fully expanded.
func occurrencesUntil(rule *rrule.RRule, until time.Time, limit int) ([]time.Time, bool) {
	var occurrences []time.Time
	next := rule.Iterator()
	for {
		t, ok := next()
		if !ok || t.After(until) {
			return occurrences, true
		}
		if len(occurrences) == limit {
			return nil, false
		}
		occurrences = append(occurrences, t)
	}
}

func shiftFromTemplate(tmpl config.ShiftTemplate, start time.Time) model.Shift {
	return model.Shift{
		StartingTime: start,
		EndingTime:   start.Add(tmpl.Duration),
		Facility: model.Facility{
			ID:          tmpl.FacilityID,
			Name:        tmpl.FacilityName,
			Place:       tmpl.Place,
			ContactInfo: tmpl.ContactInfo,
		},
		Task:      model.Task{ID: tmpl.TaskID, Name: tmpl.TaskName},
		Workplace: model.Workplace{ID: tmpl.WorkplaceID, Name: tmpl.WorkplaceName},
		Slots:     tmpl.Slots,
	}
}
