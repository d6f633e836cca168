package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/pkg/core/conflicts"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// ConflictError is returned by JoinShift when the shift overlaps shifts the volunteer already holds
type ConflictError struct {
	Shift     model.Shift
	Conflicts []model.Shift
}

func (e *ConflictError) Error() string {
	return "We can't add you to this shift because you've already agreed to other shifts at the same time: " +
		conflicts.Describe(e.Conflicts)
}

// JoinResult represents the result of joining a shift
type JoinResult struct {
	Registration  *model.HelperRegistration
	AlreadyJoined bool
}

// LeaveResult represents the result of leaving a shift
type LeaveResult struct {
	Removed bool
}

// JoinShift registers the volunteer as a helper on the shift unless it overlaps one of their shifts
// The conflict check runs inside the store with the volunteer account locked, so two concurrent
// joins by the same volunteer cannot both pass it
func JoinShift(ctx context.Context, store db.RegistrationStore, logger *zap.Logger, volunteerID, shiftID string) (*JoinResult, error) {
	logger.Debug("Joining shift", zap.String("volunteer_id", volunteerID), zap.String("shift_id", shiftID))

	check := func(candidate model.Shift, current []model.Shift) error {
		if found := conflicts.Find(candidate, current); len(found) > 0 {
			return &ConflictError{Shift: candidate, Conflicts: found}
		}
		return nil
	}

	reg, created, err := store.RegisterHelper(ctx, volunteerID, shiftID, check)
	if err != nil {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			logger.Info("Shift join rejected",
				zap.String("volunteer_id", volunteerID),
				zap.String("shift_id", shiftID),
				zap.Int("conflicts", len(conflictErr.Conflicts)))
			return nil, err
		}
		return nil, fmt.Errorf("failed to join shift: %w", err)
	}

	if !created {
		logger.Debug("Volunteer already on shift", zap.String("volunteer_id", volunteerID), zap.String("shift_id", shiftID))
		return &JoinResult{Registration: reg, AlreadyJoined: true}, nil
	}

	logger.Info("Volunteer joined shift",
		zap.String("volunteer_id", volunteerID),
		zap.String("shift_id", shiftID),
		zap.String("registration_id", reg.ID))

	return &JoinResult{Registration: reg}, nil
}

// LeaveShift removes the volunteer from the shift. Leaving a shift not joined is not an error.
func LeaveShift(ctx context.Context, store db.RegistrationStore, logger *zap.Logger, volunteerID, shiftID string) (*LeaveResult, error) {
	removed, err := store.UnregisterHelper(ctx, volunteerID, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to leave shift: %w", err)
	}

	if removed {
		logger.Info("Volunteer left shift", zap.String("volunteer_id", volunteerID), zap.String("shift_id", shiftID))
	} else {
		logger.Debug("Volunteer was not on shift", zap.String("volunteer_id", volunteerID), zap.String("shift_id", shiftID))
	}

	return &LeaveResult{Removed: removed}, nil
}
