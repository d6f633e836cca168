package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

var validate = validator.New()

// AddVolunteer creates a volunteer account. An empty email is allowed; such volunteers get no mail.
func AddVolunteer(ctx context.Context, store db.VolunteerStore, logger *zap.Logger, volunteer *model.Volunteer) error {
	volunteer.FirstName = strings.TrimSpace(volunteer.FirstName)
	volunteer.LastName = strings.TrimSpace(volunteer.LastName)
	volunteer.Email = strings.TrimSpace(volunteer.Email)

	if volunteer.FirstName == "" {
		return fmt.Errorf("volunteer first name is required")
	}
	if volunteer.Email != "" {
		if err := validate.Var(volunteer.Email, "email"); err != nil {
			return fmt.Errorf("invalid email %q: %w", volunteer.Email, err)
		}
	}

	if err := store.CreateVolunteer(ctx, volunteer); err != nil {
		return fmt.Errorf("failed to create volunteer: %w", err)
	}

	logger.Info("Volunteer added", zap.String("volunteer_id", volunteer.ID), zap.String("name", volunteer.FullName()))
	return nil
}

// MyShiftsResult lists a volunteer's shifts split around now
type MyShiftsResult struct {
	Volunteer model.Volunteer
	Upcoming  []model.Shift
	Past      []model.Shift
}

// MyShifts returns the shifts the volunteer has joined
func MyShifts(ctx context.Context, store db.VolunteerStore, logger *zap.Logger, volunteerID string, now time.Time) (*MyShiftsResult, error) {
	volunteer, err := store.GetVolunteer(ctx, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch volunteer: %w", err)
	}

	shifts, err := store.GetVolunteerShifts(ctx, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shifts for volunteer %s: %w", volunteerID, err)
	}

	result := &MyShiftsResult{Volunteer: *volunteer}
	for _, shift := range shifts {
		if shift.EndingTime.After(now) {
			result.Upcoming = append(result.Upcoming, shift)
		} else {
			result.Past = append(result.Past, shift)
		}
	}

	logger.Debug("Fetched volunteer shifts",
		zap.String("volunteer_id", volunteerID),
		zap.Int("upcoming", len(result.Upcoming)),
		zap.Int("past", len(result.Past)))

	return result, nil
}
