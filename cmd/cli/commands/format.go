package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/core/services"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

const inputLayout = "2006-01-02 15:04"

// parseTime accepts "2006-01-02 15:04" in loc or a full RFC 3339 timestamp
func parseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(inputLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (use \"%s\" or RFC 3339)", value, inputLayout)
	}
	return t, nil
}

// describeError labels the errors a caller can fix by changing the request
func describeError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("failed precondition: %w", err)
	case errors.Is(err, services.ErrInvalidShift):
		return fmt.Errorf("invalid argument: %w", err)
	}
	return err
}

func formatShift(shift model.Shift, loc *time.Location) string {
	start := shift.StartingTime.In(loc)
	end := shift.EndingTime.In(loc)

	where := shift.Facility.Name
	if shift.Workplace.Name != "" {
		where += " / " + shift.Workplace.Name
	}

	return fmt.Sprintf("%s  %s-%s  %-20s %s",
		start.Format("Mon 02.01.2006"),
		start.Format("15:04"),
		end.Format("15:04"),
		shift.Task.Name,
		where)
}

func slotsLabel(s services.ShiftWithHelpers) string {
	open := s.OpenSlots()
	if open < 0 {
		return fmt.Sprintf("%d helpers", len(s.Helpers))
	}
	return fmt.Sprintf("%d/%d filled", len(s.Helpers), s.Shift.Slots)
}

func helperNames(helpers []model.Helper) string {
	names := make([]string, 0, len(helpers))
	for _, h := range helpers {
		names = append(names, h.FullName())
	}
	return strings.Join(names, ", ")
}
