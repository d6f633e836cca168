package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// RegisterHelper binds a volunteer to a shift if check accepts it.
// The volunteer row is locked for the whole transaction so joins and leaves of one
// account serialise. The account is refreshed and committed even when check rejects
// the shift; the rejection is returned after the commit.
func (d *DB) RegisterHelper(ctx context.Context, volunteerID, shiftID string, check db.RegistrationCheck) (*model.HelperRegistration, bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockVolunteer(ctx, tx, volunteerID); err != nil {
		return nil, false, err
	}

	candidate, err := selectShift(ctx, tx, shiftID, false)
	if err != nil {
		return nil, false, err
	}

	existing, err := findRegistration(ctx, tx, volunteerID, shiftID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to query registration: %w", err)
	}

	var (
		reg        *model.HelperRegistration
		created    bool
		outcomeErr error
	)
	switch {
	case err == nil:
		reg = &existing
	default:
		current, err := volunteerShifts(ctx, tx, volunteerID)
		if err != nil {
			return nil, false, err
		}
		if check != nil {
			outcomeErr = check(candidate, current)
		}
		if outcomeErr == nil {
			inserted := model.HelperRegistration{
				ID:          uuid.New().String(),
				ShiftID:     shiftID,
				VolunteerID: volunteerID,
			}
			err := tx.QueryRow(ctx, `
				INSERT INTO shift_helper (id, shift_id, volunteer_id)
				VALUES ($1, $2, $3)
				RETURNING created_at
			`, inserted.ID, inserted.ShiftID, inserted.VolunteerID).Scan(&inserted.CreatedAt)
			if err != nil {
				return nil, false, mapError(err, "failed to insert registration")
			}
			reg = &inserted
			created = true
		}
	}

	volunteer, err := refreshVolunteer(ctx, tx, volunteerID)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if outcomeErr != nil {
		return nil, false, outcomeErr
	}

	if created {
		d.hooks.AfterHelperJoined(ctx, lifecycle.HelperJoined{
			Registration: *reg,
			Shift:        candidate,
			Volunteer:    volunteer,
		})
	}
	return reg, created, nil
}

// UnregisterHelper removes the volunteer's registration for the shift if present
func (d *DB) UnregisterHelper(ctx context.Context, volunteerID, shiftID string) (bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockVolunteer(ctx, tx, volunteerID); err != nil {
		return false, err
	}
	if _, err := selectShift(ctx, tx, shiftID, false); err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM shift_helper WHERE volunteer_id = $1 AND shift_id = $2
	`, volunteerID, shiftID)
	if err != nil {
		return false, fmt.Errorf("failed to delete registration: %w", err)
	}
	removed := tag.RowsAffected() > 0

	if removed {
		_, err = tx.Exec(ctx, `
			DELETE FROM shift_message_recipient r
			USING shift_message m
			WHERE r.message_id = m.id AND m.shift_id = $1 AND r.volunteer_id = $2
		`, shiftID, volunteerID)
		if err != nil {
			return false, fmt.Errorf("failed to detach message recipient: %w", err)
		}
	}

	if _, err := refreshVolunteer(ctx, tx, volunteerID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

func findRegistration(ctx context.Context, q querier, volunteerID, shiftID string) (model.HelperRegistration, error) {
	var reg model.HelperRegistration
	err := q.QueryRow(ctx, `
		SELECT id, shift_id, volunteer_id, created_at
		FROM shift_helper
		WHERE volunteer_id = $1 AND shift_id = $2
	`, volunteerID, shiftID).Scan(&reg.ID, &reg.ShiftID, &reg.VolunteerID, &reg.CreatedAt)
	return reg, err
}
