package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

const volunteerColumns = `id, first_name, last_name, email, shift_count, updated_at`

func scanVolunteer(row rowScanner) (model.Volunteer, error) {
	var v model.Volunteer
	err := row.Scan(&v.ID, &v.FirstName, &v.LastName, &v.Email, &v.ShiftCount, &v.UpdatedAt)
	return v, err
}

// CreateVolunteer inserts a new volunteer account, generating an ID if none is set
func (d *DB) CreateVolunteer(ctx context.Context, volunteer *model.Volunteer) error {
	if volunteer.ID == "" {
		volunteer.ID = uuid.New().String()
	}

	err := d.pool.QueryRow(ctx, `
		INSERT INTO volunteer (id, first_name, last_name, email)
		VALUES ($1, $2, $3, $4)
		RETURNING updated_at
	`, volunteer.ID, volunteer.FirstName, volunteer.LastName, volunteer.Email).Scan(&volunteer.UpdatedAt)
	if err != nil {
		return mapError(err, "failed to insert volunteer "+volunteer.ID)
	}
	return nil
}

// GetVolunteer retrieves a volunteer account by ID
func (d *DB) GetVolunteer(ctx context.Context, id string) (*model.Volunteer, error) {
	v, err := scanVolunteer(d.pool.QueryRow(ctx,
		`SELECT `+volunteerColumns+` FROM volunteer WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "volunteer "+id)
	}
	return &v, nil
}

// GetVolunteerShifts returns every shift the volunteer is registered for
func (d *DB) GetVolunteerShifts(ctx context.Context, volunteerID string) ([]model.Shift, error) {
	if _, err := d.GetVolunteer(ctx, volunteerID); err != nil {
		return nil, err
	}
	return volunteerShifts(ctx, d.pool, volunteerID)
}

func volunteerShifts(ctx context.Context, q querier, volunteerID string) ([]model.Shift, error) {
	return collectShifts(q, ctx, `SELECT `+shiftColumns+shiftFrom+`
		JOIN shift_helper h ON h.shift_id = s.id
		WHERE h.volunteer_id = $1
		ORDER BY f.name, s.ending_time, s.id
	`, volunteerID)
}

// lockVolunteer reads the account row and holds its lock until the transaction ends
func lockVolunteer(ctx context.Context, q querier, id string) (model.Volunteer, error) {
	v, err := scanVolunteer(q.QueryRow(ctx,
		`SELECT `+volunteerColumns+` FROM volunteer WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Volunteer{}, mapError(err, "volunteer "+id)
	}
	return v, nil
}

// refreshVolunteer recomputes the account's shift count and stamps it
func refreshVolunteer(ctx context.Context, q querier, id string) (model.Volunteer, error) {
	v, err := scanVolunteer(q.QueryRow(ctx, `
		UPDATE volunteer
		SET shift_count = (SELECT COUNT(*) FROM shift_helper WHERE volunteer_id = $1),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+volunteerColumns, id))
	if err != nil {
		return model.Volunteer{}, fmt.Errorf("failed to refresh volunteer %s: %w", id, err)
	}
	return v, nil
}
