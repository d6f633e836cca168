package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

const shiftColumns = `
	s.id, s.starting_time, s.ending_time, s.slots,
	f.id, f.name, f.place, f.contact_info,
	t.id, t.name,
	COALESCE(w.id, ''), COALESCE(w.name, '')
`

const shiftFrom = `
	FROM shift s
	JOIN facility f ON f.id = s.facility_id
	JOIN task t ON t.id = s.task_id
	LEFT JOIN workplace w ON w.id = s.workplace_id
`

func scanShift(row rowScanner) (model.Shift, error) {
	var s model.Shift
	err := row.Scan(
		&s.ID, &s.StartingTime, &s.EndingTime, &s.Slots,
		&s.Facility.ID, &s.Facility.Name, &s.Facility.Place, &s.Facility.ContactInfo,
		&s.Task.ID, &s.Task.Name,
		&s.Workplace.ID, &s.Workplace.Name,
	)
	return s, err
}

func collectShifts(q querier, ctx context.Context, sql string, args ...any) ([]model.Shift, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	shifts := []model.Shift{}
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}
	return shifts, nil
}

// selectShift reads one shift. With forUpdate the shift row stays locked until
// the surrounding transaction ends.
func selectShift(ctx context.Context, q querier, id string, forUpdate bool) (model.Shift, error) {
	sql := `SELECT ` + shiftColumns + shiftFrom + ` WHERE s.id = $1`
	if forUpdate {
		sql += ` FOR UPDATE OF s`
	}
	s, err := scanShift(q.QueryRow(ctx, sql, id))
	if err != nil {
		return model.Shift{}, mapError(err, "shift "+id)
	}
	return s, nil
}

// upsertShiftRefs stores the facility, task and workplace a shift points at
func upsertShiftRefs(ctx context.Context, q querier, shift *model.Shift) error {
	if shift.Facility.ID == "" || shift.Task.ID == "" {
		return fmt.Errorf("shift requires facility and task IDs")
	}

	_, err := q.Exec(ctx, `
		INSERT INTO facility (id, name, place, contact_info)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, place = EXCLUDED.place, contact_info = EXCLUDED.contact_info
	`, shift.Facility.ID, shift.Facility.Name, shift.Facility.Place, shift.Facility.ContactInfo)
	if err != nil {
		return fmt.Errorf("failed to upsert facility: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO task (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, shift.Task.ID, shift.Task.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if shift.Workplace.ID != "" {
		_, err = q.Exec(ctx, `
			INSERT INTO workplace (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, shift.Workplace.ID, shift.Workplace.Name)
		if err != nil {
			return fmt.Errorf("failed to upsert workplace: %w", err)
		}
	}
	return nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// CreateShift inserts a new shift, generating an ID if none is set
func (d *DB) CreateShift(ctx context.Context, shift *model.Shift) error {
	if shift.ID == "" {
		shift.ID = uuid.New().String()
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertShiftRefs(ctx, tx, shift); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO shift (id, starting_time, ending_time, facility_id, task_id, workplace_id, slots)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, shift.ID, shift.StartingTime.UTC(), shift.EndingTime.UTC(), shift.Facility.ID, shift.Task.ID,
		nullableID(shift.Workplace.ID), shift.Slots)
	if err != nil {
		return mapError(err, "failed to insert shift")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetShift retrieves a shift by ID
func (d *DB) GetShift(ctx context.Context, id string) (*model.Shift, error) {
	s, err := selectShift(ctx, d.pool, id, false)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListShifts returns shifts ordered by facility then ending time
func (d *DB) ListShifts(ctx context.Context, filter db.ShiftFilter) ([]model.Shift, error) {
	var conditions []string
	var args []any

	if filter.FacilityID != "" {
		args = append(args, filter.FacilityID)
		conditions = append(conditions, fmt.Sprintf("s.facility_id = $%d", len(args)))
	}
	if !filter.EndingAfter.IsZero() {
		args = append(args, filter.EndingAfter.UTC())
		conditions = append(conditions, fmt.Sprintf("s.ending_time > $%d", len(args)))
	}

	sql := `SELECT ` + shiftColumns + shiftFrom
	if len(conditions) > 0 {
		sql += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	sql += ` ORDER BY f.name, s.ending_time, s.id`

	return collectShifts(d.pool, ctx, sql, args...)
}

// UpdateShift overwrites a stored shift. Inside one transaction the previous row is
// re-read under a row lock, BeforeShiftUpdate hooks run, and only then are the new
// values written.
func (d *DB) UpdateShift(ctx context.Context, shift *model.Shift) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	previous, err := selectShift(ctx, tx, shift.ID, true)
	if err != nil {
		return err
	}
	helpers, err := shiftHelpers(ctx, tx, shift.ID)
	if err != nil {
		return err
	}

	d.hooks.BeforeShiftUpdate(ctx, lifecycle.ShiftUpdating{
		Previous: previous,
		Next:     *shift,
		Helpers:  helpers,
	})

	if err := upsertShiftRefs(ctx, tx, shift); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE shift
		SET starting_time = $2, ending_time = $3, facility_id = $4, task_id = $5, workplace_id = $6, slots = $7
		WHERE id = $1
	`, shift.ID, shift.StartingTime.UTC(), shift.EndingTime.UTC(), shift.Facility.ID, shift.Task.ID,
		nullableID(shift.Workplace.ID), shift.Slots)
	if err != nil {
		return fmt.Errorf("failed to update shift: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteShift removes a shift. BeforeShiftDelete hooks run inside the transaction
// while the registrations still exist; they are removed by cascade afterwards.
func (d *DB) DeleteShift(ctx context.Context, id string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	shift, err := selectShift(ctx, tx, id, true)
	if err != nil {
		return err
	}
	helpers, err := shiftHelpers(ctx, tx, id)
	if err != nil {
		return err
	}

	d.hooks.BeforeShiftDelete(ctx, lifecycle.ShiftDeleting{Shift: shift, Helpers: helpers})

	if _, err := tx.Exec(ctx, `DELETE FROM shift WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}

	affected := make([]string, len(helpers))
	for i, h := range helpers {
		affected[i] = h.VolunteerID
	}
	if len(affected) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE volunteer v
			SET shift_count = (SELECT COUNT(*) FROM shift_helper h WHERE h.volunteer_id = v.id),
			    updated_at = NOW()
			WHERE v.id = ANY($1)
		`, affected)
		if err != nil {
			return fmt.Errorf("failed to refresh volunteers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetShiftHelpers returns the contacts of everyone registered for the shift
func (d *DB) GetShiftHelpers(ctx context.Context, shiftID string) ([]model.Helper, error) {
	if _, err := selectShift(ctx, d.pool, shiftID, false); err != nil {
		return nil, err
	}
	return shiftHelpers(ctx, d.pool, shiftID)
}

func shiftHelpers(ctx context.Context, q querier, shiftID string) ([]model.Helper, error) {
	rows, err := q.Query(ctx, `
		SELECT v.id, v.first_name, v.last_name, v.email
		FROM shift_helper h
		JOIN volunteer v ON v.id = h.volunteer_id
		WHERE h.shift_id = $1
		ORDER BY h.created_at, v.id
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift helpers: %w", err)
	}
	defer rows.Close()

	helpers := []model.Helper{}
	for rows.Next() {
		var h model.Helper
		if err := rows.Scan(&h.VolunteerID, &h.FirstName, &h.LastName, &h.Email); err != nil {
			return nil, fmt.Errorf("failed to scan shift helper: %w", err)
		}
		helpers = append(helpers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shift helpers: %w", err)
	}
	return helpers, nil
}
