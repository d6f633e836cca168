package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

// CreateBroadcastMessage stores a new message and delivers AfterMessageSaved with Created set
func (d *DB) CreateBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	shift, err := selectShift(ctx, tx, message.ShiftID, false)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO shift_message (id, shift_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		RETURNING created_at
	`, message.ID, message.ShiftID, message.Sender.VolunteerID, message.Body, nullableTime(message)).
		Scan(&message.CreatedAt)
	if err != nil {
		return mapError(err, "failed to insert message "+message.ID)
	}

	if err := insertRecipients(ctx, tx, message); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.hooks.AfterMessageSaved(ctx, lifecycle.MessageSaved{Message: *message, Shift: shift, Created: true})
	return nil
}

// SaveBroadcastMessage re-saves an existing message and delivers AfterMessageSaved without Created
func (d *DB) SaveBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE shift_message SET body = $2 WHERE id = $1`, message.ID, message.Body)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, "message "+message.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM shift_message_recipient WHERE message_id = $1`, message.ID); err != nil {
		return fmt.Errorf("failed to clear message recipients: %w", err)
	}
	if err := insertRecipients(ctx, tx, message); err != nil {
		return err
	}

	shift, err := selectShift(ctx, tx, message.ShiftID, false)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.hooks.AfterMessageSaved(ctx, lifecycle.MessageSaved{Message: *message, Shift: shift, Created: false})
	return nil
}

// GetBroadcastMessage retrieves a message with its sender and recipients
func (d *DB) GetBroadcastMessage(ctx context.Context, id string) (*model.BroadcastMessage, error) {
	var msg model.BroadcastMessage
	err := d.pool.QueryRow(ctx, `
		SELECT m.id, m.shift_id, m.body, m.created_at,
		       v.id, v.first_name, v.last_name, v.email
		FROM shift_message m
		JOIN volunteer v ON v.id = m.sender_id
		WHERE m.id = $1
	`, id).Scan(&msg.ID, &msg.ShiftID, &msg.Body, &msg.CreatedAt,
		&msg.Sender.VolunteerID, &msg.Sender.FirstName, &msg.Sender.LastName, &msg.Sender.Email)
	if err != nil {
		return nil, mapError(err, "message "+id)
	}

	rows, err := d.pool.Query(ctx, `
		SELECT v.id, v.first_name, v.last_name, v.email
		FROM shift_message_recipient r
		JOIN volunteer v ON v.id = r.volunteer_id
		WHERE r.message_id = $1
		ORDER BY v.last_name, v.first_name, v.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query message recipients: %w", err)
	}
	defer rows.Close()

	msg.Recipients = []model.Helper{}
	for rows.Next() {
		var h model.Helper
		if err := rows.Scan(&h.VolunteerID, &h.FirstName, &h.LastName, &h.Email); err != nil {
			return nil, fmt.Errorf("failed to scan message recipient: %w", err)
		}
		msg.Recipients = append(msg.Recipients, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message recipients: %w", err)
	}
	return &msg, nil
}

func insertRecipients(ctx context.Context, q querier, message *model.BroadcastMessage) error {
	for _, r := range message.Recipients {
		_, err := q.Exec(ctx, `
			INSERT INTO shift_message_recipient (message_id, volunteer_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, message.ID, r.VolunteerID)
		if err != nil {
			return fmt.Errorf("failed to insert message recipient %s: %w", r.VolunteerID, err)
		}
	}
	return nil
}

func nullableTime(message *model.BroadcastMessage) any {
	if message.CreatedAt.IsZero() {
		return nil
	}
	return message.CreatedAt.UTC()
}
