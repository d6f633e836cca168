package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// ErrEmptyMessage is returned when a broadcast has no body
var ErrEmptyMessage = errors.New("message body is empty")

// BroadcastStore defines the database operations needed to broadcast to a shift's helpers
type BroadcastStore interface {
	GetShiftHelpers(ctx context.Context, shiftID string) ([]model.Helper, error)
	GetVolunteer(ctx context.Context, id string) (*model.Volunteer, error)
	CreateBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error
}

// SendBroadcast stores a message from senderID to everyone else currently helping on the shift
// Delivery happens in the store's after-save hook
func SendBroadcast(ctx context.Context, store BroadcastStore, logger *zap.Logger, shiftID, senderID, body string) (*model.BroadcastMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := store.GetVolunteer(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sender: %w", err)
	}

	helpers, err := store.GetShiftHelpers(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch helpers for shift %s: %w", shiftID, err)
	}

	recipients := make([]model.Helper, 0, len(helpers))
	for _, h := range helpers {
		if h.VolunteerID != senderID {
			recipients = append(recipients, h)
		}
	}

	message := &model.BroadcastMessage{
		ShiftID:    shiftID,
		Sender:     sender.Helper(),
		Body:       body,
		Recipients: recipients,
	}
	if err := store.CreateBroadcastMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	logger.Info("Broadcast saved",
		zap.String("message_id", message.ID),
		zap.String("shift_id", shiftID),
		zap.Int("recipients", len(recipients)))

	return message, nil
}

// EditBroadcast replaces the body of a saved message. Helpers already received
// the original, so the re-save sends nothing.
func EditBroadcast(ctx context.Context, store db.MessageStore, logger *zap.Logger, messageID, body string) (*model.BroadcastMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	message, err := store.GetBroadcastMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	message.Body = body
	if err := store.SaveBroadcastMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	logger.Info("Broadcast edited", zap.String("message_id", messageID))
	return message, nil
}
