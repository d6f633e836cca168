// Package lifecycle defines the events a store emits around shift, registration
// and broadcast message mutations, and the registry that delivers them.
//
// Stores call the registry synchronously at fixed points:
//   - BeforeShiftDelete: inside the delete, before the row is removed
//   - BeforeShiftUpdate: inside the update, after the previous row has been
//     re-read and before the new values are written
//   - AfterHelperJoined: after a registration has been committed
//   - AfterMessageSaved: after a broadcast message has been committed
//
// Handlers cannot fail the mutation: they have no error return.
package lifecycle

import (
	"context"
	"sync"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

// ShiftDeleting is delivered before a shift is removed
type ShiftDeleting struct {
	Shift   model.Shift
	Helpers []model.Helper
}

// ShiftUpdating is delivered before a shift's stored values are overwritten.
// Previous is the persisted row as read inside the update.
type ShiftUpdating struct {
	Previous model.Shift
	Next     model.Shift
	Helpers  []model.Helper
}

// HelperJoined is delivered after a registration was created
type HelperJoined struct {
	Registration model.HelperRegistration
	Shift        model.Shift
	Volunteer    model.Volunteer
}

// MessageSaved is delivered after a broadcast message was saved.
// Created is false for re-saves of an existing message.
type MessageSaved struct {
	Message model.BroadcastMessage
	Shift   model.Shift
	Created bool
}

// Hooks reacts to store lifecycle events
type Hooks interface {
	BeforeShiftDelete(ctx context.Context, event ShiftDeleting)
	BeforeShiftUpdate(ctx context.Context, event ShiftUpdating)
	AfterHelperJoined(ctx context.Context, event HelperJoined)
	AfterMessageSaved(ctx context.Context, event MessageSaved)
}

// Registry fans events out to the hooks registered on it.
// The zero value is ready to use and delivers to nobody.
type Registry struct {
	mu     sync.RWMutex
	nextID int
	hooks  []registration
}

type registration struct {
	id    int
	hooks Hooks
}

// NewRegistry creates a registry with the given hooks already registered
func NewRegistry(hooks ...Hooks) *Registry {
	r := &Registry{}
	for _, h := range hooks {
		r.Register(h)
	}
	return r
}

// Register adds hooks to the registry. It returns a function that removes them again.
func (r *Registry) Register(h Hooks) (unregister func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.hooks = append(r.hooks, registration{id: id, hooks: h})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, existing := range r.hooks {
			if existing.id == id {
				r.hooks = append(r.hooks[:i], r.hooks[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered hooks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

func (r *Registry) snapshot() []Hooks {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Hooks, len(r.hooks))
	for i, reg := range r.hooks {
		out[i] = reg.hooks
	}
	return out
}

func (r *Registry) BeforeShiftDelete(ctx context.Context, event ShiftDeleting) {
	for _, h := range r.snapshot() {
		h.BeforeShiftDelete(ctx, event)
	}
}

func (r *Registry) BeforeShiftUpdate(ctx context.Context, event ShiftUpdating) {
	for _, h := range r.snapshot() {
		h.BeforeShiftUpdate(ctx, event)
	}
}

func (r *Registry) AfterHelperJoined(ctx context.Context, event HelperJoined) {
	for _, h := range r.snapshot() {
		h.AfterHelperJoined(ctx, event)
	}
}

func (r *Registry) AfterMessageSaved(ctx context.Context, event MessageSaved) {
	for _, h := range r.snapshot() {
		h.AfterMessageSaved(ctx, event)
	}
}
