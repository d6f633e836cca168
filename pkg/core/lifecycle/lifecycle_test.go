package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

type recordingHooks struct {
	calls []string
}

func (r *recordingHooks) BeforeShiftDelete(ctx context.Context, event ShiftDeleting) {
	r.calls = append(r.calls, "delete:"+event.Shift.ID)
}

func (r *recordingHooks) BeforeShiftUpdate(ctx context.Context, event ShiftUpdating) {
	r.calls = append(r.calls, "update:"+event.Next.ID)
}

func (r *recordingHooks) AfterHelperJoined(ctx context.Context, event HelperJoined) {
	r.calls = append(r.calls, "joined:"+event.Registration.ID)
}

func (r *recordingHooks) AfterMessageSaved(ctx context.Context, event MessageSaved) {
	r.calls = append(r.calls, "message:"+event.Message.ID)
}

func TestRegistry_DeliversToAllHooks(t *testing.T) {
	first := &recordingHooks{}
	second := &recordingHooks{}
	registry := NewRegistry(first, second)
	ctx := context.Background()

	registry.BeforeShiftDelete(ctx, ShiftDeleting{Shift: model.Shift{ID: "s1"}})
	registry.BeforeShiftUpdate(ctx, ShiftUpdating{Next: model.Shift{ID: "s2"}})
	registry.AfterHelperJoined(ctx, HelperJoined{Registration: model.HelperRegistration{ID: "r1"}})
	registry.AfterMessageSaved(ctx, MessageSaved{Message: model.BroadcastMessage{ID: "m1"}})

	expected := []string{"delete:s1", "update:s2", "joined:r1", "message:m1"}
	assert.Equal(t, expected, first.calls)
	assert.Equal(t, expected, second.calls)
}

func TestRegistry_Unregister(t *testing.T) {
	hooks := &recordingHooks{}
	registry := &Registry{}

	unregister := registry.Register(hooks)
	assert.Equal(t, 1, registry.Len())

	unregister()
	assert.Equal(t, 0, registry.Len())

	registry.BeforeShiftDelete(context.Background(), ShiftDeleting{Shift: model.Shift{ID: "s1"}})
	assert.Empty(t, hooks.calls)
}

func TestRegistry_NilIsSilent(t *testing.T) {
	var registry *Registry

	assert.NotPanics(t, func() {
		registry.AfterHelperJoined(context.Background(), HelperJoined{})
	})
}
