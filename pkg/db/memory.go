package db

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
)

// MemoryDB is an in-process Database used for local runs and tests.
// It delivers the same lifecycle hooks at the same points as postgres.DB.
type MemoryDB struct {
	hooks *lifecycle.Registry
	now   func() time.Time

	mu            sync.RWMutex
	shifts        map[string]model.Shift
	volunteers    map[string]model.Volunteer
	registrations map[string]model.HelperRegistration
	messages      map[string]model.BroadcastMessage

	// shiftWriteMu serialises read-previous/hook/write sequences on shifts
	shiftWriteMu sync.Mutex
	accountLocks sync.Map // volunteer ID -> *sync.Mutex
}

// NewMemoryDB creates an empty in-memory database delivering events to hooks.
// hooks may be nil.
func NewMemoryDB(hooks *lifecycle.Registry) *MemoryDB {
	return &MemoryDB{
		hooks:         hooks,
		now:           time.Now,
		shifts:        make(map[string]model.Shift),
		volunteers:    make(map[string]model.Volunteer),
		registrations: make(map[string]model.HelperRegistration),
		messages:      make(map[string]model.BroadcastMessage),
	}
}

// SetClock overrides the clock used for timestamps
func (m *MemoryDB) SetClock(now func() time.Time) {
	m.now = now
}

func (m *MemoryDB) accountLock(volunteerID string) *sync.Mutex {
	lock, _ := m.accountLocks.LoadOrStore(volunteerID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateShift inserts a new shift, generating an ID if none is set
func (m *MemoryDB) CreateShift(ctx context.Context, shift *model.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if shift.ID == "" {
		shift.ID = uuid.New().String()
	}
	if _, exists := m.shifts[shift.ID]; exists {
		return fmt.Errorf("failed to insert shift %s: %w", shift.ID, ErrAlreadyExists)
	}
	m.shifts[shift.ID] = *shift
	return nil
}

// GetShift retrieves a shift by ID
func (m *MemoryDB) GetShift(ctx context.Context, id string) (*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shift, ok := m.shifts[id]
	if !ok {
		return nil, fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}
	return &shift, nil
}

// ListShifts returns shifts ordered by facility then ending time
func (m *MemoryDB) ListShifts(ctx context.Context, filter ShiftFilter) ([]model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shifts := []model.Shift{}
	for _, shift := range m.shifts {
		if filter.FacilityID != "" && shift.Facility.ID != filter.FacilityID {
			continue
		}
		if !filter.EndingAfter.IsZero() && !shift.EndingTime.After(filter.EndingAfter) {
			continue
		}
		shifts = append(shifts, shift)
	}
	sortShifts(shifts)
	return shifts, nil
}

// UpdateShift overwrites a stored shift. The previous row is re-read and handed to
// the BeforeShiftUpdate hooks before the new values are stored.
func (m *MemoryDB) UpdateShift(ctx context.Context, shift *model.Shift) error {
	m.shiftWriteMu.Lock()
	defer m.shiftWriteMu.Unlock()

	m.mu.RLock()
	previous, ok := m.shifts[shift.ID]
	helpers := m.shiftHelpersLocked(shift.ID)
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("shift %s: %w", shift.ID, ErrNotFound)
	}

	m.hooks.BeforeShiftUpdate(ctx, lifecycle.ShiftUpdating{
		Previous: previous,
		Next:     *shift,
		Helpers:  helpers,
	})

	m.mu.Lock()
	m.shifts[shift.ID] = *shift
	m.mu.Unlock()
	return nil
}

// DeleteShift removes a shift together with its registrations and messages.
// BeforeShiftDelete hooks run while the registrations still exist.
func (m *MemoryDB) DeleteShift(ctx context.Context, id string) error {
	m.shiftWriteMu.Lock()
	defer m.shiftWriteMu.Unlock()

	m.mu.RLock()
	shift, ok := m.shifts[id]
	helpers := m.shiftHelpersLocked(id)
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("shift %s: %w", id, ErrNotFound)
	}

	m.hooks.BeforeShiftDelete(ctx, lifecycle.ShiftDeleting{Shift: shift, Helpers: helpers})

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shifts, id)
	affected := map[string]bool{}
	for regID, reg := range m.registrations {
		if reg.ShiftID == id {
			affected[reg.VolunteerID] = true
			delete(m.registrations, regID)
		}
	}
	for msgID, msg := range m.messages {
		if msg.ShiftID == id {
			delete(m.messages, msgID)
		}
	}
	for volunteerID := range affected {
		m.refreshVolunteerLocked(volunteerID)
	}
	return nil
}

// GetShiftHelpers returns the contacts of everyone registered for the shift
func (m *MemoryDB) GetShiftHelpers(ctx context.Context, shiftID string) ([]model.Helper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.shifts[shiftID]; !ok {
		return nil, fmt.Errorf("shift %s: %w", shiftID, ErrNotFound)
	}
	return m.shiftHelpersLocked(shiftID), nil
}

func (m *MemoryDB) shiftHelpersLocked(shiftID string) []model.Helper {
	regs := []model.HelperRegistration{}
	for _, reg := range m.registrations {
		if reg.ShiftID == shiftID {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		if !regs[i].CreatedAt.Equal(regs[j].CreatedAt) {
			return regs[i].CreatedAt.Before(regs[j].CreatedAt)
		}
		return regs[i].VolunteerID < regs[j].VolunteerID
	})

	helpers := make([]model.Helper, 0, len(regs))
	for _, reg := range regs {
		if volunteer, ok := m.volunteers[reg.VolunteerID]; ok {
			helpers = append(helpers, volunteer.Helper())
		}
	}
	return helpers
}

// CreateVolunteer inserts a new volunteer account, generating an ID if none is set
func (m *MemoryDB) CreateVolunteer(ctx context.Context, volunteer *model.Volunteer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if volunteer.ID == "" {
		volunteer.ID = uuid.New().String()
	}
	if _, exists := m.volunteers[volunteer.ID]; exists {
		return fmt.Errorf("failed to insert volunteer %s: %w", volunteer.ID, ErrAlreadyExists)
	}
	volunteer.UpdatedAt = m.now()
	m.volunteers[volunteer.ID] = *volunteer
	return nil
}

// GetVolunteer retrieves a volunteer account by ID
func (m *MemoryDB) GetVolunteer(ctx context.Context, id string) (*model.Volunteer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	volunteer, ok := m.volunteers[id]
	if !ok {
		return nil, fmt.Errorf("volunteer %s: %w", id, ErrNotFound)
	}
	return &volunteer, nil
}

// GetVolunteerShifts returns every shift the volunteer is registered for
func (m *MemoryDB) GetVolunteerShifts(ctx context.Context, volunteerID string) ([]model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.volunteers[volunteerID]; !ok {
		return nil, fmt.Errorf("volunteer %s: %w", volunteerID, ErrNotFound)
	}
	shifts := m.volunteerShiftsLocked(volunteerID)
	sortShifts(shifts)
	return shifts, nil
}

func (m *MemoryDB) volunteerShiftsLocked(volunteerID string) []model.Shift {
	shifts := []model.Shift{}
	for _, reg := range m.registrations {
		if reg.VolunteerID != volunteerID {
			continue
		}
		if shift, ok := m.shifts[reg.ShiftID]; ok {
			shifts = append(shifts, shift)
		}
	}
	return shifts
}

func (m *MemoryDB) findRegistrationLocked(volunteerID, shiftID string) (model.HelperRegistration, bool) {
	for _, reg := range m.registrations {
		if reg.VolunteerID == volunteerID && reg.ShiftID == shiftID {
			return reg, true
		}
	}
	return model.HelperRegistration{}, false
}

// refreshVolunteerLocked recomputes the denormalised summary and stamps the account
func (m *MemoryDB) refreshVolunteerLocked(volunteerID string) {
	volunteer, ok := m.volunteers[volunteerID]
	if !ok {
		return
	}
	count := 0
	for _, reg := range m.registrations {
		if reg.VolunteerID == volunteerID {
			count++
		}
	}
	volunteer.ShiftCount = count
	volunteer.UpdatedAt = m.now()
	m.volunteers[volunteerID] = volunteer
}

// RegisterHelper binds a volunteer to a shift if check accepts it
func (m *MemoryDB) RegisterHelper(ctx context.Context, volunteerID, shiftID string, check RegistrationCheck) (*model.HelperRegistration, bool, error) {
	lock := m.accountLock(volunteerID)
	lock.Lock()

	reg, created, event, err := m.registerLocked(volunteerID, shiftID, check)
	lock.Unlock()
	if err != nil {
		return nil, false, err
	}

	if created {
		m.hooks.AfterHelperJoined(ctx, event)
	}
	return reg, created, nil
}

func (m *MemoryDB) registerLocked(volunteerID, shiftID string, check RegistrationCheck) (*model.HelperRegistration, bool, lifecycle.HelperJoined, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	volunteer, ok := m.volunteers[volunteerID]
	if !ok {
		return nil, false, lifecycle.HelperJoined{}, fmt.Errorf("volunteer %s: %w", volunteerID, ErrNotFound)
	}
	// The account is persisted once whatever the outcome
	defer m.refreshVolunteerLocked(volunteerID)

	candidate, ok := m.shifts[shiftID]
	if !ok {
		return nil, false, lifecycle.HelperJoined{}, fmt.Errorf("shift %s: %w", shiftID, ErrNotFound)
	}

	if existing, ok := m.findRegistrationLocked(volunteerID, shiftID); ok {
		return &existing, false, lifecycle.HelperJoined{}, nil
	}

	if check != nil {
		if err := check(candidate, m.volunteerShiftsLocked(volunteerID)); err != nil {
			return nil, false, lifecycle.HelperJoined{}, err
		}
	}

	reg := model.HelperRegistration{
		ID:          uuid.New().String(),
		ShiftID:     shiftID,
		VolunteerID: volunteerID,
		CreatedAt:   m.now(),
	}
	m.registrations[reg.ID] = reg

	volunteer.ShiftCount++
	event := lifecycle.HelperJoined{
		Registration: reg,
		Shift:        candidate,
		Volunteer:    volunteer,
	}
	return &reg, true, event, nil
}

// UnregisterHelper removes the volunteer's registration for the shift if present
func (m *MemoryDB) UnregisterHelper(ctx context.Context, volunteerID, shiftID string) (bool, error) {
	lock := m.accountLock(volunteerID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.volunteers[volunteerID]; !ok {
		return false, fmt.Errorf("volunteer %s: %w", volunteerID, ErrNotFound)
	}
	defer m.refreshVolunteerLocked(volunteerID)

	if _, ok := m.shifts[shiftID]; !ok {
		return false, fmt.Errorf("shift %s: %w", shiftID, ErrNotFound)
	}

	reg, ok := m.findRegistrationLocked(volunteerID, shiftID)
	if !ok {
		return false, nil
	}
	delete(m.registrations, reg.ID)
	for id, msg := range m.messages {
		if msg.ShiftID != shiftID {
			continue
		}
		msg.Recipients = slices.DeleteFunc(slices.Clone(msg.Recipients), func(h model.Helper) bool {
			return h.VolunteerID == volunteerID
		})
		m.messages[id] = msg
	}
	return true, nil
}

// CreateBroadcastMessage stores a new message and delivers AfterMessageSaved with Created set
func (m *MemoryDB) CreateBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error {
	m.mu.Lock()
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if _, exists := m.messages[message.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("failed to insert message %s: %w", message.ID, ErrAlreadyExists)
	}
	shift, ok := m.shifts[message.ShiftID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("shift %s: %w", message.ShiftID, ErrNotFound)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = m.now()
	}
	stored := *message
	stored.Recipients = slices.Clone(message.Recipients)
	m.messages[message.ID] = stored
	m.mu.Unlock()

	m.hooks.AfterMessageSaved(ctx, lifecycle.MessageSaved{Message: stored, Shift: shift, Created: true})
	return nil
}

// SaveBroadcastMessage re-saves an existing message and delivers AfterMessageSaved without Created
func (m *MemoryDB) SaveBroadcastMessage(ctx context.Context, message *model.BroadcastMessage) error {
	m.mu.Lock()
	if _, exists := m.messages[message.ID]; !exists {
		m.mu.Unlock()
		return fmt.Errorf("message %s: %w", message.ID, ErrNotFound)
	}
	shift := m.shifts[message.ShiftID]
	stored := *message
	stored.Recipients = slices.Clone(message.Recipients)
	m.messages[message.ID] = stored
	m.mu.Unlock()

	m.hooks.AfterMessageSaved(ctx, lifecycle.MessageSaved{Message: stored, Shift: shift, Created: false})
	return nil
}

// GetBroadcastMessage retrieves a message by ID
func (m *MemoryDB) GetBroadcastMessage(ctx context.Context, id string) (*model.BroadcastMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	msg.Recipients = slices.Clone(msg.Recipients)
	return &msg, nil
}

// sortShifts orders shifts by facility name, then ending time, then ID
func sortShifts(shifts []model.Shift) {
	sort.Slice(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if a.Facility.Name != b.Facility.Name {
			return a.Facility.Name < b.Facility.Name
		}
		if !a.EndingTime.Equal(b.EndingTime) {
			return a.EndingTime.Before(b.EndingTime)
		}
		return a.ID < b.ID
	})
}
