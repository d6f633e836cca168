package notify

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/db"
)

// mockMailer records every email and fails sends addressed to failFor
type mockMailer struct {
	mu      sync.Mutex
	emails  []Email
	failFor []string
	err     error
}

func (m *mockMailer) Send(ctx context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	if m.err != nil {
		return m.err
	}
	for _, address := range email.Recipients() {
		if slices.Contains(m.failFor, address) {
			return errors.New("mailbox unavailable")
		}
	}
	return nil
}

func (m *mockMailer) sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.emails)
}

type mockExporter struct {
	events []CalendarEvent
	err    error
}

func (m *mockExporter) Export(ctx context.Context, event CalendarEvent) error {
	m.events = append(m.events, event)
	return m.err
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var testConfig = Config{
	FromAddress:       "planner@example.org",
	NoReplyAddress:    "noreply@example.org",
	OperationsAddress: "ops@example.org",
	Location:          time.UTC,
}

func newTestDispatcher(t *testing.T, mailer Mailer, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	d, err := NewDispatcher(testConfig, mailer, zap.NewNop(), opts...)
	require.NoError(t, err)
	return d
}

func shiftAt(id string, start time.Time, d time.Duration) model.Shift {
	return model.Shift{
		ID:           id,
		StartingTime: start,
		EndingTime:   start.Add(d),
		Facility:     model.Facility{ID: "f1", Name: "Central Station", Place: "Platform 3", ContactInfo: "call 0123"},
		Task:         model.Task{ID: "t1", Name: "Food distribution"},
		Workplace:    model.Workplace{ID: "w1", Name: "Tent A"},
	}
}

func helper(id, email string) model.Helper {
	return model.Helper{VolunteerID: id, FirstName: id, Email: email}
}

var tomorrow10 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func TestNotifyShiftCancelled_FutureShiftBccsAllHelpers(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift:   shiftAt("d", tomorrow10, 2*time.Hour),
		Helpers: []model.Helper{helper("v1", "one@example.com"), helper("v2", "two@example.com")},
	})

	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, report.Failures)

	emails := mailer.sent()
	require.Len(t, emails, 1)
	assert.Equal(t, []string{"ops@example.org"}, emails[0].To)
	assert.Equal(t, []string{"ops@example.org"}, emails[0].ReplyTo)
	assert.ElementsMatch(t, []string{"one@example.com", "two@example.com"}, emails[0].Bcc)
	assert.Equal(t, "planner@example.org", emails[0].From)
	assert.Equal(t, "Shift on 02.06.25 was cancelled", emails[0].Subject)
	assert.Contains(t, emails[0].Body, "Central Station")
}

func TestNotifyShiftCancelled_PastShiftIsSilent(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift:   shiftAt("e", now.Add(-26*time.Hour), 2*time.Hour),
		Helpers: []model.Helper{helper("v1", "one@example.com")},
	})

	assert.Equal(t, ReasonPastShift, report.Reason)
	assert.Empty(t, mailer.sent())
}

func TestNotifyShiftCancelled_ShiftEndingNowStillNotifies(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift:   shiftAt("now", now.Add(-time.Hour), time.Hour),
		Helpers: []model.Helper{helper("v1", "one@example.com")},
	})

	assert.Equal(t, 1, report.Sent)
}

func TestNotifyShiftCancelled_NoHelpers(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift: shiftAt("d", tomorrow10, time.Hour),
	})

	assert.Equal(t, ReasonNoRecipients, report.Reason)
	assert.Empty(t, mailer.sent())
}

func TestNotifyShiftCancelled_DeduplicatesAndSkipsInvalidAddresses(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift: shiftAt("d", tomorrow10, time.Hour),
		Helpers: []model.Helper{
			helper("v1", "one@example.com"),
			helper("v1b", " ONE@example.com "),
			helper("v2", "not-an-address"),
			helper("v3", ""),
		},
	})

	assert.Equal(t, 2, report.Skipped)
	emails := mailer.sent()
	require.Len(t, emails, 1)
	assert.Equal(t, []string{"one@example.com"}, emails[0].Bcc)
}

func TestNotifyShiftModified(t *testing.T) {
	helpers := []model.Helper{helper("v1", "one@example.com"), helper("v2", "two@example.com")}
	original := shiftAt("d", tomorrow10, 2*time.Hour)

	tests := []struct {
		name       string
		previous   model.Shift
		nextStart  time.Time
		nextEnd    time.Time
		wantSent   bool
		wantReason string
	}{
		{
			name:       "unchanged",
			previous:   original,
			nextStart:  original.StartingTime,
			nextEnd:    original.EndingTime,
			wantReason: ReasonImmaterial,
		},
		{
			name:       "start moved three minutes",
			previous:   original,
			nextStart:  original.StartingTime.Add(3 * time.Minute),
			nextEnd:    original.EndingTime,
			wantReason: ReasonImmaterial,
		},
		{
			name:       "start moved exactly the grace",
			previous:   original,
			nextStart:  original.StartingTime.Add(5 * time.Minute),
			nextEnd:    original.EndingTime,
			wantReason: ReasonImmaterial,
		},
		{
			name:      "start moved ten minutes",
			previous:  original,
			nextStart: original.StartingTime.Add(10 * time.Minute),
			nextEnd:   original.EndingTime,
			wantSent:  true,
		},
		{
			name:      "end moved an hour earlier",
			previous:  original,
			nextStart: original.StartingTime,
			nextEnd:   original.EndingTime.Add(-time.Hour),
			wantSent:  true,
		},
		{
			name:       "previous start already past",
			previous:   shiftAt("d", now.Add(-time.Hour), 2*time.Hour),
			nextStart:  now.Add(2 * time.Hour),
			nextEnd:    now.Add(4 * time.Hour),
			wantReason: ReasonPastShift,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mockMailer{}
			d := newTestDispatcher(t, mailer)

			next := tt.previous
			next.StartingTime = tt.nextStart
			next.EndingTime = tt.nextEnd

			report := d.NotifyShiftModified(context.Background(), lifecycle.ShiftUpdating{
				Previous: tt.previous,
				Next:     next,
				Helpers:  helpers,
			})

			assert.Equal(t, tt.wantReason, report.Reason)
			if !tt.wantSent {
				assert.Empty(t, mailer.sent())
				return
			}
			emails := mailer.sent()
			require.Len(t, emails, 1)
			assert.ElementsMatch(t, []string{"one@example.com", "two@example.com"}, emails[0].Bcc)
			assert.Equal(t, []string{"ops@example.org"}, emails[0].To)
			assert.Contains(t, emails[0].Body, tt.previous.StartingTime.Format("15:04"))
			assert.Contains(t, emails[0].Body, next.EndingTime.Format("15:04"))
			assert.Contains(t, emails[0].Subject, "Food distribution")
		})
	}
}

func TestNotifyHelperSubscribed(t *testing.T) {
	mailer := &mockMailer{}
	exporter := &mockExporter{}
	d := newTestDispatcher(t, mailer, WithCalendarExporter(exporter))
	shift := shiftAt("d", tomorrow10, 2*time.Hour)

	report := d.NotifyHelperSubscribed(context.Background(), lifecycle.HelperJoined{
		Registration: model.HelperRegistration{ID: "r1", ShiftID: "d", VolunteerID: "v1"},
		Shift:        shift,
		Volunteer:    model.Volunteer{ID: "v1", FirstName: "Ada", Email: "ada@example.com"},
	})

	assert.Equal(t, 1, report.Sent)
	assert.Empty(t, report.Failures)

	require.Len(t, exporter.events, 1)
	event := exporter.events[0]
	assert.Equal(t, shift.ICalUID(), event.UID)
	assert.Equal(t, "Volunteering at: Central Station Tent A", event.Title)
	assert.Equal(t, "call 0123", event.Description)
	assert.Equal(t, "Platform 3", event.Location)
	assert.Equal(t, shift.StartingTime, event.Start)
	assert.Equal(t, shift.EndingTime, event.End)

	emails := mailer.sent()
	require.Len(t, emails, 1)
	assert.Equal(t, []string{"ada@example.com"}, emails[0].To)
	assert.Empty(t, emails[0].Bcc)
	assert.Equal(t, "noreply@example.org", emails[0].From)
	assert.Contains(t, emails[0].Body, "Hello Ada")
}

func TestNotifyHelperSubscribed_ExportAndEmailFailIndependently(t *testing.T) {
	event := lifecycle.HelperJoined{
		Registration: model.HelperRegistration{ID: "r1"},
		Shift:        shiftAt("d", tomorrow10, time.Hour),
		Volunteer:    model.Volunteer{ID: "v1", Email: "ada@example.com"},
	}

	t.Run("export fails", func(t *testing.T) {
		mailer := &mockMailer{}
		d := newTestDispatcher(t, mailer, WithCalendarExporter(&mockExporter{err: errors.New("disk full")}))

		report := d.NotifyHelperSubscribed(context.Background(), event)

		assert.Equal(t, 1, report.Sent)
		require.Len(t, report.Failures, 1)
		assert.Empty(t, report.Failures[0].Recipient)
		assert.Len(t, mailer.sent(), 1)
	})

	t.Run("email fails", func(t *testing.T) {
		exporter := &mockExporter{}
		d := newTestDispatcher(t, &mockMailer{err: errors.New("smtp down")}, WithCalendarExporter(exporter))

		report := d.NotifyHelperSubscribed(context.Background(), event)

		assert.Equal(t, 0, report.Sent)
		require.Len(t, report.Failures, 1)
		assert.Equal(t, "ada@example.com", report.Failures[0].Recipient)
		assert.Len(t, exporter.events, 1)
	})
}

func TestNotifyBroadcast_OneSendPerRecipient(t *testing.T) {
	mailer := &mockMailer{failFor: []string{"two@example.com"}}
	d := newTestDispatcher(t, mailer)

	report := d.NotifyBroadcast(context.Background(), lifecycle.MessageSaved{
		Message: model.BroadcastMessage{
			ID:      "m1",
			ShiftID: "d",
			Sender:  helper("boss", "boss@example.com"),
			Body:    "Please bring gloves",
			Recipients: []model.Helper{
				helper("One", "one@example.com"),
				helper("Two", "two@example.com"),
				helper("Three", "three@example.com"),
			},
		},
		Shift:   shiftAt("d", tomorrow10, time.Hour),
		Created: true,
	})

	emails := mailer.sent()
	require.Len(t, emails, 3)
	for i, want := range []string{"one@example.com", "two@example.com", "three@example.com"} {
		assert.Equal(t, []string{want}, emails[i].To)
		assert.Empty(t, emails[i].Bcc)
		assert.Equal(t, []string{"boss@example.com"}, emails[i].ReplyTo)
		assert.Equal(t, "noreply@example.org", emails[i].From)
		assert.Contains(t, emails[i].Body, "Please bring gloves")
	}
	assert.Contains(t, emails[0].Body, "Hello One")
	assert.Contains(t, emails[2].Body, "Hello Three")

	assert.Equal(t, 2, report.Sent)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "two@example.com", report.Failures[0].Recipient)
	assert.Error(t, report.Err())
}

func TestNotifyBroadcast_Skips(t *testing.T) {
	recipients := []model.Helper{helper("One", "one@example.com")}

	t.Run("resave", func(t *testing.T) {
		mailer := &mockMailer{}
		d := newTestDispatcher(t, mailer)

		report := d.NotifyBroadcast(context.Background(), lifecycle.MessageSaved{
			Message: model.BroadcastMessage{ID: "m1", Sender: helper("boss", "boss@example.com"), Recipients: recipients},
			Created: false,
		})

		assert.Equal(t, ReasonResave, report.Reason)
		assert.Empty(t, mailer.sent())
	})

	t.Run("sender without email", func(t *testing.T) {
		mailer := &mockMailer{}
		d := newTestDispatcher(t, mailer)

		report := d.NotifyBroadcast(context.Background(), lifecycle.MessageSaved{
			Message: model.BroadcastMessage{ID: "m1", Sender: helper("boss", ""), Recipients: recipients},
			Created: true,
		})

		assert.Equal(t, ReasonSenderNoAddress, report.Reason)
		assert.Empty(t, mailer.sent())
	})
}

func TestDispatcher_DedupWindowSuppressesRepeats(t *testing.T) {
	mailer := &mockMailer{}
	cfg := testConfig
	cfg.DedupWindow = time.Minute
	d, err := NewDispatcher(cfg, mailer, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	event := lifecycle.ShiftDeleting{
		Shift:   shiftAt("d", tomorrow10, time.Hour),
		Helpers: []model.Helper{helper("v1", "one@example.com")},
	}
	first := d.NotifyShiftCancelled(context.Background(), event)
	second := d.NotifyShiftCancelled(context.Background(), event)

	assert.Equal(t, 1, first.Sent)
	assert.Equal(t, ReasonDuplicate, second.Reason)
	assert.Len(t, mailer.sent(), 1)
}

func TestDispatcher_DedupWindowAllowsMovingBack(t *testing.T) {
	mailer := &mockMailer{}
	cfg := testConfig
	cfg.DedupWindow = time.Minute
	d, err := NewDispatcher(cfg, mailer, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	helpers := []model.Helper{helper("v1", "one@example.com")}
	atA := shiftAt("d", tomorrow10, time.Hour)
	atB := shiftAt("d", tomorrow10.Add(2*time.Hour), time.Hour)

	edits := []lifecycle.ShiftUpdating{
		{Previous: atA, Next: atB, Helpers: helpers},
		{Previous: atB, Next: atA, Helpers: helpers},
		{Previous: atA, Next: atB, Helpers: helpers},
	}
	for _, edit := range edits {
		report := d.NotifyShiftModified(context.Background(), edit)
		assert.Equal(t, 1, report.Sent)
	}
	assert.Len(t, mailer.sent(), 3)

	// the same write delivered twice is still suppressed
	repeat := d.NotifyShiftModified(context.Background(), edits[2])
	assert.Equal(t, ReasonDuplicate, repeat.Reason)
	assert.Len(t, mailer.sent(), 3)
}

func TestDispatcher_SendTimeoutIsTransportError(t *testing.T) {
	blocking := MailerFunc(func(ctx context.Context, email Email) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := testConfig
	cfg.SendTimeout = 10 * time.Millisecond
	d, err := NewDispatcher(cfg, blocking, zap.NewNop(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	report := d.NotifyShiftCancelled(context.Background(), lifecycle.ShiftDeleting{
		Shift:   shiftAt("d", tomorrow10, time.Hour),
		Helpers: []model.Helper{helper("v1", "one@example.com")},
	})

	require.Len(t, report.Failures, 1)
	assert.True(t, report.Failures[0].Timeout())
	assert.ErrorIs(t, report.Err(), context.DeadlineExceeded)
}

func TestDispatcher_HooksLogFailuresAtBoundary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d, err := NewDispatcher(testConfig, &mockMailer{err: errors.New("smtp down")}, zap.New(core),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		d.BeforeShiftDelete(context.Background(), lifecycle.ShiftDeleting{
			Shift:   shiftAt("d", tomorrow10, time.Hour),
			Helpers: []model.Helper{helper("v1", "one@example.com")},
		})
	})

	failures := logs.FilterMessage("Failed to deliver notification").All()
	require.Len(t, failures, 1)
	assert.Equal(t, string(KindShiftCancelled), failures[0].ContextMap()["kind"])
	assert.Equal(t, "d", failures[0].ContextMap()["entity"])
}

func TestDispatcher_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(t, err)

	mailer := &mockMailer{failFor: []string{"two@example.com"}}
	d := newTestDispatcher(t, mailer, WithMetrics(metrics))

	d.NotifyBroadcast(context.Background(), lifecycle.MessageSaved{
		Message: model.BroadcastMessage{
			ID:     "m1",
			Sender: helper("boss", "boss@example.com"),
			Recipients: []model.Helper{
				helper("One", "one@example.com"),
				helper("Two", "two@example.com"),
				helper("Bad", "nope"),
			},
		},
		Created: true,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SendsTotal.WithLabelValues(string(KindBroadcastSent), "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SendsTotal.WithLabelValues(string(KindBroadcastSent), "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SendErrors.WithLabelValues(string(KindBroadcastSent), "transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SkippedTotal.WithLabelValues(string(KindBroadcastSent), "invalid_address")))
}

func TestDispatcher_WiredToMemoryStore(t *testing.T) {
	mailer := &mockMailer{}
	d := newTestDispatcher(t, mailer)
	registry := lifecycle.NewRegistry()
	unregister := registry.Register(d)
	defer unregister()

	store := db.NewMemoryDB(registry)
	ctx := context.Background()

	future := shiftAt("d", tomorrow10, 2*time.Hour)
	past := shiftAt("e", now.Add(-26*time.Hour), 2*time.Hour)
	require.NoError(t, store.CreateShift(ctx, &future))
	require.NoError(t, store.CreateShift(ctx, &past))

	for _, v := range []model.Volunteer{
		{ID: "v1", FirstName: "One", Email: "one@example.com"},
		{ID: "v2", FirstName: "Two", Email: "two@example.com"},
	} {
		require.NoError(t, store.CreateVolunteer(ctx, &v))
		_, _, err := store.RegisterHelper(ctx, v.ID, "d", nil)
		require.NoError(t, err)
		_, _, err = store.RegisterHelper(ctx, v.ID, "e", nil)
		require.NoError(t, err)
	}

	// Four confirmations so far
	require.Len(t, mailer.sent(), 4)

	require.NoError(t, store.DeleteShift(ctx, "d"))
	require.NoError(t, store.DeleteShift(ctx, "e"))

	emails := mailer.sent()[4:]
	require.Len(t, emails, 1)
	assert.ElementsMatch(t, []string{"one@example.com", "two@example.com"}, emails[0].Bcc)
	assert.Equal(t, "Shift on 02.06.25 was cancelled", emails[0].Subject)
}
