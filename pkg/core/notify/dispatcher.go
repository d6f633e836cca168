// Package notify sends the emails that follow shift lifecycle events.
//
// Dispatcher implements lifecycle.Hooks. Every handler is best-effort: transport
// failures are collected into a Report as *TransportError values and logged when the
// hook returns, they never reach the store that fired the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-planner/pkg/core/lifecycle"
	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/core/timeslot"
)

const (
	defaultSendTimeout  = 30 * time.Second
	dedupPurgeThreshold = 1024
)

// Skip reasons reported for whole events
const (
	ReasonPastShift       = "past_shift"
	ReasonImmaterial      = "immaterial_change"
	ReasonNoRecipients    = "no_recipients"
	ReasonDuplicate       = "duplicate"
	ReasonResave          = "resave"
	ReasonSenderNoAddress = "sender_without_email"
)

// Config holds the addresses and limits the dispatcher works with
type Config struct {
	// FromAddress sends cancellation and modification notices
	FromAddress string
	// NoReplyAddress sends confirmations and broadcasts
	NoReplyAddress string
	// OperationsAddress is the visible To of batched notices
	OperationsAddress string
	// Grace is the largest start or end shift that does not count as a change.
	// Defaults to timeslot.DefaultGrace.
	Grace time.Duration
	// SendTimeout bounds every Mailer.Send and calendar export. Defaults to 30s.
	SendTimeout time.Duration
	// DedupWindow suppresses repeated identical notifications. Zero disables it.
	DedupWindow time.Duration
	// Location formats dates in emails. Defaults to time.Local.
	Location *time.Location
}

// Report summarises one handler run
type Report struct {
	Kind   Kind
	Entity string
	// Reason is set when the whole event was skipped
	Reason   string
	Sent     int
	Skipped  int // recipients dropped for a missing or malformed address
	Failures []*TransportError
}

// Failed returns the number of failed sends and exports
func (r Report) Failed() int {
	return len(r.Failures)
}

// Err joins all failures, or returns nil when there were none
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Dispatcher turns lifecycle events into emails and calendar exports
type Dispatcher struct {
	cfg      Config
	mailer   Mailer
	calendar CalendarExporter
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
	render   *renderer
	validate *validator.Validate
	recent   *cache.Cache
	latestMu sync.Mutex
}

var _ lifecycle.Hooks = (*Dispatcher)(nil)

// Option configures optional dispatcher collaborators
type Option func(*Dispatcher)

// WithCalendarExporter exports a calendar event for every new registration
func WithCalendarExporter(exporter CalendarExporter) Option {
	return func(d *Dispatcher) { d.calendar = exporter }
}

// WithMetrics records delivery metrics
func WithMetrics(metrics *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// WithClock overrides the clock used to decide whether a shift is in the past
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher sending through mailer
func NewDispatcher(cfg Config, mailer Mailer, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if cfg.Grace <= 0 {
		cfg.Grace = timeslot.DefaultGrace
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	render, err := newRenderer(cfg.Location)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		cfg:      cfg,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
		render:   render,
		validate: validator.New(),
	}
	if cfg.DedupWindow > 0 {
		// No janitor goroutine: expired keys are purged in claim
		d.recent = cache.New(cfg.DedupWindow, 0)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// BeforeShiftDelete implements lifecycle.Hooks
func (d *Dispatcher) BeforeShiftDelete(ctx context.Context, event lifecycle.ShiftDeleting) {
	d.logReport(d.NotifyShiftCancelled(ctx, event))
}

// BeforeShiftUpdate implements lifecycle.Hooks
func (d *Dispatcher) BeforeShiftUpdate(ctx context.Context, event lifecycle.ShiftUpdating) {
	d.logReport(d.NotifyShiftModified(ctx, event))
}

// AfterHelperJoined implements lifecycle.Hooks
func (d *Dispatcher) AfterHelperJoined(ctx context.Context, event lifecycle.HelperJoined) {
	d.logReport(d.NotifyHelperSubscribed(ctx, event))
}

// AfterMessageSaved implements lifecycle.Hooks
func (d *Dispatcher) AfterMessageSaved(ctx context.Context, event lifecycle.MessageSaved) {
	d.logReport(d.NotifyBroadcast(ctx, event))
}

// NotifyShiftCancelled tells the helpers of a future shift that it was cancelled.
// One email goes to the operations address with every helper in Bcc.
func (d *Dispatcher) NotifyShiftCancelled(ctx context.Context, event lifecycle.ShiftDeleting) Report {
	shift := event.Shift
	report := Report{Kind: KindShiftCancelled, Entity: shift.ID}

	if shift.EndingTime.Before(d.now()) {
		return d.skip(report, ReasonPastShift)
	}

	recipients := d.usableAddresses(&report, event.Helpers)
	if len(recipients) == 0 {
		return d.skip(report, ReasonNoRecipients)
	}
	if !d.claim(KindShiftCancelled, shift.ID) {
		return d.skip(report, ReasonDuplicate)
	}

	subject, body, err := d.render.shiftCancelled(shift)
	if err != nil {
		return d.fail(report, "", err)
	}

	d.logger.Info("Sending shift cancellation",
		zap.String("shift_id", shift.ID),
		zap.String("facility", shift.Facility.Name),
		zap.Time("starting_time", shift.StartingTime),
		zap.Int("recipients", len(recipients)))

	d.send(ctx, &report, "", Email{
		From:    d.cfg.FromAddress,
		To:      []string{d.cfg.OperationsAddress},
		ReplyTo: []string{d.cfg.OperationsAddress},
		Bcc:     recipients,
		Subject: subject,
		Body:    body,
	})
	return report
}

// NotifyShiftModified tells the helpers of a future shift that its times moved by
// more than the grace duration. Previous must be the stored row read before the write.
func (d *Dispatcher) NotifyShiftModified(ctx context.Context, event lifecycle.ShiftUpdating) Report {
	prev, next := event.Previous, event.Next
	report := Report{Kind: KindShiftModified, Entity: prev.ID}

	if prev.StartingTime.Before(d.now()) {
		return d.skip(report, ReasonPastShift)
	}
	if !timeslot.MateriallyChanged(prev.StartingTime, prev.EndingTime, next.StartingTime, next.EndingTime, d.cfg.Grace) {
		return d.skip(report, ReasonImmaterial)
	}

	recipients := d.usableAddresses(&report, event.Helpers)
	if len(recipients) == 0 {
		return d.skip(report, ReasonNoRecipients)
	}

	transition := fmt.Sprintf("%d|%d|%d|%d",
		prev.StartingTime.UnixNano(), prev.EndingTime.UnixNano(),
		next.StartingTime.UnixNano(), next.EndingTime.UnixNano())
	if !d.claimLatest(KindShiftModified, prev.ID, transition) {
		return d.skip(report, ReasonDuplicate)
	}

	subject, body, err := d.render.shiftModified(event)
	if err != nil {
		return d.fail(report, "", err)
	}

	d.logger.Info("Shift changed, notifying helpers",
		zap.String("shift_id", prev.ID),
		zap.String("task", next.Task.Name),
		zap.String("facility", next.Facility.Name),
		zap.Time("old_start", prev.StartingTime),
		zap.Time("old_end", prev.EndingTime),
		zap.Time("new_start", next.StartingTime),
		zap.Time("new_end", next.EndingTime),
		zap.Int("recipients", len(recipients)))

	d.send(ctx, &report, "", Email{
		From:    d.cfg.FromAddress,
		To:      []string{d.cfg.OperationsAddress},
		Bcc:     recipients,
		Subject: subject,
		Body:    body,
	})
	return report
}

// NotifyHelperSubscribed exports the shift's calendar event and confirms the
// registration to the volunteer. The two steps fail independently.
func (d *Dispatcher) NotifyHelperSubscribed(ctx context.Context, event lifecycle.HelperJoined) Report {
	report := Report{Kind: KindHelperSubscribed, Entity: event.Registration.ID}

	if !d.claim(KindHelperSubscribed, event.Registration.ID) {
		return d.skip(report, ReasonDuplicate)
	}

	if d.calendar != nil {
		d.export(ctx, &report, calendarEvent(event.Shift))
	}

	recipients := d.usableAddresses(&report, []model.Helper{event.Volunteer.Helper()})
	if len(recipients) == 0 {
		report.Reason = ReasonNoRecipients
		d.metrics.recordSkip(report.Kind, ReasonNoRecipients)
		return report
	}

	subject, body, err := d.render.helperSubscribed(event)
	if err != nil {
		return d.fail(report, recipients[0], err)
	}

	d.logger.Debug("Sending subscription confirmation",
		zap.String("registration_id", event.Registration.ID),
		zap.String("shift_id", event.Shift.ID),
		zap.String("volunteer_id", event.Volunteer.ID))

	d.send(ctx, &report, recipients[0], Email{
		From:    d.cfg.NoReplyAddress,
		To:      recipients,
		Subject: subject,
		Body:    body,
	})
	return report
}

// NotifyBroadcast sends a newly created broadcast message to each recipient
// individually, with replies going to the sender. Re-saves send nothing.
func (d *Dispatcher) NotifyBroadcast(ctx context.Context, event lifecycle.MessageSaved) Report {
	msg := event.Message
	report := Report{Kind: KindBroadcastSent, Entity: msg.ID}

	if !event.Created {
		return d.skip(report, ReasonResave)
	}
	sender := normalizeAddress(msg.Sender.Email)
	if !d.usable(sender) {
		return d.skip(report, ReasonSenderNoAddress)
	}
	if !d.claim(KindBroadcastSent, msg.ID) {
		return d.skip(report, ReasonDuplicate)
	}

	seen := make(map[string]bool)
	for _, recipient := range msg.Recipients {
		address := normalizeAddress(recipient.Email)
		if seen[address] && address != "" {
			continue
		}
		seen[address] = true

		if !d.usable(address) {
			d.skipRecipient(&report, recipient)
			continue
		}

		subject, body, err := d.render.broadcastSent(event, recipient)
		if err != nil {
			report.Failures = append(report.Failures, &TransportError{
				Kind: report.Kind, Entity: report.Entity, Recipient: address, Err: err,
			})
			continue
		}

		d.send(ctx, &report, address, Email{
			From:    d.cfg.NoReplyAddress,
			To:      []string{address},
			ReplyTo: []string{sender},
			Subject: subject,
			Body:    body,
		})
	}

	d.logger.Debug("Broadcast message dispatched",
		zap.String("message_id", msg.ID),
		zap.String("shift_id", msg.ShiftID),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed()))
	return report
}

func (d *Dispatcher) send(ctx context.Context, report *Report, recipient string, email Email) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.mailer.Send(sendCtx, email)
	d.metrics.recordSend(report.Kind, time.Since(start), err)
	if err != nil {
		report.Failures = append(report.Failures, &TransportError{
			Kind:      report.Kind,
			Entity:    report.Entity,
			Recipient: recipient,
			Err:       err,
		})
		return
	}
	report.Sent++
}

func (d *Dispatcher) export(ctx context.Context, report *Report, event CalendarEvent) {
	exportCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	err := d.calendar.Export(exportCtx, event)
	d.metrics.recordExport(err)
	if err != nil {
		report.Failures = append(report.Failures, &TransportError{
			Kind:   report.Kind,
			Entity: report.Entity,
			Err:    fmt.Errorf("calendar export %s: %w", event.UID, err),
		})
	}
}

// usableAddresses returns the distinct valid helper addresses, counting the rest as skipped
func (d *Dispatcher) usableAddresses(report *Report, helpers []model.Helper) []string {
	seen := make(map[string]bool)
	addresses := []string{}
	for _, h := range helpers {
		address := normalizeAddress(h.Email)
		if !d.usable(address) {
			d.skipRecipient(report, h)
			continue
		}
		if seen[address] {
			continue
		}
		seen[address] = true
		addresses = append(addresses, address)
	}
	return addresses
}

func (d *Dispatcher) usable(address string) bool {
	return address != "" && d.validate.Var(address, "email") == nil
}

func (d *Dispatcher) skipRecipient(report *Report, h model.Helper) {
	report.Skipped++
	d.metrics.recordSkip(report.Kind, "invalid_address")
	d.logger.Warn("Skipping recipient without a usable email address",
		zap.String("kind", string(report.Kind)),
		zap.String("entity", report.Entity),
		zap.String("volunteer_id", h.VolunteerID))
}

func (d *Dispatcher) skip(report Report, reason string) Report {
	report.Reason = reason
	d.metrics.recordSkip(report.Kind, reason)
	return report
}

func (d *Dispatcher) fail(report Report, recipient string, err error) Report {
	report.Failures = append(report.Failures, &TransportError{
		Kind: report.Kind, Entity: report.Entity, Recipient: recipient, Err: err,
	})
	return report
}

// claim reports whether this notification has not been sent within the dedup window
func (d *Dispatcher) claim(kind Kind, key string) bool {
	if d.recent == nil {
		return true
	}
	if d.recent.ItemCount() > dedupPurgeThreshold {
		d.recent.DeleteExpired()
	}
	return d.recent.Add(string(kind)+"|"+key, struct{}{}, cache.DefaultExpiration) == nil
}

// claimLatest is claim for notifications that can repeat legitimately. Only a
// repeat of the last transition notified for entity counts as a duplicate, so
// A->B, B->A, A->B sends three times.
func (d *Dispatcher) claimLatest(kind Kind, entity, transition string) bool {
	if d.recent == nil {
		return true
	}
	d.latestMu.Lock()
	defer d.latestMu.Unlock()
	if d.recent.ItemCount() > dedupPurgeThreshold {
		d.recent.DeleteExpired()
	}

	key := string(kind) + "|" + entity
	if last, ok := d.recent.Get(key); ok && last == transition {
		return false
	}
	d.recent.Set(key, transition, cache.DefaultExpiration)
	return true
}

// logReport is the single place handler outcomes are logged
func (d *Dispatcher) logReport(report Report) {
	for _, failure := range report.Failures {
		d.logger.Error("Failed to deliver notification",
			zap.String("kind", string(failure.Kind)),
			zap.String("entity", failure.Entity),
			zap.String("recipient", failure.Recipient),
			zap.Bool("timeout", failure.Timeout()),
			zap.Error(failure.Err))
	}
	if report.Reason != "" {
		d.logger.Debug("Notification skipped",
			zap.String("kind", string(report.Kind)),
			zap.String("entity", report.Entity),
			zap.String("reason", report.Reason))
		return
	}
	d.logger.Debug("Notification handled",
		zap.String("kind", string(report.Kind)),
		zap.String("entity", report.Entity),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed()))
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
