// Package wizard drives the four-step booking flow:
// terms, event selection, booking form and payment.
//
// Every mutation is written through to the Store right away. The store is a
// convenience cache, so write failures are logged and otherwise ignored.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/countdown"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/internal/pricing"
)

// Controller owns one session's WizardState. It is not safe for concurrent use.
type Controller struct {
	store  Store
	clock  clock.Clock
	budget time.Duration
	log    *logrus.Entry
	state  entity.WizardState
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithBudget overrides the payment time budget.
func WithBudget(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.budget = d
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(ctl *Controller) { ctl.log = l }
}

func NewController(store Store, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		clock:  clock.NewSystem(),
		budget: countdown.DefaultBudget,
		log:    logrus.WithField("component", "wizard"),
		state:  entity.NewWizardState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() entity.WizardState {
	return c.state.Clone()
}

func (c *Controller) Status() string {
	return c.state.Status()
}

// Restore reads the saved blob. Anything missing or unreadable yields a fresh
// wizard. A saved payment step whose budget is used up comes back expired; the
// saved start time is kept so a reload never extends the deadline.
func (c *Controller) Restore(ctx context.Context) entity.WizardState {
	c.state = entity.NewWizardState()

	saved, err := c.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, entity.ErrStateNotFound) {
			c.log.WithError(err).Warn("Discarding unreadable wizard state")
		}
		return c.State()
	}
	if saved == nil || !saved.Step.Valid() {
		return c.State()
	}

	c.state = *saved
	c.normalize()

	if c.state.Step == entity.StepPayment && !c.state.IsExpired {
		if c.state.PaymentStartedAt == nil {
			// без отметки времени дедлайн не определён, начинаем отсчёт сейчас
			c.stampPaymentStart()
			c.persist(ctx)
		} else if countdown.Expired(c.state.StartedAt(), c.clock.Now(), c.budget) {
			c.state.IsExpired = true
		}
	}
	return c.State()
}

// normalize walks the step back until its prerequisites exist.
func (c *Controller) normalize() {
	s := &c.state

	if s.SelectedEvent != nil && s.BookingForm == nil {
		d := entity.NewFormDraft()
		s.BookingForm = &d
	}
	if s.BookingForm != nil {
		if s.BookingForm.TicketCount < 1 {
			s.BookingForm.TicketCount = 1
		}
		if len(s.BookingForm.NameList) == 0 {
			s.BookingForm.NameList = []string{""}
		}
	}

	if s.Step >= entity.StepBookingForm && s.SelectedEvent == nil {
		s.Step = entity.StepEventSelect
	}
	if s.Step == entity.StepPayment && !DraftComplete(s.SelectedEvent, s.BookingForm) {
		s.Step = entity.StepBookingForm
	}
	if s.Step != entity.StepPayment {
		s.IsExpired = false
	}
}

// Advance moves to the next step when the current one is complete. Entering
// the payment step starts a new countdown.
func (c *Controller) Advance(ctx context.Context) error {
	if err := c.checkDeadline(ctx); err != nil {
		return err
	}

	if c.state.Step == entity.StepPayment {
		return entity.ErrNoNextStep
	}
	if !c.canProceed() {
		return fmt.Errorf("%s: %w", c.state.Step, entity.ErrStepIncomplete)
	}

	c.state.Step++
	if c.state.Step == entity.StepPayment {
		c.stampPaymentStart()
		c.state.IsExpired = false
		c.state.Payment = entity.PaymentProof{}
	}

	c.persist(ctx)
	return nil
}

// Retreat goes one step back and keeps everything entered so far.
func (c *Controller) Retreat(ctx context.Context) error {
	if err := c.checkDeadline(ctx); err != nil {
		return err
	}
	if c.state.Step == entity.StepTerms {
		return entity.ErrNoPreviousStep
	}

	c.state.Step--
	c.persist(ctx)
	return nil
}

// Reset forgets the session, including the durable copy.
func (c *Controller) Reset(ctx context.Context) {
	c.state = entity.NewWizardState()
	if err := c.store.Clear(ctx); err != nil {
		c.log.WithError(err).Warn("Failed to clear wizard state")
	}
}

// AcceptTerms records the terms step inputs. The checkbox only counts once
// the text has been scrolled to the bottom.
func (c *Controller) AcceptTerms(ctx context.Context, scrolledToBottom, accepted bool) error {
	if err := c.requireStep(ctx, entity.StepTerms); err != nil {
		return err
	}

	t := &c.state.Terms
	t.ScrolledToBottom = t.ScrolledToBottom || scrolledToBottom
	t.Accepted = accepted && t.ScrolledToBottom

	c.persist(ctx)
	return nil
}

// SelectEvent stores the chosen event and moves on to the booking form.
// Picking a different event than before starts a new draft.
func (c *Controller) SelectEvent(ctx context.Context, ev *entity.Event) error {
	if err := c.requireStep(ctx, entity.StepEventSelect); err != nil {
		return err
	}
	if ev == nil {
		return entity.ErrEventNotFound
	}
	if !EventSelectable(ev) {
		return entity.ErrEventUnavailable
	}

	if c.state.SelectedEvent == nil || c.state.SelectedEvent.ID != ev.ID || c.state.BookingForm == nil {
		d := entity.NewFormDraft()
		c.state.BookingForm = &d
	}
	selected := ev.Clone()
	c.state.SelectedEvent = &selected
	c.state.Step = entity.StepBookingForm

	c.persist(ctx)
	return nil
}

func (c *Controller) SetNickname(ctx context.Context, nickname string) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, _ *entity.Event) error {
		d.Nickname = nickname
		return nil
	})
}

func (c *Controller) SetNotes(ctx context.Context, notes string) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, _ *entity.Event) error {
		d.Notes = notes
		return nil
	})
}

// SelectShowTime switches the show time. A different show time drops the zone
// and resets the ticket count.
func (c *Controller) SelectShowTime(ctx context.Context, showTimeID int64) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, ev *entity.Event) error {
		if _, ok := ev.ShowTime(showTimeID); !ok {
			return entity.ErrShowTimeNotFound
		}
		if d.ShowTimeID != showTimeID {
			d.ZoneID = 0
			d.TicketCount = 1
		}
		d.ShowTimeID = showTimeID
		return nil
	})
}

// SelectZone picks a zone with remaining capacity. A new zone starts at one ticket.
func (c *Controller) SelectZone(ctx context.Context, zoneID int64) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, ev *entity.Event) error {
		zone, ok := ev.FindZone(d.ShowTimeID, zoneID)
		if !ok {
			return entity.ErrZoneNotFound
		}
		if !zone.Selectable() {
			return entity.ErrZoneUnavailable
		}
		if d.ZoneID != zoneID {
			d.TicketCount = 1
		}
		d.ZoneID = zoneID
		return nil
	})
}

// ClearZone drops the zone choice and resets the count.
func (c *Controller) ClearZone(ctx context.Context) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, _ *entity.Event) error {
		d.ZoneID = 0
		d.TicketCount = 1
		return nil
	})
}

// SetTicketCount rejects values below one and, for ticket events, above the
// zone's remaining capacity. A rejected value leaves the draft untouched.
func (c *Controller) SetTicketCount(ctx context.Context, n int) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, ev *entity.Event) error {
		if n < 1 {
			return entity.ErrInvalidQuantity
		}

		if ev.Type == entity.EventTypeTicket {
			zone, ok := ev.FindZone(d.ShowTimeID, d.ZoneID)
			if !ok {
				return fmt.Errorf("select a zone first: %w", entity.ErrZoneNotFound)
			}
			if n > zone.Remaining {
				return entity.ErrCapacityReached
			}
			d.TicketCount = n
			return nil
		}

		d.TicketCount = n
		d.NameList = resizeNames(d.NameList, n)
		return nil
	})
}

func (c *Controller) IncrementTickets(ctx context.Context) error {
	return c.SetTicketCount(ctx, c.ticketCount()+1)
}

// DecrementTickets never goes below one.
func (c *Controller) DecrementTickets(ctx context.Context) error {
	n := c.ticketCount() - 1
	if n < 1 {
		n = 1
	}
	return c.SetTicketCount(ctx, n)
}

func (c *Controller) ticketCount() int {
	if c.state.BookingForm == nil {
		return 1
	}
	return c.state.BookingForm.TicketCount
}

// SetNameList replaces the name slots of a form event; the ticket count follows.
func (c *Controller) SetNameList(ctx context.Context, names []string) error {
	return c.editDraft(ctx, func(d *entity.FormDraft, ev *entity.Event) error {
		if ev.Type != entity.EventTypeForm {
			return fmt.Errorf("name list is only used by form events: %w", entity.ErrInvalidInput)
		}
		if len(names) == 0 {
			names = []string{""}
		}
		d.NameList = append([]string(nil), names...)
		d.TicketCount = len(d.NameList)
		return nil
	})
}

// AttachPaymentProof records the payment slip. It does not submit.
func (c *Controller) AttachPaymentProof(ctx context.Context, proof entity.PaymentProof) error {
	if err := c.requireStep(ctx, entity.StepPayment); err != nil {
		return err
	}
	for _, a := range []*entity.Attachment{proof.DomesticFile, proof.InternationalFile} {
		if err := ValidateAttachment(a, MaxProofSize); err != nil {
			return err
		}
	}

	c.state.Payment = proof
	c.persist(ctx)
	return nil
}

// Expire is the countdown's signal. It is accepted only once the budget is
// really used up and is a no-op when already expired.
func (c *Controller) Expire(ctx context.Context) error {
	if c.state.Step != entity.StepPayment {
		return entity.ErrWrongStep
	}
	if c.state.IsExpired {
		return nil
	}
	if !countdown.Expired(c.state.StartedAt(), c.clock.Now(), c.budget) {
		return entity.ErrNotExpired
	}

	c.state.IsExpired = true
	c.log.Info("Payment time expired")
	c.persist(ctx)
	return nil
}

// Submit finishes the booking. It returns the state as it was at submission
// and resets the wizard.
func (c *Controller) Submit(ctx context.Context) (entity.WizardState, error) {
	if err := c.requireStep(ctx, entity.StepPayment); err != nil {
		return entity.WizardState{}, err
	}
	if !PaymentComplete(c.state.Payment) {
		return entity.WizardState{}, fmt.Errorf("%s: %w", c.state.Step, entity.ErrStepIncomplete)
	}

	snapshot := c.State()
	c.Reset(ctx)
	return snapshot, nil
}

// Deposit is derived from the draft on every call.
func (c *Controller) Deposit() (int64, bool) {
	return pricing.ComputeDeposit(c.state.SelectedEvent, c.state.BookingForm)
}

// RemainingSeconds is only meaningful on the payment step.
func (c *Controller) RemainingSeconds() (int, bool) {
	if c.state.Step != entity.StepPayment {
		return 0, false
	}
	if c.state.IsExpired {
		return 0, true
	}
	return countdown.Remaining(c.state.StartedAt(), c.clock.Now(), c.budget), true
}

// CanProceed evaluates the current step's completion predicate.
func (c *Controller) CanProceed() bool {
	if c.state.IsExpired {
		return false
	}
	return c.canProceed()
}

func (c *Controller) canProceed() bool {
	s := &c.state
	switch s.Step {
	case entity.StepTerms:
		return TermsComplete(s.Terms)
	case entity.StepEventSelect:
		return EventSelectable(s.SelectedEvent)
	case entity.StepBookingForm:
		return DraftComplete(s.SelectedEvent, s.BookingForm)
	case entity.StepPayment:
		return PaymentComplete(s.Payment)
	}
	return false
}

func (c *Controller) editDraft(ctx context.Context, edit func(d *entity.FormDraft, ev *entity.Event) error) error {
	if err := c.requireStep(ctx, entity.StepBookingForm); err != nil {
		return err
	}
	if c.state.SelectedEvent == nil || c.state.BookingForm == nil {
		return fmt.Errorf("no event selected: %w", entity.ErrWrongStep)
	}

	draft := *c.state.BookingForm
	draft.NameList = append([]string(nil), c.state.BookingForm.NameList...)
	if err := edit(&draft, c.state.SelectedEvent); err != nil {
		return err
	}

	c.state.BookingForm = &draft
	c.persist(ctx)
	return nil
}

func (c *Controller) requireStep(ctx context.Context, step entity.StepID) error {
	if err := c.checkDeadline(ctx); err != nil {
		return err
	}
	if c.state.Step != step {
		return fmt.Errorf("at %s, want %s: %w", c.state.Step, step, entity.ErrWrongStep)
	}
	return nil
}

// checkDeadline moves a payment step past its budget into the expired state.
func (c *Controller) checkDeadline(ctx context.Context) error {
	if c.state.Step != entity.StepPayment {
		return nil
	}
	if !c.state.IsExpired && countdown.Expired(c.state.StartedAt(), c.clock.Now(), c.budget) {
		c.state.IsExpired = true
		c.persist(ctx)
	}
	if c.state.IsExpired {
		return entity.ErrSessionExpired
	}
	return nil
}

func (c *Controller) stampPaymentStart() {
	ts := entity.MillisOf(c.clock.Now())
	c.state.PaymentStartedAt = &ts
}

func (c *Controller) persist(ctx context.Context) {
	if err := c.store.Save(ctx, &c.state); err != nil {
		c.log.WithError(err).Warn("Failed to persist wizard state")
	}
}

func resizeNames(names []string, n int) []string {
	out := make([]string, n)
	copy(out, names)
	return out
}
