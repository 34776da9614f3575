package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/countdown"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/internal/pricing"
	"github.com/ds124wfegd/yoye-booking/internal/wizard"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

// SessionView is what every wizard endpoint answers with.
type SessionView struct {
	SessionID        string             `json:"sessionId"`
	Status           string             `json:"status"`
	State            entity.WizardState `json:"state"`
	CanProceed       bool               `json:"canProceed"`
	Deposit          *int64             `json:"deposit,omitempty"`
	RemainingSeconds *int               `json:"remainingSeconds,omitempty"`
}

type AcceptTermsRequest struct {
	ScrolledToBottom bool `json:"scrolledToBottom"`
	Accepted         bool `json:"accepted"`
}

// UpdateFormRequest is a partial edit of the booking form. Nil fields are left
// alone; ZoneID 0 clears the zone.
type UpdateFormRequest struct {
	Nickname    *string  `json:"nickName,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
	ShowTimeID  *int64   `json:"showTimeId,omitempty"`
	ZoneID      *int64   `json:"zoneId,omitempty"`
	TicketCount *int     `json:"ticketCount,omitempty"`
	NameList    []string `json:"nameList,omitempty"`
}

// AttachProofRequest merges into the proof already on the session.
type AttachProofRequest struct {
	Method            entity.PaymentMethodTab `json:"method,omitempty"`
	DomesticFile      *entity.Attachment      `json:"domesticFile,omitempty"`
	InternationalFile *entity.Attachment      `json:"internationalFile,omitempty"`
	TransferDate      *string                 `json:"transferDate,omitempty"`
	TransferTime      *string                 `json:"transferTime,omitempty"`
	Amount            *float64                `json:"amount,omitempty"`
}

type WizardConfig struct {
	StorageKey   string
	Budget       time.Duration
	MaxProofSize int64
}

type wizardService struct {
	states    database.StateRepository
	events    database.EventRepository
	bookings  database.BookingRepository
	publisher TaskPublisher
	clock     clock.Clock
	cfg       WizardConfig
	locks     *sessionLocks
	log       *logrus.Entry
}

func NewWizardService(
	states database.StateRepository,
	events database.EventRepository,
	bookings database.BookingRepository,
	publisher TaskPublisher,
	clk clock.Clock,
	cfg WizardConfig,
) WizardService {
	if cfg.StorageKey == "" {
		cfg.StorageKey = wizard.StorageKey
	}
	if cfg.Budget <= 0 {
		cfg.Budget = countdown.DefaultBudget
	}
	if cfg.MaxProofSize <= 0 {
		cfg.MaxProofSize = wizard.MaxProofSize
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &wizardService{
		states:    states,
		events:    events,
		bookings:  bookings,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		locks:     newSessionLocks(),
		log:       logrus.WithField("component", "wizard_service"),
	}
}

func (s *wizardService) key(sessionID string) string {
	return s.cfg.StorageKey + ":" + sessionID
}

func (s *wizardService) store(sessionID string) wizard.Store {
	return wizard.NewStore(s.states, s.key(sessionID))
}

// StartSession creates a session id and saves a fresh wizard under it.
func (s *wizardService) StartSession(ctx context.Context) (*SessionView, error) {
	sessionID := uuid.NewString()
	fresh := entity.NewWizardState()
	if err := s.store(sessionID).Save(ctx, &fresh); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.log.WithField("session_id", sessionID).Info("Booking session started")
	return s.GetSession(ctx, sessionID)
}

func (s *wizardService) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error { return nil })
}

func (s *wizardService) AcceptTerms(ctx context.Context, sessionID string, req *AcceptTermsRequest) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		return c.AcceptTerms(ctx, req.ScrolledToBottom, req.Accepted)
	})
}

func (s *wizardService) Next(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		return c.Advance(ctx)
	})
}

func (s *wizardService) Back(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		return c.Retreat(ctx)
	})
}

func (s *wizardService) SelectEvent(ctx context.Context, sessionID string, eventID int64) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		ev, err := s.events.GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		return c.SelectEvent(ctx, ev)
	})
}

// UpdateForm applies the fields in a fixed order: show time before zone,
// ticket count before names. It stops at the first rejected field; earlier
// fields stay applied.
func (s *wizardService) UpdateForm(ctx context.Context, sessionID string, req *UpdateFormRequest) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		if req.Nickname != nil {
			if err := c.SetNickname(ctx, *req.Nickname); err != nil {
				return err
			}
		}
		if req.Notes != nil {
			if err := c.SetNotes(ctx, *req.Notes); err != nil {
				return err
			}
		}
		if req.ShowTimeID != nil {
			if err := c.SelectShowTime(ctx, *req.ShowTimeID); err != nil {
				return err
			}
		}
		if req.ZoneID != nil {
			var err error
			if *req.ZoneID == 0 {
				err = c.ClearZone(ctx)
			} else {
				err = c.SelectZone(ctx, *req.ZoneID)
			}
			if err != nil {
				return err
			}
		}
		if req.TicketCount != nil {
			if err := c.SetTicketCount(ctx, *req.TicketCount); err != nil {
				return err
			}
		}
		if req.NameList != nil {
			if err := c.SetNameList(ctx, req.NameList); err != nil {
				return err
			}
		}
		return nil
	})
}

// AdjustTickets is the +/- stepper.
func (s *wizardService) AdjustTickets(ctx context.Context, sessionID string, delta int) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		switch {
		case delta > 0:
			return c.IncrementTickets(ctx)
		case delta < 0:
			return c.DecrementTickets(ctx)
		}
		return fmt.Errorf("delta must be +1 or -1: %w", entity.ErrInvalidInput)
	})
}

func (s *wizardService) AttachProof(ctx context.Context, sessionID string, req *AttachProofRequest) (*SessionView, error) {
	for _, a := range []*entity.Attachment{req.DomesticFile, req.InternationalFile} {
		if err := wizard.ValidateAttachment(a, s.cfg.MaxProofSize); err != nil {
			return nil, err
		}
	}

	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		proof := c.State().Payment
		if req.Method != "" {
			proof.Method = req.Method
		}
		if req.DomesticFile != nil {
			proof.DomesticFile = req.DomesticFile
		}
		if req.InternationalFile != nil {
			proof.InternationalFile = req.InternationalFile
		}
		if req.TransferDate != nil {
			proof.TransferDate = strings.TrimSpace(*req.TransferDate)
		}
		if req.TransferTime != nil {
			proof.TransferTime = strings.TrimSpace(*req.TransferTime)
		}
		if req.Amount != nil {
			proof.Amount = *req.Amount
		}
		return c.AttachPaymentProof(ctx, proof)
	})
}

func (s *wizardService) Expire(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		return c.Expire(ctx)
	})
}

// Reset starts the wizard over under the same session id.
func (s *wizardService) Reset(ctx context.Context, sessionID string) (*SessionView, error) {
	return s.withSession(ctx, sessionID, func(c *wizard.Controller) error {
		c.Reset(ctx)
		s.keepAlive(ctx, sessionID)
		return nil
	})
}

// Submit turns a completed payment step into a booking. The wizard restarts
// once the booking is stored; if storing fails the session is put back.
func (s *wizardService) Submit(ctx context.Context, sessionID string) (*entity.Booking, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	c, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	snapshot, err := c.Submit(ctx)
	if err != nil {
		return nil, err
	}

	booking, err := s.createBooking(ctx, &snapshot)
	if err != nil {
		if saveErr := s.store(sessionID).Save(ctx, &snapshot); saveErr != nil {
			s.log.WithError(saveErr).WithField("session_id", sessionID).Error("Failed to restore session after submit failure")
		}
		return nil, err
	}
	s.keepAlive(ctx, sessionID)

	s.log.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"booking_code": booking.Code,
		"event_id":     booking.EventID,
		"deposit":      booking.Deposit,
	}).Info("Booking submitted")

	s.publish(ctx, queue.NewTask(queue.TaskTypeBookingSubmitted, map[string]interface{}{
		"booking_code": booking.Code,
		"event_name":   booking.EventName,
		"nickname":     booking.Nickname,
		"quantity":     booking.Quantity,
		"deposit":      booking.Deposit,
	}))
	return booking, nil
}

// WatchCountdown reports the remaining payment seconds until the deadline
// passes or ctx ends. At the deadline the session is expired server-side.
// The watch stops without expiring when the session leaves the payment step
// or its payment window is restarted.
func (s *wizardService) WatchCountdown(ctx context.Context, sessionID string, onTick func(remaining int)) (bool, error) {
	view, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if view.State.Step != entity.StepPayment {
		return false, fmt.Errorf("countdown runs on the payment step: %w", entity.ErrWrongStep)
	}
	if view.State.IsExpired {
		onTick(0)
		return true, nil
	}

	startedAt := view.State.StartedAt()
	expired, stale := false, false

	var timer *countdown.Timer
	timer = countdown.NewTimer(s.clock, startedAt,
		countdown.WithBudget(s.cfg.Budget),
		countdown.OnTick(func(remaining int) {
			current, err := s.GetSession(ctx, sessionID)
			if err != nil || current.State.Step != entity.StepPayment || !current.State.StartedAt().Equal(startedAt) {
				stale = true
				timer.Stop()
				s.log.WithField("session_id", sessionID).Debug("Payment step left, countdown stopped")
				return
			}
			onTick(remaining)
		}),
		countdown.OnExpire(func() {
			expired = true
			if _, err := s.Expire(ctx, sessionID); err != nil && !errors.Is(err, entity.ErrWrongStep) {
				s.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to expire session")
			}
		}),
	)
	timer.Run(ctx)
	return expired && !stale, nil
}

func (s *wizardService) withSession(ctx context.Context, sessionID string, op func(c *wizard.Controller) error) (*SessionView, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	c, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := op(c); err != nil {
		return nil, err
	}
	return s.view(sessionID, c), nil
}

// open restores the controller of an existing session.
func (s *wizardService) open(ctx context.Context, sessionID string) (*wizard.Controller, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, entity.ErrSessionNotFound
	}
	if _, err := s.states.Get(ctx, s.key(sessionID)); err != nil {
		if errors.Is(err, entity.ErrStateNotFound) {
			return nil, entity.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	c := wizard.NewController(s.store(sessionID),
		wizard.WithClock(s.clock),
		wizard.WithBudget(s.cfg.Budget),
		wizard.WithLogger(logrus.WithFields(logrus.Fields{"component": "wizard", "session_id": sessionID})),
	)
	c.Restore(ctx)
	return c, nil
}

// keepAlive saves a fresh wizard so the session id stays valid after a reset.
func (s *wizardService) keepAlive(ctx context.Context, sessionID string) {
	fresh := entity.NewWizardState()
	if err := s.store(sessionID).Save(ctx, &fresh); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("Failed to save fresh session")
	}
}

func (s *wizardService) view(sessionID string, c *wizard.Controller) *SessionView {
	v := &SessionView{
		SessionID:  sessionID,
		Status:     c.Status(),
		State:      c.State(),
		CanProceed: c.CanProceed(),
	}
	if amount, ok := c.Deposit(); ok {
		v.Deposit = &amount
	}
	if left, ok := c.RemainingSeconds(); ok {
		v.RemainingSeconds = &left
	}
	return v
}

func (s *wizardService) createBooking(ctx context.Context, st *entity.WizardState) (*entity.Booking, error) {
	ev, draft := st.SelectedEvent, st.BookingForm
	if ev == nil || draft == nil {
		return nil, fmt.Errorf("submitted session has no booking form: %w", entity.ErrStepIncomplete)
	}
	deposit, ok := pricing.ComputeDeposit(ev, draft)
	if !ok {
		return nil, fmt.Errorf("deposit cannot be computed: %w", entity.ErrStepIncomplete)
	}

	now := s.clock.Now().UTC()
	booking := &entity.Booking{
		EventID:     ev.ID,
		EventName:   ev.Name,
		Poster:      ev.Poster,
		EventType:   ev.Type,
		Quantity:    draft.TicketCount,
		Nickname:    strings.TrimSpace(draft.Nickname),
		NameList:    append([]string(nil), draft.NameList...),
		Notes:       draft.Notes,
		Deposit:     deposit,
		ServiceFee:  ev.ServicePriceForm,
		Status:      entity.TrackingBookingConfirmed,
		Proof:       st.Payment,
		ExtraFields: map[string]string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if showTime, ok := ev.ShowTime(draft.ShowTimeID); ok {
		booking.ShowTimeID = showTime.ID
		booking.ShowTimeName = showTime.Name
	} else {
		booking.ShowTimeName = ev.ShowTimeLabel
	}
	if zone, ok := ev.FindZone(draft.ShowTimeID, draft.ZoneID); ok {
		booking.ZoneID = zone.ID
		booking.ZoneName = zone.Name
		booking.TicketPrice = zone.TicketPrice
		booking.ServiceFee = zone.ServicePrice
	}
	booking.Total = pricing.ComputeFinalTotal(entity.Zone{TicketPrice: booking.TicketPrice}, booking.ServiceFee, booking.Quantity)

	// коды короткие, поэтому при коллизии просто генерируем заново
	for attempt := 0; attempt < 3; attempt++ {
		booking.Code = newBookingCode(ev.ConcertCode)
		err := s.bookings.Create(ctx, booking)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, entity.ErrBookingAlreadyExists) {
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to allocate booking code: %w", entity.ErrBookingAlreadyExists)
}

func (s *wizardService) publish(ctx context.Context, task *queue.Task) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.log.WithError(err).WithField("type", task.Type).Warn("Failed to publish task")
	}
}

func newBookingCode(concertCode string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	if concertCode == "" {
		return "YJI-" + suffix
	}
	return "YJI-" + concertCode + "-" + suffix
}

// sessionLocks serializes requests of one session. Entries are dropped when
// nobody holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
