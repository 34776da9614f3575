package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/internal/pricing"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

const defaultPageSize = 5

// TrackingRow is one line of the public tracking table.
type TrackingRow struct {
	BookingCode       string                `json:"bookingId"`
	EventName         string                `json:"concertName"`
	ShowTime          string                `json:"showTime"`
	Zone              string                `json:"zone"`
	Status            entity.TrackingStatus `json:"status"`
	StatusLabel       string                `json:"statusLabel"`
	StatusDescription string                `json:"statusDescription"`
	PaymentDeadline   *time.Time            `json:"paymentDeadline,omitempty"`
	DaysUntilDeadline *int                  `json:"daysUntilDeadline,omitempty"`
}

// TrackingPage is a page of search results plus the urgent payment banner,
// which is always computed over every booking.
type TrackingPage struct {
	Rows        []TrackingRow `json:"rows"`
	Urgent      []TrackingRow `json:"urgentPayments"`
	Page        int           `json:"page"`
	TotalPages  int           `json:"totalPages"`
	Total       int           `json:"total"`
	ShowingFrom int           `json:"showingFrom"`
	ShowingTo   int           `json:"showingTo"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

type ZoneOption struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
}

// BookingDetail is the post-confirmation form.
type BookingDetail struct {
	Booking     *entity.Booking     `json:"booking"`
	Zones       []ZoneOption        `json:"zones"`
	ExtraFields []entity.ExtraField `json:"extraFields"`
}

type UpdateDetailRequest struct {
	ZoneID        int64                `json:"zoneId"`
	Quantity      int                  `json:"quantity"`
	PaymentMethod entity.PaymentMethod `json:"paymentMethod" binding:"required"`
	ExtraFields   map[string]string    `json:"extraFields"`
}

type UpdateStatusRequest struct {
	Status          entity.TrackingStatus `json:"status" binding:"required"`
	PaymentDeadline *time.Time            `json:"paymentDeadline,omitempty"`
}

type TrackingConfig struct {
	PageSize       int
	ReminderWindow time.Duration
}

type trackingService struct {
	bookings  database.BookingRepository
	events    database.EventRepository
	publisher TaskPublisher
	clock     clock.Clock
	cfg       TrackingConfig
	log       *logrus.Entry
}

func NewTrackingService(
	bookings database.BookingRepository,
	events database.EventRepository,
	publisher TaskPublisher,
	clk clock.Clock,
	cfg TrackingConfig,
) TrackingService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &trackingService{
		bookings:  bookings,
		events:    events,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		log:       logrus.WithField("component", "tracking_service"),
	}
}

// List searches code, event, show time, zone and status (value or Thai label),
// then cuts one page. An out of range page is clamped.
func (s *trackingService) List(ctx context.Context, query string, page int) (*TrackingPage, error) {
	all, err := s.bookings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	now := s.clock.Now()

	query = strings.ToLower(strings.TrimSpace(query))
	var filtered []*entity.Booking
	for _, b := range all {
		if query == "" || strings.Contains(searchText(b), query) {
			filtered = append(filtered, b)
		}
	}

	size := s.cfg.PageSize
	totalPages := (len(filtered) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	result := &TrackingPage{
		Rows:        []TrackingRow{},
		Urgent:      []TrackingRow{},
		Page:        page,
		TotalPages:  totalPages,
		Total:       len(filtered),
		LastUpdated: now,
	}

	if len(filtered) > 0 {
		start := (page - 1) * size
		end := start + size
		if end > len(filtered) {
			end = len(filtered)
		}
		for _, b := range filtered[start:end] {
			result.Rows = append(result.Rows, toRow(b, now))
		}
		result.ShowingFrom = start + 1
		result.ShowingTo = end
	}

	for _, b := range all {
		if b.UrgentPayment(now) {
			result.Urgent = append(result.Urgent, toRow(b, now))
		}
	}
	return result, nil
}

func searchText(b *entity.Booking) string {
	return strings.ToLower(strings.Join([]string{
		b.Code, b.EventName, b.ShowTimeName, b.ZoneName, string(b.Status), b.StatusLabel(),
	}, " "))
}

func toRow(b *entity.Booking, now time.Time) TrackingRow {
	row := TrackingRow{
		BookingCode:       b.Code,
		EventName:         b.EventName,
		ShowTime:          b.ShowTimeName,
		Zone:              b.ZoneName,
		Status:            b.Status,
		StatusLabel:       b.Status.Label(),
		StatusDescription: b.Status.Description(),
		PaymentDeadline:   b.PaymentDeadline,
	}
	if days, ok := b.DaysUntilDeadline(now); ok {
		row.DaysUntilDeadline = &days
	}
	return row
}

func (s *trackingService) Detail(ctx context.Context, code string) (*BookingDetail, error) {
	booking, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, booking)
}

// zoneOptions lists the zones of the booked show time. A booking whose event
// left the catalog simply has none.
func (s *trackingService) zoneOptions(ctx context.Context, b *entity.Booking) ([]ZoneOption, *entity.ShowTime, error) {
	ev, err := s.events.GetByID(ctx, b.EventID)
	if errors.Is(err, entity.ErrEventNotFound) {
		return []ZoneOption{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load event: %w", err)
	}

	st, ok := ev.ShowTime(b.ShowTimeID)
	if !ok {
		return []ZoneOption{}, nil, nil
	}
	opts := make([]ZoneOption, 0, len(st.Zones))
	for _, z := range st.Zones {
		opts = append(opts, ZoneOption{ID: z.ID, Name: z.Name, Price: z.TicketPrice, Available: z.Selectable()})
	}
	return opts, st, nil
}

func (s *trackingService) detail(ctx context.Context, b *entity.Booking) (*BookingDetail, error) {
	zones, _, err := s.zoneOptions(ctx, b)
	if err != nil {
		return nil, err
	}
	return &BookingDetail{Booking: b, Zones: zones, ExtraFields: entity.ExtraFields}, nil
}

// UpdateDetail saves the post-confirmation answers. The quantity can only go
// down from what was booked, and the total is recomputed for the chosen zone.
func (s *trackingService) UpdateDetail(ctx context.Context, code string, req *UpdateDetailRequest) (*BookingDetail, error) {
	booking, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		return nil, entity.ErrInvalidPaymentMethod
	}

	extras := make(map[string]string, len(entity.ExtraFields))
	for _, f := range entity.ExtraFields {
		v := strings.TrimSpace(req.ExtraFields[f.Code])
		if f.IsRequired && v == "" {
			return nil, fmt.Errorf("%s (%s): %w", f.Code, f.Label, entity.ErrMissingExtraField)
		}
		if v != "" {
			extras[f.Code] = v
		}
	}

	zones, showTime, err := s.zoneOptions(ctx, booking)
	if err != nil {
		return nil, err
	}

	qty := pricing.ClampQuantity(req.Quantity, booking.Quantity)
	if len(zones) > 0 {
		zoneID := req.ZoneID
		if zoneID == 0 {
			zoneID = booking.ZoneID
		}
		zone, ok := showTime.Zone(zoneID)
		if !ok {
			return nil, entity.ErrZoneNotFound
		}
		if !zone.Selectable() && zone.ID != booking.ZoneID {
			return nil, entity.ErrZoneUnavailable
		}
		booking.ZoneID = zone.ID
		booking.ZoneName = zone.Name
		booking.TicketPrice = zone.TicketPrice
		booking.Total = pricing.ComputeFinalTotal(*zone, booking.ServiceFee, qty)
	} else {
		unit := pricing.FallbackUnitTotal(booking.TicketPrice*int64(booking.Quantity), booking.Quantity, booking.ServiceFee)
		booking.Total = unit * int64(qty)
	}

	booking.AdjustedQty = qty
	booking.PaymentMethod = req.PaymentMethod
	booking.ExtraFields = extras

	if err := s.bookings.Update(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"booking_code":   booking.Code,
		"zone_id":        booking.ZoneID,
		"quantity":       qty,
		"payment_method": booking.PaymentMethod,
	}).Info("Booking detail updated")

	return &BookingDetail{Booking: booking, Zones: zones, ExtraFields: entity.ExtraFields}, nil
}

// UpdateStatus moves a booking through the tracking statuses. Statuses that
// wait for payment need a deadline; the reminder mark is reset whenever the
// deadline changes.
func (s *trackingService) UpdateStatus(ctx context.Context, code string, req *UpdateStatusRequest) (*entity.Booking, error) {
	if !req.Status.Valid() {
		return nil, entity.ErrInvalidBookingStatus
	}

	booking, err := s.bookings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if req.Status.AwaitsPayment() {
		deadline := req.PaymentDeadline
		if deadline == nil {
			deadline = booking.PaymentDeadline
		}
		if deadline == nil {
			return nil, fmt.Errorf("%s needs a payment deadline: %w", req.Status, entity.ErrInvalidInput)
		}
		if booking.PaymentDeadline == nil || !booking.PaymentDeadline.Equal(*deadline) {
			booking.RemindedAt = nil
		}
		d := deadline.UTC()
		booking.PaymentDeadline = &d
	} else {
		booking.PaymentDeadline = nil
		booking.RemindedAt = nil
	}

	previous := booking.Status
	booking.Status = req.Status
	if err := s.bookings.Update(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"booking_code": booking.Code,
		"from":         previous,
		"to":           booking.Status,
	}).Info("Booking status changed")

	s.publish(ctx, queue.NewTask(queue.TaskTypeStatusChanged, map[string]interface{}{
		"booking_code": booking.Code,
		"event_name":   booking.EventName,
		"status":       string(booking.Status),
	}))
	return booking, nil
}

// RemindDuePayments publishes one reminder per booking whose payment deadline
// falls inside the reminder window and marks it so it is not reminded twice.
func (s *trackingService) RemindDuePayments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.bookings.GetDueForReminder(ctx, now.Add(s.cfg.ReminderWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to get bookings due for reminder: %w", err)
	}

	sent := 0
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		task := queue.NewTask(queue.TaskTypePaymentReminder, map[string]interface{}{
			"booking_code": b.Code,
			"event_name":   b.EventName,
			"status":       string(b.Status),
			"deadline":     b.PaymentDeadline.Format(time.RFC3339),
		})
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, task); err != nil {
				s.log.WithError(err).WithField("booking_code", b.Code).Warn("Failed to publish payment reminder")
				continue
			}
		}

		reminded := now.UTC()
		b.RemindedAt = &reminded
		if err := s.bookings.Update(ctx, b); err != nil {
			s.log.WithError(err).WithField("booking_code", b.Code).Error("Failed to mark booking as reminded")
			continue
		}
		sent++
	}

	if sent > 0 {
		s.log.WithField("count", sent).Info("Payment reminders sent")
	}
	return sent, nil
}

func (s *trackingService) Stats(ctx context.Context) (*entity.TrackingStats, error) {
	all, err := s.bookings.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}
	return entity.CollectTrackingStats(all, s.clock.Now()), nil
}

func (s *trackingService) publish(ctx context.Context, task *queue.Task) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, task); err != nil {
		s.log.WithError(err).WithField("type", task.Type).Warn("Failed to publish task")
	}
}
