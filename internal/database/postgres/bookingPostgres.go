package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) database.BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	code, event_id, event_name, poster, event_type, show_time_id, show_time_name,
	zone_id, zone_name, quantity, adjusted_quantity, nickname, name_list, notes, deposit, ticket_price,
	service_fee, total, status, payment_method, payment_deadline, extra_fields,
	proof, reminded_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*entity.Booking, error) {
	var (
		b               entity.Booking
		paymentDeadline sql.NullTime
		remindedAt      sql.NullTime
		extraFields     []byte
		proof           []byte
	)

	err := row.Scan(
		&b.Code,
		&b.EventID,
		&b.EventName,
		&b.Poster,
		&b.EventType,
		&b.ShowTimeID,
		&b.ShowTimeName,
		&b.ZoneID,
		&b.ZoneName,
		&b.Quantity,
		&b.AdjustedQty,
		&b.Nickname,
		pq.Array(&b.NameList),
		&b.Notes,
		&b.Deposit,
		&b.TicketPrice,
		&b.ServiceFee,
		&b.Total,
		&b.Status,
		&b.PaymentMethod,
		&paymentDeadline,
		&extraFields,
		&proof,
		&remindedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentDeadline.Valid {
		b.PaymentDeadline = &paymentDeadline.Time
	}
	if remindedAt.Valid {
		b.RemindedAt = &remindedAt.Time
	}
	if len(extraFields) > 0 {
		if err := json.Unmarshal(extraFields, &b.ExtraFields); err != nil {
			return nil, fmt.Errorf("failed to decode extra fields: %w", err)
		}
	}
	if len(proof) > 0 {
		if err := json.Unmarshal(proof, &b.Proof); err != nil {
			return nil, fmt.Errorf("failed to decode payment proof: %w", err)
		}
	}
	return &b, nil
}

// encodeJSONB returns the document bytes, or nil for an empty map so the column stays NULL.
func encodeJSONB(booking *entity.Booking) (extra, proof []byte, err error) {
	if len(booking.ExtraFields) > 0 {
		if extra, err = json.Marshal(booking.ExtraFields); err != nil {
			return nil, nil, fmt.Errorf("failed to encode extra fields: %w", err)
		}
	}
	if proof, err = json.Marshal(booking.Proof); err != nil {
		return nil, nil, fmt.Errorf("failed to encode payment proof: %w", err)
	}
	return extra, proof, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	extra, proof, err := encodeJSONB(booking)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = booking.CreatedAt
	if booking.NameList == nil {
		booking.NameList = []string{}
	}

	query := `INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err = r.db.ExecContext(ctx, query,
		booking.Code,
		booking.EventID,
		booking.EventName,
		booking.Poster,
		booking.EventType,
		booking.ShowTimeID,
		booking.ShowTimeName,
		booking.ZoneID,
		booking.ZoneName,
		booking.Quantity,
		booking.AdjustedQty,
		booking.Nickname,
		pq.Array(booking.NameList),
		booking.Notes,
		booking.Deposit,
		booking.TicketPrice,
		booking.ServiceFee,
		booking.Total,
		booking.Status,
		booking.PaymentMethod,
		booking.PaymentDeadline,
		extra,
		proof,
		booking.RemindedAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return entity.ErrBookingAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) GetByCode(ctx context.Context, code string) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE code = $1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) GetAll(ctx context.Context) ([]*entity.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC, code`)
}

func (r *bookingRepository) GetDueForReminder(ctx context.Context, before time.Time) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN ($1, $2)
			AND payment_deadline IS NOT NULL
			AND payment_deadline < $3
			AND reminded_at IS NULL
		ORDER BY payment_deadline`

	return r.list(ctx, query, entity.TrackingWaitFullPayment, entity.TrackingWaitServiceFee, before)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

// Update rewrites the mutable part of a booking: zone, adjusted quantity, tracking status, detail answers and reminder mark.
func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	extra, proof, err := encodeJSONB(booking)
	if err != nil {
		return err
	}
	booking.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE bookings SET
			zone_id = $1,
			zone_name = $2,
			adjusted_quantity = $3,
			ticket_price = $4,
			total = $5,
			status = $6,
			payment_method = $7,
			payment_deadline = $8,
			extra_fields = $9,
			proof = $10,
			reminded_at = $11,
			updated_at = $12
		WHERE code = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		booking.ZoneID,
		booking.ZoneName,
		booking.AdjustedQty,
		booking.TicketPrice,
		booking.Total,
		booking.Status,
		booking.PaymentMethod,
		booking.PaymentDeadline,
		extra,
		proof,
		booking.RemindedAt,
		booking.UpdatedAt,
		booking.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrBookingNotFound
	}
	return nil
}
