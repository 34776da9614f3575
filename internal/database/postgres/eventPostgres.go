package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository reads the catalog from the events, show_times and zones tables.
func NewEventRepository(db *sql.DB) database.EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `id, concert_code, name, poster, show_time_label, ticket_info, note, status, service_price_form, event_type`

func scanEvent(row interface{ Scan(...interface{}) error }) (*entity.Event, error) {
	var ev entity.Event
	err := row.Scan(
		&ev.ID,
		&ev.ConcertCode,
		&ev.Name,
		&ev.Poster,
		&ev.ShowTimeLabel,
		&ev.TicketInfo,
		&ev.Note,
		&ev.Status,
		&ev.ServicePriceForm,
		&ev.Type,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if err := r.loadShowTimes(ctx, []*entity.Event{ev}); err != nil {
		return nil, err
	}
	return ev, nil
}

func (r *eventRepository) GetAll(ctx context.Context) ([]*entity.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
}

func (r *eventRepository) SearchByName(ctx context.Context, query string) ([]*entity.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events WHERE name ILIKE '%' || $1 || '%' ORDER BY id`, query)
}

func (r *eventRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*entity.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	if err := r.loadShowTimes(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// loadShowTimes attaches show times and zones to the given events in one query.
func (r *eventRepository) loadShowTimes(ctx context.Context, events []*entity.Event) error {
	if len(events) == 0 {
		return nil
	}

	byID := make(map[int64]*entity.Event, len(events))
	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
		ids = append(ids, ev.ID)
	}

	query := `
		SELECT
			st.event_id, st.id, st.name, st.starts_at,
			z.id, z.name, z.remaining, z.ticket_price, z.service_price, z.status
		FROM show_times st
		LEFT JOIN zones z ON z.show_time_id = st.id
		WHERE st.event_id = ANY($1)
		ORDER BY st.event_id, st.id, z.id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query show times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID, showTimeID int64
			showTimeName        string
			startsAt            entity.Millis
			zoneID              sql.NullInt64
			zoneName            sql.NullString
			remaining           sql.NullInt64
			ticketPrice         sql.NullInt64
			servicePrice        sql.NullInt64
			status              sql.NullString
		)
		if err := rows.Scan(&eventID, &showTimeID, &showTimeName, &startsAt,
			&zoneID, &zoneName, &remaining, &ticketPrice, &servicePrice, &status); err != nil {
			return fmt.Errorf("failed to scan show time: %w", err)
		}

		ev := byID[eventID]
		st, ok := ev.ShowTime(showTimeID)
		if !ok {
			ev.ShowTimes = append(ev.ShowTimes, entity.ShowTime{ID: showTimeID, Name: showTimeName, Time: startsAt})
			st = &ev.ShowTimes[len(ev.ShowTimes)-1]
		}
		if zoneID.Valid {
			st.Zones = append(st.Zones, entity.Zone{
				ID:           zoneID.Int64,
				Name:         zoneName.String,
				Remaining:    int(remaining.Int64),
				TicketPrice:  ticketPrice.Int64,
				ServicePrice: servicePrice.Int64,
				Status:       entity.ZoneStatus(status.String),
			})
		}
	}
	return rows.Err()
}

// SeedCatalog loads events into empty catalog tables. A non-empty catalog is left alone.
func SeedCatalog(ctx context.Context, db *sql.DB, events []*entity.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (`+eventColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			ev.ID, ev.ConcertCode, ev.Name, ev.Poster, ev.ShowTimeLabel,
			ev.TicketInfo, ev.Note, ev.Status, ev.ServicePriceForm, ev.Type,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event %d: %w", ev.ID, err)
		}

		for _, st := range ev.ShowTimes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO show_times (id, event_id, name, starts_at) VALUES ($1, $2, $3, $4)`,
				st.ID, ev.ID, st.Name, st.Time,
			)
			if err != nil {
				return fmt.Errorf("failed to insert show time %d: %w", st.ID, err)
			}

			for _, z := range st.Zones {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO zones (show_time_id, id, name, remaining, ticket_price, service_price, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					st.ID, z.ID, z.Name, z.Remaining, z.TicketPrice, z.ServicePrice, z.Status,
				)
				if err != nil {
					return fmt.Errorf("failed to insert zone %d/%d: %w", st.ID, z.ID, err)
				}
			}
		}
	}

	return tx.Commit()
}
