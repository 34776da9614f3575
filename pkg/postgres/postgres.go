package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/config"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// migrations are idempotent and run in order on every start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS wizard_states (
		key VARCHAR(128) PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY,
		concert_code VARCHAR(64) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		poster TEXT NOT NULL DEFAULT '',
		show_time_label VARCHAR(255) NOT NULL DEFAULT '',
		ticket_info TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		service_price_form BIGINT NOT NULL DEFAULT 0,
		event_type VARCHAR(20) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS show_times (
		id BIGINT PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL
	)`,

	// zone ids repeat across show times
	`CREATE TABLE IF NOT EXISTS zones (
		show_time_id BIGINT NOT NULL REFERENCES show_times(id) ON DELETE CASCADE,
		id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		remaining INTEGER NOT NULL DEFAULT 0,
		ticket_price BIGINT NOT NULL DEFAULT 0,
		service_price BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL,
		PRIMARY KEY (show_time_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		code VARCHAR(64) PRIMARY KEY,
		event_id BIGINT NOT NULL,
		event_name VARCHAR(255) NOT NULL,
		poster TEXT NOT NULL DEFAULT '',
		event_type VARCHAR(20) NOT NULL,
		show_time_id BIGINT NOT NULL DEFAULT 0,
		show_time_name VARCHAR(255) NOT NULL DEFAULT '',
		zone_id BIGINT NOT NULL DEFAULT 0,
		zone_name VARCHAR(255) NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL,
		adjusted_quantity INTEGER NOT NULL DEFAULT 0,
		nickname VARCHAR(255) NOT NULL,
		name_list TEXT[] NOT NULL DEFAULT '{}',
		notes TEXT NOT NULL DEFAULT '',
		deposit BIGINT NOT NULL,
		ticket_price BIGINT NOT NULL DEFAULT 0,
		service_fee BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL DEFAULT 0,
		status VARCHAR(32) NOT NULL,
		payment_method VARCHAR(20) NOT NULL DEFAULT '',
		payment_deadline TIMESTAMPTZ,
		extra_fields JSONB,
		proof JSONB,
		reminded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_wizard_states_updated_at ON wizard_states(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_show_times_event_id ON show_times(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_payment_deadline ON bookings(payment_deadline) WHERE reminded_at IS NULL`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", i, err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
