package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type stateRepository struct {
	db *sql.DB
}

// NewStateRepository keeps wizard blobs in the wizard_states table.
func NewStateRepository(db *sql.DB) database.StateRepository {
	return &stateRepository{db: db}
}

func (r *stateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT state FROM wizard_states WHERE key = $1`

	var blob []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, entity.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wizard state: %w", err)
	}
	return blob, nil
}

func (r *stateRepository) Set(ctx context.Context, key string, blob []byte) error {
	query := `
		INSERT INTO wizard_states (key, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, key, blob, time.Now()); err != nil {
		return fmt.Errorf("failed to save wizard state: %w", err)
	}
	return nil
}

func (r *stateRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wizard_states WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete wizard state: %w", err)
	}
	return nil
}

func (r *stateRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM wizard_states WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale wizard states: %w", err)
	}
	return result.RowsAffected()
}
