package wizard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

// StorageKey is the durable key the wizard blob is saved under.
const StorageKey = "yoye_booking_state"

// SessionKey namespaces StorageKey for one browser session.
func SessionKey(sessionID string) string {
	return StorageKey + ":" + sessionID
}

// Store persists the wizard blob under a single key.
type Store interface {
	Load(ctx context.Context) (*entity.WizardState, error)
	Save(ctx context.Context, state *entity.WizardState) error
	Clear(ctx context.Context) error
}

// BlobRepository is a key-value backend for raw blobs. A missing key must be
// reported as entity.ErrStateNotFound.
type BlobRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
}

type blobStore struct {
	repo BlobRepository
	key  string
}

// NewStore binds a blob repository to one key and does the JSON encoding.
func NewStore(repo BlobRepository, key string) Store {
	return &blobStore{repo: repo, key: key}
}

func (s *blobStore) Load(ctx context.Context) (*entity.WizardState, error) {
	blob, err := s.repo.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}

	var state entity.WizardState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("decode wizard state %s: %w", s.key, err)
	}
	return &state, nil
}

func (s *blobStore) Save(ctx context.Context, state *entity.WizardState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode wizard state: %w", err)
	}
	return s.repo.Set(ctx, s.key, blob)
}

func (s *blobStore) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, s.key)
}
