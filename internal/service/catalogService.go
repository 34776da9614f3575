package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type catalogService struct {
	eventRepo database.EventRepository
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(eventRepo database.EventRepository) CatalogService {
	return &catalogService{eventRepo: eventRepo}
}

// ListEvents returns the whole catalog, or the events whose name contains query.
func (s *catalogService) ListEvents(ctx context.Context, query string) ([]*entity.EventWithAvailability, error) {
	var (
		events []*entity.Event
		err    error
	)
	if strings.TrimSpace(query) == "" {
		events, err = s.eventRepo.GetAll(ctx)
	} else {
		events, err = s.eventRepo.SearchByName(ctx, strings.TrimSpace(query))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	out := make([]*entity.EventWithAvailability, 0, len(events))
	for _, ev := range events {
		out = append(out, withAvailability(ev))
	}
	return out, nil
}

func (s *catalogService) GetEvent(ctx context.Context, id int64) (*entity.EventWithAvailability, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return withAvailability(event), nil
}

func withAvailability(ev *entity.Event) *entity.EventWithAvailability {
	return &entity.EventWithAvailability{Event: *ev, Available: ev.IsAvailable()}
}
