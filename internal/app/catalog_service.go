package app

import (
	"context"
	"strings"
	"time"

	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
)

// CatalogRepository stores events. Every lookup is scoped by owner: an
// event owned by someone else is reported as domain.ErrEventNotFound.
type CatalogRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context, ownerID string) ([]domain.Event, error)
	GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error)
	UpdateEvent(ctx context.Context, event domain.Event) error
	DeleteEvent(ctx context.Context, ownerID, eventID string) error
}

type CatalogService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	OwnerID  string
	Name     string
	StartsAt time.Time
	EndsAt   time.Time
}

func (s *CatalogService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	name := strings.TrimSpace(in.Name)
	if err := domain.ValidateEventFields(name, in.StartsAt, in.EndsAt); err != nil {
		return domain.Event{}, err
	}

	event := domain.Event{
		ID:        newUUID(),
		OwnerID:   in.OwnerID,
		Name:      name,
		StartsAt:  in.StartsAt.UTC(),
		EndsAt:    in.EndsAt.UTC(),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

// ListEvents returns the owner's events by start time, earliest first.
func (s *CatalogService) ListEvents(ctx context.Context, ownerID string) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx, ownerID)
}

func (s *CatalogService) GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error) {
	return s.repo.GetEvent(ctx, ownerID, eventID)
}

// editGrid is the half-hour grid edited start and end times snap to, so
// the slots of a 30 minute report fall on round clock times.
const editGrid = 30 * time.Minute

// UpdateEventInput carries optional replacements; nil fields are kept.
type UpdateEventInput struct {
	OwnerID  string
	EventID  string
	Name     *string
	StartsAt *time.Time
	EndsAt   *time.Time
}

func (s *CatalogService) UpdateEvent(ctx context.Context, in UpdateEventInput) (domain.Event, error) {
	event, err := s.repo.GetEvent(ctx, in.OwnerID, in.EventID)
	if err != nil {
		return domain.Event{}, err
	}
	if in.Name != nil {
		event.Name = strings.TrimSpace(*in.Name)
	}
	if in.StartsAt != nil {
		event.StartsAt = in.StartsAt.UTC().Round(editGrid)
	}
	if in.EndsAt != nil {
		event.EndsAt = in.EndsAt.UTC().Round(editGrid)
	}
	if err := domain.ValidateEventFields(event.Name, event.StartsAt, event.EndsAt); err != nil {
		return domain.Event{}, err
	}
	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *CatalogService) DeleteEvent(ctx context.Context, ownerID, eventID string) error {
	return s.repo.DeleteEvent(ctx, ownerID, eventID)
}

// Summary counts the owner's events by status and sums their totals.
func (s *CatalogService) Summary(ctx context.Context, ownerID string) (domain.Summary, error) {
	events, err := s.repo.ListEvents(ctx, ownerID)
	if err != nil {
		return domain.Summary{}, err
	}
	now := s.clock.Now()
	sum := domain.Summary{Events: len(events)}
	for _, e := range events {
		switch e.Status(now) {
		case domain.EventStatusUpcoming:
			sum.Upcoming++
		case domain.EventStatusActive:
			sum.Active++
		case domain.EventStatusPast:
			sum.Past++
		}
		sum.Attendees += e.Total
	}
	return sum, nil
}
