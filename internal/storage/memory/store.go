// Package memory is an in-process implementation of the store and
// identity collaborators. It honours the same contracts as the Postgres
// repositories, including the versioned tap append, and is used by tests
// and by STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tho-bre/event-flow/internal/domain"
)

type eventRecord struct {
	event domain.Event
	log   []domain.Tap
}

type accountRecord struct {
	assoc domain.Association
	hash  string
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	events   map[string]*eventRecord
	accounts map[string]*accountRecord // by id
	emails   map[string]string         // email -> id
	sessions map[string]domain.Session

	onChange func(domain.Change)
}

type Option func(*Store)

// WithChangeHook is called after each committed event write, outside the
// store lock.
func WithChangeHook(fn func(domain.Change)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		events:   make(map[string]*eventRecord),
		accounts: make(map[string]*accountRecord),
		emails:   make(map[string]string),
		sessions: make(map[string]domain.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) notify(c domain.Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

// owned returns the record only when it belongs to ownerID. Caller holds mu.
func (s *Store) owned(ownerID, eventID string) (*eventRecord, error) {
	rec, ok := s.events[eventID]
	if !ok || rec.event.OwnerID != ownerID {
		return nil, domain.ErrEventNotFound
	}
	return rec, nil
}

func (s *Store) CreateEvent(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return domain.ErrValidation
	}
	event.Total, event.Version = 0, 0
	s.events[event.ID] = &eventRecord{event: event}
	return nil
}

func (s *Store) ListEvents(_ context.Context, ownerID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []domain.Event
	for _, rec := range s.events {
		if rec.event.OwnerID == ownerID {
			events = append(events, rec.event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func (s *Store) GetEvent(_ context.Context, ownerID, eventID string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.owned(ownerID, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	return rec.event, nil
}

func (s *Store) UpdateEvent(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	rec, err := s.owned(event.OwnerID, event.ID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rec.event.Name = event.Name
	rec.event.StartsAt = event.StartsAt
	rec.event.EndsAt = event.EndsAt
	change := changeOf(rec.event, domain.ChangeUpdated)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, ownerID, eventID string) error {
	s.mu.Lock()
	rec, err := s.owned(ownerID, eventID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.events, eventID)
	change := changeOf(rec.event, domain.ChangeDeleted)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

func (s *Store) AppendTap(_ context.Context, ownerID string, expectedVersion int64, tap domain.Tap) (domain.Event, error) {
	s.mu.Lock()
	rec, err := s.owned(ownerID, tap.EventID)
	if err != nil {
		s.mu.Unlock()
		return domain.Event{}, err
	}
	if rec.event.Version != expectedVersion {
		s.mu.Unlock()
		return domain.Event{}, domain.ErrVersionConflict
	}
	if rec.event.Total+tap.Kind.Delta() < 0 {
		s.mu.Unlock()
		return domain.Event{}, domain.ErrTotalAtZero
	}
	tap.Seq = expectedVersion + 1
	rec.log = append(rec.log, tap)
	rec.event.Total += tap.Kind.Delta()
	rec.event.Version = tap.Seq
	updated := rec.event
	s.mu.Unlock()

	s.notify(changeOf(updated, domain.ChangeTap))
	return updated, nil
}

func (s *Store) ListTaps(_ context.Context, ownerID, eventID string) ([]domain.Tap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.owned(ownerID, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tap, len(rec.log))
	copy(out, rec.log)
	return out, nil
}

func (s *Store) RecentTaps(_ context.Context, ownerID, eventID string, limit int) ([]domain.Tap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.owned(ownerID, eventID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tap, 0, limit)
	for i := len(rec.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, rec.log[i])
	}
	return out, nil
}

func changeOf(e domain.Event, kind domain.ChangeKind) domain.Change {
	return domain.Change{
		EventID: e.ID,
		OwnerID: e.OwnerID,
		Kind:    kind,
		Total:   e.Total,
		Version: e.Version,
	}
}
