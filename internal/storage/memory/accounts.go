package memory

import (
	"context"

	"github.com/tho-bre/event-flow/internal/domain"
)

func (s *Store) CreateAssociation(_ context.Context, assoc domain.Association, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[assoc.Email]; ok {
		return domain.ErrEmailTaken
	}
	s.accounts[assoc.ID] = &accountRecord{assoc: assoc, hash: passwordHash}
	s.emails[assoc.Email] = assoc.ID
	return nil
}

func (s *Store) FindCredentials(_ context.Context, email string) (domain.Association, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return domain.Association{}, "", domain.ErrAssociationNotFound
	}
	rec := s.accounts[id]
	return rec.assoc, rec.hash, nil
}

func (s *Store) GetAssociation(_ context.Context, id string) (domain.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[id]
	if !ok {
		return domain.Association{}, domain.ErrAssociationNotFound
	}
	return rec.assoc, nil
}

func (s *Store) SetActive(_ context.Context, email string, active bool) (domain.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return domain.Association{}, domain.ErrAssociationNotFound
	}
	rec := s.accounts[id]
	rec.assoc.Active = active
	return rec.assoc, nil
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[session.AssociationID]; !ok {
		return domain.ErrAssociationNotFound
	}
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, tokenHash string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteSessions(_ context.Context, associationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, session := range s.sessions {
		if session.AssociationID == associationID {
			delete(s.sessions, hash)
		}
	}
	return nil
}
