package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tho-bre/event-flow/internal/auth"
	"github.com/tho-bre/event-flow/internal/clock"
	"github.com/tho-bre/event-flow/internal/domain"
	"github.com/tho-bre/event-flow/internal/realtime"
)

// AccountRepository is the identity collaborator: associations, their
// credentials and their sessions.
type AccountRepository interface {
	CreateAssociation(ctx context.Context, assoc domain.Association, passwordHash string) error
	FindCredentials(ctx context.Context, email string) (domain.Association, string, error)
	GetAssociation(ctx context.Context, id string) (domain.Association, error)
	SetActive(ctx context.Context, email string, active bool) (domain.Association, error)
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, tokenHash string) (domain.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteSessions(ctx context.Context, associationID string) error
}

// GateService maps credentials and bearer tokens to active associations.
type GateService struct {
	repo       AccountRepository
	clock      clock.Clock
	params     auth.Params
	sessionTTL time.Duration
	identity   *realtime.Broker[domain.IdentityEvent]
}

const (
	defaultSessionTTL = 12 * time.Hour
	minPasswordLen    = 6
)

func NewGateService(repo AccountRepository, clk clock.Clock, opts ...GateServiceOption) *GateService {
	svc := &GateService{
		repo:       repo,
		clock:      clk,
		params:     auth.DefaultParams,
		sessionTTL: defaultSessionTTL,
		identity:   realtime.NewBroker[domain.IdentityEvent](),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type GateServiceOption func(*GateService)

func WithSessionTTL(d time.Duration) GateServiceOption {
	return func(s *GateService) {
		if d > 0 {
			s.sessionTTL = d
		}
	}
}

// WithHashParams overrides the Argon2id cost (tests use cheap params).
func WithHashParams(p auth.Params) GateServiceOption {
	return func(s *GateService) {
		s.params = p
	}
}

type SessionResult struct {
	Token       string
	ExpiresAt   time.Time
	Association domain.Association
}

// Register creates an inactive association. It never opens a session: on
// success it returns domain.ErrPendingActivation.
func (s *GateService) Register(ctx context.Context, email, secret, name string) error {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return domain.ErrEmailRequired
	}
	if len(secret) < minPasswordLen {
		return domain.ErrPasswordTooShort
	}
	if name == "" {
		return domain.ErrAssociationNameRequired
	}

	hash, err := auth.HashPassword(secret, s.params)
	if err != nil {
		return err
	}
	assoc := domain.Association{
		ID:        newUUID(),
		Name:      name,
		Email:     email,
		Active:    false,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateAssociation(ctx, assoc, hash); err != nil {
		return err
	}
	return domain.ErrPendingActivation
}

// Authenticate verifies credentials and opens a session for an active
// association.
func (s *GateService) Authenticate(ctx context.Context, email, secret string) (SessionResult, error) {
	email = normalizeEmail(email)
	if email == "" || secret == "" {
		return SessionResult{}, domain.ErrAuthFailed
	}

	assoc, hash, err := s.repo.FindCredentials(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return SessionResult{}, domain.ErrAuthFailed
	}
	if err != nil {
		return SessionResult{}, err
	}
	ok, err := auth.VerifyPassword(secret, hash)
	if err != nil || !ok {
		return SessionResult{}, domain.ErrAuthFailed
	}
	if !assoc.Active {
		return SessionResult{}, domain.ErrAccountNotActivated
	}

	token, tokenHash, err := auth.NewSessionToken()
	if err != nil {
		return SessionResult{}, err
	}
	now := s.clock.Now()
	session := domain.Session{
		TokenHash:     tokenHash,
		AssociationID: assoc.ID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.sessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return SessionResult{}, err
	}

	s.publish(domain.IdentitySignedIn, assoc.ID)
	return SessionResult{Token: token, ExpiresAt: session.ExpiresAt, Association: assoc}, nil
}

// Resolve maps a bearer token to its association. Sessions of an
// association that lost its activation are terminated here.
func (s *GateService) Resolve(ctx context.Context, token string) (domain.Association, error) {
	if !auth.WellFormed(token) {
		return domain.Association{}, domain.ErrAuthFailed
	}
	tokenHash := auth.HashToken(token)

	session, err := s.repo.GetSession(ctx, tokenHash)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Association{}, domain.ErrAuthFailed
	}
	if err != nil {
		return domain.Association{}, err
	}
	if session.Expired(s.clock.Now()) {
		_ = s.repo.DeleteSession(ctx, tokenHash)
		return domain.Association{}, domain.ErrAuthFailed
	}

	assoc, err := s.repo.GetAssociation(ctx, session.AssociationID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = s.repo.DeleteSession(ctx, tokenHash)
		return domain.Association{}, domain.ErrAuthFailed
	}
	if err != nil {
		return domain.Association{}, err
	}
	if !assoc.Active {
		if err := s.repo.DeleteSessions(ctx, assoc.ID); err != nil {
			return domain.Association{}, err
		}
		s.publish(domain.IdentityDeactivated, assoc.ID)
		return domain.Association{}, domain.ErrAccountNotActivated
	}
	return assoc, nil
}

// SignOut ends the session behind token. Unknown tokens are ignored.
func (s *GateService) SignOut(ctx context.Context, token string) error {
	if !auth.WellFormed(token) {
		return nil
	}
	tokenHash := auth.HashToken(token)
	session, err := s.repo.GetSession(ctx, tokenHash)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSession(ctx, tokenHash); err != nil {
		return err
	}
	s.publish(domain.IdentitySignedOut, session.AssociationID)
	return nil
}

// SetActivation is the operator switch. Deactivation ends every session
// of the association.
func (s *GateService) SetActivation(ctx context.Context, email string, active bool) (domain.Association, error) {
	assoc, err := s.repo.SetActive(ctx, normalizeEmail(email), active)
	if err != nil {
		return domain.Association{}, err
	}
	if !active {
		if err := s.repo.DeleteSessions(ctx, assoc.ID); err != nil {
			return domain.Association{}, err
		}
		s.publish(domain.IdentityDeactivated, assoc.ID)
	}
	return assoc, nil
}

// Subscribe streams identity changes. A nil match receives all of them.
func (s *GateService) Subscribe(match func(domain.IdentityEvent) bool) (<-chan domain.IdentityEvent, func()) {
	return s.identity.Subscribe(match)
}

func (s *GateService) publish(kind domain.IdentityEventKind, associationID string) {
	s.identity.Publish(domain.IdentityEvent{
		Kind:          kind,
		AssociationID: associationID,
		At:            s.clock.Now(),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
