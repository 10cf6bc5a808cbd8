package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tho-bre/event-flow/internal/domain"
)

// AccountRepository stores associations and their sessions.
type AccountRepository struct {
	conn
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{conn: conn{pool: pool}}
}

func (r *AccountRepository) CreateAssociation(ctx context.Context, assoc domain.Association, passwordHash string) error {
	const stmt = `
INSERT INTO associations (id, name, email, password_hash, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, assoc.ID, assoc.Name, assoc.Email, passwordHash, assoc.Active, assoc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("create association: %w", err)
	}
	return nil
}

func (r *AccountRepository) FindCredentials(ctx context.Context, email string) (domain.Association, string, error) {
	const query = `
SELECT id, name, email, active, created_at, password_hash
FROM associations WHERE email = $1`

	var (
		a    domain.Association
		hash string
	)
	err := r.queryRow(ctx, query, email).Scan(&a.ID, &a.Name, &a.Email, &a.Active, &a.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Association{}, "", domain.ErrAssociationNotFound
		}
		return domain.Association{}, "", fmt.Errorf("find credentials: %w", err)
	}
	return a, hash, nil
}

func (r *AccountRepository) GetAssociation(ctx context.Context, id string) (domain.Association, error) {
	const query = `SELECT id, name, email, active, created_at FROM associations WHERE id = $1`

	var a domain.Association
	err := r.queryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Email, &a.Active, &a.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Association{}, domain.ErrAssociationNotFound
		}
		return domain.Association{}, fmt.Errorf("get association: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) SetActive(ctx context.Context, email string, active bool) (domain.Association, error) {
	const stmt = `
UPDATE associations SET active = $2 WHERE email = $1
RETURNING id, name, email, active, created_at`

	var a domain.Association
	err := r.queryRow(ctx, stmt, email, active).Scan(&a.ID, &a.Name, &a.Email, &a.Active, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Association{}, domain.ErrAssociationNotFound
		}
		return domain.Association{}, fmt.Errorf("set active: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) CreateSession(ctx context.Context, session domain.Session) error {
	const stmt = `
INSERT INTO sessions (token_hash, association_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, session.TokenHash, session.AssociationID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidUUID(err) {
			return domain.ErrAssociationNotFound
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetSession(ctx context.Context, tokenHash string) (domain.Session, error) {
	const query = `
SELECT token_hash, association_id, created_at, expires_at
FROM sessions WHERE token_hash = $1`

	var s domain.Session
	err := r.queryRow(ctx, query, tokenHash).Scan(&s.TokenHash, &s.AssociationID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *AccountRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *AccountRepository) DeleteSessions(ctx context.Context, associationID string) error {
	if _, err := r.exec(ctx, `DELETE FROM sessions WHERE association_id = $1`, associationID); err != nil {
		if isInvalidUUID(err) {
			return nil
		}
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}
