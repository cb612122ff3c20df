package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// TokenRepo defines the interface for registration token repository
// operations. The one-pending-token-per-(phone, email, device) invariant is
// kept by rotating the existing row in place instead of inserting new rows.
type TokenRepo interface {
	Create(ctx context.Context, t *model.RegistrationToken) error
	// FindLatestPending returns the most recent pending token for the tuple,
	// regardless of expiry. Used by the resend path.
	FindLatestPending(ctx context.Context, phone, email string, deviceID uuid.UUID) (model.RegistrationToken, error)
	// FindActive returns the pending, unverified, unexpired token for the
	// tuple. Used by the verify path.
	FindActive(ctx context.Context, phone, email string, deviceID uuid.UUID, now time.Time) (model.RegistrationToken, error)
	// LockByID reads the token under SELECT ... FOR UPDATE. Only meaningful
	// inside a transaction; concurrent verifies serialize on this lock.
	LockByID(ctx context.Context, id uuid.UUID) (model.RegistrationToken, error)
	// Rotate replaces the token hash and lifetime of the same row, resets
	// attempts to zero, and restamps created_at so the resend cooldown is
	// measured from the rotation.
	Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, now time.Time) error
	// IncrementAttempts adds one to attempts and returns the new count.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	// MarkVerified transitions the row from pending to verified. Affects zero
	// rows if the token is no longer pending.
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes a token row. Used when a fresh registration replaces an
	// expired pending token that was abandoned.
	Delete(ctx context.Context, id uuid.UUID) error
}

type tokenRepo struct {
	db Querier
}

// NewTokenRepo creates a new TokenRepo instance
func NewTokenRepo(db Querier) TokenRepo {
	return &tokenRepo{db: db}
}

const tokenColumns = `
	id, phone_number, email, token_hash, token_type, device_id, fingerprint,
	ip, status, attempts, max_attempts, expires_at, verified_at, created_at`

// Create inserts a new pending token and fills in ID and timestamp.
func (r *tokenRepo) Create(ctx context.Context, t *model.RegistrationToken) error {
	query := `
		INSERT INTO registration_tokens
			(phone_number, email, token_hash, token_type, device_id, fingerprint, ip, status, attempts, max_attempts, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		t.PhoneNumber, t.Email, t.TokenHash, t.TokenType, t.DeviceID, t.Fingerprint,
		t.IP, string(t.Status), t.Attempts, t.MaxAttempts, t.ExpiresAt,
	).Scan(&idStr, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert registration token: %w", err)
	}
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse token ID: %w", err)
	}
	return nil
}

func (r *tokenRepo) FindLatestPending(ctx context.Context, phone, email string, deviceID uuid.UUID) (model.RegistrationToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM registration_tokens
		WHERE phone_number = $1 AND email = $2 AND device_id = $3
		  AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, phone, email, deviceID))
}

func (r *tokenRepo) FindActive(ctx context.Context, phone, email string, deviceID uuid.UUID, now time.Time) (model.RegistrationToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM registration_tokens
		WHERE phone_number = $1 AND email = $2 AND device_id = $3
		  AND status = 'pending'
		  AND verified_at IS NULL
		  AND expires_at > $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, phone, email, deviceID, now))
}

func (r *tokenRepo) LockByID(ctx context.Context, id uuid.UUID) (model.RegistrationToken, error) {
	query := `
		SELECT ` + tokenColumns + `
		FROM registration_tokens
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *tokenRepo) Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE registration_tokens
		SET token_hash = $2, expires_at = $3, attempts = 0, created_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, tokenHash, expiresAt, now)
	if err != nil {
		return fmt.Errorf("rotate token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *tokenRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE registration_tokens
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`, id).Scan(&newCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("token %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return newCount, nil
}

func (r *tokenRepo) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE registration_tokens
		SET status = 'verified', verified_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark token verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("token %s no longer pending: %w", id, ErrNotFound)
	}
	return nil
}

func (r *tokenRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM registration_tokens WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("token %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *tokenRepo) scanOne(row *sql.Row) (model.RegistrationToken, error) {
	var t model.RegistrationToken
	var idStr, deviceIDStr, statusStr string
	err := row.Scan(
		&idStr,
		&t.PhoneNumber,
		&t.Email,
		&t.TokenHash,
		&t.TokenType,
		&deviceIDStr,
		&t.Fingerprint,
		&t.IP,
		&statusStr,
		&t.Attempts,
		&t.MaxAttempts,
		&t.ExpiresAt,
		&t.VerifiedAt,
		&t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RegistrationToken{}, fmt.Errorf("registration token: %w", ErrNotFound)
		}
		return model.RegistrationToken{}, fmt.Errorf("query registration token: %w", err)
	}
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.RegistrationToken{}, fmt.Errorf("parse token ID: %w", err)
	}
	t.DeviceID, err = uuid.Parse(deviceIDStr)
	if err != nil {
		return model.RegistrationToken{}, fmt.Errorf("parse token device ID: %w", err)
	}
	t.Status = model.TokenStatus(statusStr)
	return t, nil
}
