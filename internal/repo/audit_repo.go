package repo

import (
	"context"
	"fmt"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// AttemptRepo records registration attempt audit rows. Rows are append-only.
type AttemptRepo interface {
	Create(ctx context.Context, a *model.RegistrationAttempt) error
}

type attemptRepo struct {
	db Querier
}

// NewAttemptRepo creates a new AttemptRepo instance
func NewAttemptRepo(db Querier) AttemptRepo {
	return &attemptRepo{db: db}
}

func (r *attemptRepo) Create(ctx context.Context, a *model.RegistrationAttempt) error {
	query := `
		INSERT INTO registration_attempts (phone_number, email, ip, device_id, action, result, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		a.PhoneNumber, a.Email, a.IP, a.DeviceID, string(a.Action), string(a.Result), a.Reason,
	).Scan(&idStr, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert registration attempt: %w", err)
	}
	a.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse attempt ID: %w", err)
	}
	return nil
}

// SmsEventRepo records outbound notification audit rows.
type SmsEventRepo interface {
	Create(ctx context.Context, e *model.SmsEvent) error
}

type smsEventRepo struct {
	db Querier
}

// NewSmsEventRepo creates a new SmsEventRepo instance
func NewSmsEventRepo(db Querier) SmsEventRepo {
	return &smsEventRepo{db: db}
}

func (r *smsEventRepo) Create(ctx context.Context, e *model.SmsEvent) error {
	query := `
		INSERT INTO sms_events (phone_number, direction, status, message, device_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		e.PhoneNumber, e.Direction, e.Status, e.Message, e.DeviceID,
	).Scan(&idStr, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sms event: %w", err)
	}
	e.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse sms event ID: %w", err)
	}
	return nil
}
