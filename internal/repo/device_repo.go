package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// DeviceRepo defines the interface for device repository operations. The
// registration core only reads devices; they are created by the
// device-registration surface.
type DeviceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Device, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type deviceRepo struct {
	db Querier
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db Querier) DeviceRepo {
	return &deviceRepo{db: db}
}

// GetByID retrieves a device by ID
func (r *deviceRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Device, error) {
	query := `
		SELECT id, customer_id, fingerprint, active, last_used_at, created_at
		FROM devices
		WHERE id = $1
	`
	var d model.Device
	var idStr string
	var customerIDStr sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&idStr,
		&customerIDStr,
		&d.Fingerprint,
		&d.Active,
		&d.LastUsedAt,
		&d.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Device{}, fmt.Errorf("device %s: %w", id, ErrNotFound)
		}
		return model.Device{}, fmt.Errorf("query device: %w", err)
	}
	d.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Device{}, fmt.Errorf("parse device ID: %w", err)
	}
	if customerIDStr.Valid && customerIDStr.String != "" {
		cid, err := uuid.Parse(customerIDStr.String)
		if err != nil {
			return model.Device{}, fmt.Errorf("parse device customer ID: %w", err)
		}
		d.CustomerID = &cid
	}
	return d, nil
}

// TouchLastUsed updates the device's last-used timestamp
func (r *deviceRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_used_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	return nil
}
