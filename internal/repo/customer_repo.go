package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// CustomerRepo defines the interface for customer repository operations
type CustomerRepo interface {
	Create(ctx context.Context, c *model.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (model.Customer, error)
	// Activate flips is_active to true. It must only be called inside the
	// activation transaction.
	Activate(ctx context.Context, id uuid.UUID) error
	// DeleteInactive removes the never-activated customer row for the tuple.
	// Used when a fresh registration replaces abandoned expired state.
	DeleteInactive(ctx context.Context, phone, email string, deviceID uuid.UUID) error
}

type customerRepo struct {
	db Querier
}

// NewCustomerRepo creates a new CustomerRepo instance
func NewCustomerRepo(db Querier) CustomerRepo {
	return &customerRepo{db: db}
}

// Create inserts a new customer row (inactive) and fills in ID and timestamp.
func (r *customerRepo) Create(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (phone_number, email, password_hash, first_name, last_name, is_active, role, device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		c.PhoneNumber, c.Email, c.PasswordHash, c.FirstName, c.LastName, c.IsActive, c.Role, c.DeviceID,
	).Scan(&idStr, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse customer ID: %w", err)
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *customerRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	query := `
		SELECT id, phone_number, email, password_hash, first_name, last_name, is_active, role, device_id, created_at
		FROM customers
		WHERE id = $1
	`
	var c model.Customer
	var idStr, deviceIDStr string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&idStr,
		&c.PhoneNumber,
		&c.Email,
		&c.PasswordHash,
		&c.FirstName,
		&c.LastName,
		&c.IsActive,
		&c.Role,
		&deviceIDStr,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Customer{}, fmt.Errorf("customer: %w", ErrNotFound)
		}
		return model.Customer{}, fmt.Errorf("query customer: %w", err)
	}
	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Customer{}, fmt.Errorf("parse customer ID: %w", err)
	}
	c.DeviceID, err = uuid.Parse(deviceIDStr)
	if err != nil {
		return model.Customer{}, fmt.Errorf("parse customer device ID: %w", err)
	}
	return c, nil
}

// Activate sets is_active = true for the customer
func (r *customerRepo) Activate(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE customers SET is_active = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("activate customer: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteInactive removes the inactive customer row created by an abandoned
// registration. Deleting zero rows is not an error; activated customers are
// never touched.
func (r *customerRepo) DeleteInactive(ctx context.Context, phone, email string, deviceID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM customers
		WHERE phone_number = $1 AND email = $2 AND device_id = $3 AND is_active = FALSE
	`, phone, email, deviceID)
	if err != nil {
		return fmt.Errorf("delete inactive customer: %w", err)
	}
	return nil
}
