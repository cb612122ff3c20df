package repo

import (
	"context"
	"fmt"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// AccountRepo defines the interface for account repository operations. The
// registration flow creates exactly one account per customer, inside the
// activation transaction.
type AccountRepo interface {
	Create(ctx context.Context, a *model.Account) error
	GetByCustomerID(ctx context.Context, customerID uuid.UUID) (model.Account, error)
}

type accountRepo struct {
	db Querier
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db Querier) AccountRepo {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (customer_id, account_type, plan)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query, a.CustomerID, a.AccountType, a.Plan).Scan(&idStr, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	a.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse account ID: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByCustomerID(ctx context.Context, customerID uuid.UUID) (model.Account, error) {
	query := `
		SELECT id, customer_id, account_type, plan, created_at
		FROM accounts
		WHERE customer_id = $1
	`
	var a model.Account
	var idStr, customerIDStr string
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(
		&idStr,
		&customerIDStr,
		&a.AccountType,
		&a.Plan,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Account{}, fmt.Errorf("query account: %w", err)
	}
	a.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account ID: %w", err)
	}
	a.CustomerID, err = uuid.Parse(customerIDStr)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account customer ID: %w", err)
	}
	return a, nil
}
