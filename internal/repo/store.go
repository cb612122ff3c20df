package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same repository code serves both plain reads and transactional writes.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store bundles the per-entity repositories and the transaction-scoping
// primitive that groups multiple writes atomically.
type Store interface {
	Devices() DeviceRepo
	Blocks() BlockRepo
	Customers() CustomerRepo
	Tokens() TokenRepo
	Attempts() AttemptRepo
	SmsEvents() SmsEventRepo
	Accounts() AccountRepo

	// WithinTx runs fn against a Store whose repositories share one
	// transaction. The transaction commits iff fn returns nil.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type store struct {
	db *sql.DB
	q  Querier
}

// NewStore creates a Postgres-backed Store.
func NewStore(db *sql.DB) Store {
	return &store{db: db, q: db}
}

func (s *store) Devices() DeviceRepo     { return NewDeviceRepo(s.q) }
func (s *store) Blocks() BlockRepo       { return NewBlockRepo(s.q) }
func (s *store) Customers() CustomerRepo { return NewCustomerRepo(s.q) }
func (s *store) Tokens() TokenRepo       { return NewTokenRepo(s.q) }
func (s *store) Attempts() AttemptRepo   { return NewAttemptRepo(s.q) }
func (s *store) SmsEvents() SmsEventRepo { return NewSmsEventRepo(s.q) }
func (s *store) Accounts() AccountRepo   { return NewAccountRepo(s.q) }

func (s *store) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&store{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
