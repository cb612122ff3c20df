package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/enrolld/server/internal/model"
	"github.com/google/uuid"
)

// BlockRepo defines the interface for block repository operations
type BlockRepo interface {
	// FindActive returns the active block for (scope, value) at the given
	// time, or nil if none exists. A block is active iff active = true and
	// expires_at is null or in the future.
	FindActive(ctx context.Context, scope model.BlockScope, value string, now time.Time) (*model.Block, error)
	Create(ctx context.Context, block *model.Block) error
}

type blockRepo struct {
	db Querier
}

// NewBlockRepo creates a new BlockRepo instance
func NewBlockRepo(db Querier) BlockRepo {
	return &blockRepo{db: db}
}

func (r *blockRepo) FindActive(ctx context.Context, scope model.BlockScope, value string, now time.Time) (*model.Block, error) {
	query := `
		SELECT id, scope, value, active, expires_at, reason, source, created_at
		FROM blocks
		WHERE scope = $1
		  AND value = $2
		  AND active = TRUE
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	var b model.Block
	var idStr string
	err := r.db.QueryRowContext(ctx, query, string(scope), value, now).Scan(
		&idStr,
		&b.Scope,
		&b.Value,
		&b.Active,
		&b.ExpiresAt,
		&b.Reason,
		&b.Source,
		&b.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query block: %w", err)
	}
	b.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse block ID: %w", err)
	}
	return &b, nil
}

// Create inserts a new block and fills in the generated ID and timestamp.
func (r *blockRepo) Create(ctx context.Context, block *model.Block) error {
	query := `
		INSERT INTO blocks (scope, value, active, expires_at, reason, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		string(block.Scope), block.Value, block.Active, block.ExpiresAt, block.Reason, block.Source,
	).Scan(&idStr, &block.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	block.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("parse block ID: %w", err)
	}
	return nil
}
