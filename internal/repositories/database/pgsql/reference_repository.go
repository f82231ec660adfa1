package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
)

// PgxReferenceRepository checks the accounts and categories a schedule points at.
type PgxReferenceRepository struct {
	BaseRepository
}

func newPgxReferenceRepository(pool *pgxpool.Pool) *PgxReferenceRepository {
	return &PgxReferenceRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.ReferenceChecker = (*PgxReferenceRepository)(nil)

// AccountExists reports whether the household still has an active account accountID.
func (r *PgxReferenceRepository) AccountExists(ctx context.Context, householdID, accountID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1 AND household_id = $2 AND is_active);`, accountID, householdID)
}

// CategoryExists reports whether the household still has category categoryID.
func (r *PgxReferenceRepository) CategoryExists(ctx context.Context, householdID, categoryID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE category_id = $1 AND household_id = $2);`, categoryID, householdID)
}

func (r *PgxReferenceRepository) exists(ctx context.Context, query, id, householdID string) (bool, error) {
	var ok bool
	if err := r.q(ctx).QueryRow(ctx, query, id, householdID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to look up reference %s: %w", id, err)
	}
	return ok, nil
}
