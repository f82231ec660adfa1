package pgsql

import (
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		ScheduleRepo: newPgxScheduleRepository(dbPool),
		LedgerRepo:   newPgxLedgerRepository(dbPool),
		References:   newPgxReferenceRepository(dbPool),
		Close: func() error {
			dbPool.Close()
			return nil
		},
	}
}
