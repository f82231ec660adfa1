package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	ScheduleRepo ScheduleRepositoryFacade
	LedgerRepo   LedgerRepositoryFacade
	References   ReferenceChecker
	// Registry is nil when accounts and categories are owned by an external ledger.
	Registry ReferenceRegistry
	Close    func() error
}
