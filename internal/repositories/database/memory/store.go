// Package memory is a process-local schedule and ledger store. It backs the
// "memory" store driver and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	"github.com/SscSPs/mma_recurring/internal/core/domain"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	"github.com/SscSPs/mma_recurring/internal/utils/pagination"
)

type occurrenceKey struct {
	scheduleID string
	date       civil.Date
}

// Store keeps schedules, their claimed occurrences and the transactions posted for them.
type Store struct {
	mu           sync.RWMutex
	schedules    map[string]domain.Schedule
	occurrences  map[occurrenceKey]domain.Occurrence
	transactions map[string]domain.MaterializedTransaction
	txByKey      map[occurrenceKey]string
	accounts     map[string]string // account id -> household id
	categories   map[string]string
	removed      map[string]bool
	strictRefs   bool
	clock        func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithStrictReferences makes only registered accounts and categories count as existing.
// Without it every id exists until it is removed.
func WithStrictReferences() Option {
	return func(s *Store) {
		s.strictRefs = true
	}
}

// WithClock overrides the clock stamped on posted transactions.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		schedules:    make(map[string]domain.Schedule),
		occurrences:  make(map[occurrenceKey]domain.Occurrence),
		transactions: make(map[string]domain.MaterializedTransaction),
		txByKey:      make(map[occurrenceKey]string),
		accounts:     make(map[string]string),
		categories:   make(map[string]string),
		removed:      make(map[string]bool),
		locks:        make(map[string]*sync.Mutex),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ portsrepo.ScheduleRepositoryFacade = (*Store)(nil)
	_ portsrepo.LedgerRepositoryFacade   = (*Store)(nil)
	_ portsrepo.ReferenceChecker         = (*Store)(nil)
	_ portsrepo.ReferenceRegistry        = (*Store)(nil)
)

// NewRepositoryProvider exposes the store through the repository ports.
func NewRepositoryProvider(s *Store) portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		ScheduleRepo: s,
		LedgerRepo:   s,
		References:   s,
		Registry:     s,
		Close:        func() error { return nil },
	}
}

// AddAccount registers an account for householdID.
func (s *Store) AddAccount(householdID, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountID] = householdID
	delete(s.removed, accountID)
}

// AddCategory registers a category for householdID.
func (s *Store) AddCategory(householdID, categoryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[categoryID] = householdID
	delete(s.removed, categoryID)
}

// RemoveReference deletes an account or category, as if the user removed it.
func (s *Store) RemoveReference(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	delete(s.categories, id)
	s.removed[id] = true
}

// UpsertAccount implements portsrepo.ReferenceRegistry. Names are not kept.
func (s *Store) UpsertAccount(_ context.Context, householdID, accountID, _ string, active bool) error {
	if !active {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.accounts, accountID)
		s.removed[accountID] = true
		return nil
	}
	s.AddAccount(householdID, accountID)
	return nil
}

// UpsertCategory implements portsrepo.ReferenceRegistry.
func (s *Store) UpsertCategory(_ context.Context, householdID, categoryID, _ string) error {
	s.AddCategory(householdID, categoryID)
	return nil
}

// DeleteCategory implements portsrepo.ReferenceRegistry.
func (s *Store) DeleteCategory(_ context.Context, householdID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hh, ok := s.categories[categoryID]; !ok || hh != householdID {
		return apperrors.NewNotFoundError("category " + categoryID + " not found")
	}
	delete(s.categories, categoryID)
	s.removed[categoryID] = true
	return nil
}

// AccountExists implements portsrepo.ReferenceChecker.
func (s *Store) AccountExists(_ context.Context, householdID, accountID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refExists(s.accounts, householdID, accountID), nil
}

// CategoryExists implements portsrepo.ReferenceChecker.
func (s *Store) CategoryExists(_ context.Context, householdID, categoryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refExists(s.categories, householdID, categoryID), nil
}

func (s *Store) refExists(refs map[string]string, householdID, id string) bool {
	if hh, ok := refs[id]; ok {
		return hh == householdID
	}
	return !s.strictRefs && !s.removed[id]
}

// SaveSchedule implements portsrepo.ScheduleWriter.
func (s *Store) SaveSchedule(_ context.Context, schedule domain.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ScheduleID]; ok {
		return fmt.Errorf("schedule %s: %w", schedule.ScheduleID, apperrors.ErrDuplicate)
	}
	if schedule.Version == 0 {
		schedule.Version = 1
	}
	s.schedules[schedule.ScheduleID] = schedule
	return nil
}

// UpdateSchedule implements portsrepo.ScheduleWriter.
func (s *Store) UpdateSchedule(ctx context.Context, schedule domain.Schedule) error {
	return s.WithScheduleLock(ctx, schedule.ScheduleID, func(ctx context.Context, uow portsrepo.ScheduleUnitOfWork) error {
		return uow.UpdateSchedule(ctx, schedule)
	})
}

// DeleteSchedule implements portsrepo.ScheduleWriter.
func (s *Store) DeleteSchedule(_ context.Context, scheduleID string) error {
	l := s.scheduleLock(scheduleID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[scheduleID]; !ok {
		return apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
	}
	delete(s.schedules, scheduleID)
	for k := range s.occurrences {
		if k.scheduleID == scheduleID {
			delete(s.occurrences, k)
		}
	}
	return nil
}

// FindScheduleByID implements portsrepo.ScheduleReader.
func (s *Store) FindScheduleByID(_ context.Context, scheduleID string) (*domain.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return nil, apperrors.NewNotFoundError("schedule " + scheduleID + " not found")
	}
	return &schedule, nil
}

// ListSchedulesByHousehold implements portsrepo.ScheduleReader.
func (s *Store) ListSchedulesByHousehold(_ context.Context, householdID string, filter portsrepo.ScheduleListFilter) ([]domain.Schedule, *string, error) {
	var cursor *pagination.Cursor
	if filter.NextToken != nil && *filter.NextToken != "" {
		c, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, err
		}
		cursor = &c
	}

	s.mu.RLock()
	var rows []domain.Schedule
	for _, sc := range s.schedules {
		if sc.HouseholdID != householdID {
			continue
		}
		if filter.Status != nil && sc.Status != *filter.Status {
			continue
		}
		if cursor != nil && !cursor.After(sc.CreatedAt, sc.ScheduleID) {
			continue
		}
		rows = append(rows, sc)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ScheduleID < rows[j].ScheduleID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})

	var next *string
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
		last := rows[len(rows)-1]
		token := pagination.EncodeToken(last.CreatedAt, last.ScheduleID)
		next = &token
	}
	if rows == nil {
		rows = []domain.Schedule{}
	}
	return rows, next, nil
}

// ListDueSchedules implements portsrepo.ScheduleReader.
func (s *Store) ListDueSchedules(_ context.Context, asOf civil.Date, autoCreate bool) ([]domain.Schedule, error) {
	s.mu.RLock()
	var rows []domain.Schedule
	for _, sc := range s.schedules {
		if sc.AutoCreate == autoCreate && sc.IsDue(asOf) {
			rows = append(rows, sc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := *rows[i].NextOccurrence, *rows[j].NextOccurrence
		if a != b {
			return a.Before(b)
		}
		return rows[i].ScheduleID < rows[j].ScheduleID
	})
	return rows, nil
}

// ListOccurrences implements portsrepo.ScheduleReader.
func (s *Store) ListOccurrences(_ context.Context, scheduleID string, limit int) ([]domain.Occurrence, error) {
	s.mu.RLock()
	rows := []domain.Occurrence{}
	for k, occ := range s.occurrences {
		if k.scheduleID == scheduleID {
			rows = append(rows, occ)
		}
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].OccurrenceDate.After(rows[j].OccurrenceDate)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// CreateTransaction implements portsrepo.LedgerWriter. Inside WithScheduleLock the
// posting is staged and only kept if the unit of work commits.
func (s *Store) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (string, error) {
	key := occurrenceKey{scheduleID: req.ScheduleID, date: req.Date}

	s.mu.RLock()
	existing, dup := s.txByKey[key]
	accountOK := s.refExists(s.accounts, req.HouseholdID, req.AccountID)
	s.mu.RUnlock()

	uow := unitOfWorkFrom(ctx, s)
	if !dup && uow != nil {
		if staged, ok := uow.txs[key]; ok {
			existing, dup = staged.TransactionID, true
		}
	}
	if dup {
		return existing, apperrors.ErrDuplicate
	}
	if !accountOK {
		return "", apperrors.NewNotFoundError("account " + req.AccountID + " not found")
	}

	tx := domain.MaterializedTransaction{
		TransactionID:      uuid.NewString(),
		TransactionRequest: req,
		CreatedAt:          s.clock(),
	}
	if uow != nil {
		uow.txs[key] = tx
		return tx.TransactionID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.txByKey[key]; ok {
		return id, apperrors.ErrDuplicate
	}
	s.transactions[tx.TransactionID] = tx
	s.txByKey[key] = tx.TransactionID
	return tx.TransactionID, nil
}

// FindTransactionByID implements portsrepo.LedgerReader.
func (s *Store) FindTransactionByID(_ context.Context, transactionID string) (*domain.MaterializedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, apperrors.NewNotFoundError("transaction " + transactionID + " not found")
	}
	return &tx, nil
}

// Transactions returns every posted transaction ordered by date, then schedule.
func (s *Store) Transactions() []domain.MaterializedTransaction {
	s.mu.RLock()
	out := make([]domain.MaterializedTransaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ScheduleID < out[j].ScheduleID
	})
	return out
}

func (s *Store) scheduleLock(scheduleID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[scheduleID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scheduleID] = l
	}
	return l
}
