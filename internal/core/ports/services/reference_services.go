package services

import (
	"context"

	"github.com/SscSPs/mma_recurring/internal/dto"
)

// ReferenceSvc keeps the local copy of accounts and categories that materialization
// checks against. It is only available for stores that keep such a copy.
type ReferenceSvc interface {
	UpsertAccount(ctx context.Context, householdID, accountID string, req dto.UpsertAccountRequest) error
	UpsertCategory(ctx context.Context, householdID, categoryID string, req dto.UpsertCategoryRequest) error
	DeleteCategory(ctx context.Context, householdID, categoryID string) error
}
