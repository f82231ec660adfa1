package services

import (
	"context"
	"log/slog"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
)

// referenceService implements portssvc.ReferenceSvc
type referenceService struct {
	BaseService
	registry portsrepo.ReferenceRegistry
}

// NewReferenceService creates a service writing through registry.
func NewReferenceService(registry portsrepo.ReferenceRegistry) portssvc.ReferenceSvc {
	return &referenceService{registry: registry}
}

var _ portssvc.ReferenceSvc = (*referenceService)(nil)

func (s *referenceService) UpsertAccount(ctx context.Context, householdID, accountID string, req dto.UpsertAccountRequest) error {
	if accountID == "" {
		return apperrors.NewValidationError("accountID", "account id is required")
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if err := s.registry.UpsertAccount(ctx, householdID, accountID, req.Name, active); err != nil {
		s.LogError(ctx, err, "Failed to register account", slog.String("account_id", accountID))
		return err
	}
	s.LogInfo(ctx, "Account registered", slog.String("account_id", accountID), slog.Bool("active", active))
	return nil
}

func (s *referenceService) UpsertCategory(ctx context.Context, householdID, categoryID string, req dto.UpsertCategoryRequest) error {
	if categoryID == "" {
		return apperrors.NewValidationError("categoryID", "category id is required")
	}
	if err := s.registry.UpsertCategory(ctx, householdID, categoryID, req.Name); err != nil {
		s.LogError(ctx, err, "Failed to register category", slog.String("category_id", categoryID))
		return err
	}
	s.LogInfo(ctx, "Category registered", slog.String("category_id", categoryID))
	return nil
}

func (s *referenceService) DeleteCategory(ctx context.Context, householdID, categoryID string) error {
	if err := s.registry.DeleteCategory(ctx, householdID, categoryID); err != nil {
		s.LogWarn(ctx, err, "Failed to delete category", slog.String("category_id", categoryID))
		return err
	}
	s.LogInfo(ctx, "Category deleted", slog.String("category_id", categoryID))
	return nil
}
