package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
)

// RegisterValidators adds the schedule specific binding tags to v.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("frequency", validateFrequency); err != nil {
		return err
	}
	return v.RegisterValidation("txntype", validateTransactionType)
}

func validateFrequency(fl validator.FieldLevel) bool {
	_, err := domain.ParseFrequency(fl.Field().String())
	return err == nil
}

func validateTransactionType(fl validator.FieldLevel) bool {
	_, err := domain.ParseTransactionType(fl.Field().String())
	return err == nil
}
