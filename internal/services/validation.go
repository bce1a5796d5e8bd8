package services

import (
	"errors"
	"fmt"
	"strings"

	"taskify/backend/internal/apperrors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks validate tags and reports the first failing field
// as InvalidInput.
func validateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperrors.InvalidInput(fmt.Sprintf("%s is required", field))
		case "max":
			return apperrors.InvalidInput(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "min":
			return apperrors.InvalidInput(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "email":
			return apperrors.InvalidInput(fmt.Sprintf("%s must be a valid email address", field))
		default:
			return apperrors.InvalidInput(fmt.Sprintf("%s is invalid", field))
		}
	}
	return apperrors.InvalidInput(err.Error())
}
