package validator

import (
	"regexp"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{8,128}$`)
)

func NewValidator() *validator.Validate {
	validate = validator.New()
	_ = validate.RegisterValidation("idempotency_key", func(fl validator.FieldLevel) bool {
		return idempotencyKeyPattern.MatchString(fl.Field().String())
	})
	return validate
}

func ValidateRequest(req interface{}) error {
	if validate == nil {
		return ierr.NewError("validator not initialized").
			WithHint("Validator must be initialized before using it").
			Mark(ierr.ErrSystem)
	}

	if err := validate.Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
