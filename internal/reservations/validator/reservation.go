package validator

import (
	"errors"
	"fmt"
	"strings"

	"reserva/pkg/logger"
	"reserva/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// ReservationValidator validates the inbound shapes of the booking flow: the
// slot being claimed, the booking details, and recurrence rules.
type ReservationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewReservationValidator(log *logger.Logger) *ReservationValidator {
	return &ReservationValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *ReservationValidator) ValidateSlotKey(key model.SlotKey) error {
	if err := v.validate.Struct(key); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *ReservationValidator) ValidateDetails(details model.BookingDetails) error {
	if err := v.validate.Struct(details); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// ValidateRecurrence enforces the rule shape plus the constraints the struct
// tags cannot express: exactly one of occurrence_count and until_date, and a
// terminating horizon.
func (v *ReservationValidator) ValidateRecurrence(rule *model.RecurrenceRule) error {
	if err := v.validate.Struct(rule); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	hasCount := rule.OccurrenceCount > 0
	hasUntil := rule.UntilDate != nil
	if hasCount == hasUntil {
		return ValidationErrors{
			ValidationError{
				Field:   "OccurrenceCount",
				Message: "exactly one of occurrence_count and until_date must be set",
			},
		}
	}
	if hasUntil && !rule.UntilDate.After(rule.Anchor.StartTime) {
		return ValidationErrors{
			ValidationError{
				Field:   "UntilDate",
				Message: "until_date must be after the anchor start time",
			},
		}
	}

	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
