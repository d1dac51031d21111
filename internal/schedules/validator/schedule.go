package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reserva/pkg/logger"
	"reserva/pkg/model"

	"github.com/go-playground/validator/v10"
)

var dayTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

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

type ScheduleValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewScheduleValidator(log *logger.Logger) *ScheduleValidator {
	v := validator.New()

	if err := v.RegisterValidation("day_time", validateDayTime); err != nil {
		log.Fatal("Failed to register 'day_time' validator",
			"error", err,
		)
	}

	return &ScheduleValidator{
		validate: v,
		logger:   log,
	}
}

func validateDayTime(fl validator.FieldLevel) bool {
	return dayTimeRegex.MatchString(fl.Field().String())
}

func (v *ScheduleValidator) Validate(schedule *model.ProviderSchedule) error {
	if err := v.validate.Struct(schedule); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if err := uniqueWeekdays(schedule.Windows); err != nil {
		return err
	}

	return nil
}

func (v *ScheduleValidator) ValidateUpdate(update *model.ProviderScheduleUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if update.Windows != nil {
		if err := uniqueWeekdays(update.Windows); err != nil {
			return err
		}
	}

	return nil
}

func uniqueWeekdays(windows []model.DayWindow) error {
	seen := make(map[string]bool, len(windows))
	for _, w := range windows {
		if seen[w.Weekday] {
			return ValidationErrors{
				ValidationError{
					Field:   "Windows",
					Message: fmt.Sprintf("duplicate window for %s", w.Weekday),
				},
			}
		}
		seen[w.Weekday] = true
	}
	return nil
}

func (v *ScheduleValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "required_if":
			message = fmt.Sprintf("%s is required for enabled windows", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "timezone":
			message = fmt.Sprintf("%s must be a valid IANA time zone", err.Field())
		case "day_time":
			message = fmt.Sprintf("%s must be a HH:MM clock time", err.Field())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
