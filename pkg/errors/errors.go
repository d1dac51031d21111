package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeConflict         = "CONFLICT"
	CodeUnavailable      = "SLOT_UNAVAILABLE"
	CodeTooLateToCancel  = "TOO_LATE_TO_CANCEL"
	CodeInternal         = "INTERNAL_ERROR"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeTimeout          = "TIMEOUT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// Conflict reasons. Conflicts are a normal outcome of contention: the caller
// re-fetches state and retries with fresh data, never with the same stale
// hold or version.
const (
	ReasonLockedByOther = "locked_by_other"
	ReasonAlreadyBooked = "already_booked"
	ReasonStaleVersion  = "stale_version"
)

// Unavailable reasons. Terminal for the given slot; the caller must pick a
// different one.
const (
	ReasonOutsideSchedule = "outside_schedule"
	ReasonBlocked         = "blocked"
	ReasonPastDeadline    = "past_deadline"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

// Reason returns the conflict/unavailability reason carried in Details,
// or the empty string if none was set.
func (e *AppError) Reason() string {
	if e.Details == nil {
		return ""
	}
	if r, ok := e.Details["reason"].(string); ok {
		return r
	}
	return ""
}

func (e *AppError) ToJSON() []byte {
	response := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
	data, _ := json.Marshal(response)
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message, reason string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"reason": reason,
		},
	}
}

func LockedByOther(slotKey string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    "This time slot is currently held by another session",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"reason":   ReasonLockedByOther,
			"slot_key": slotKey,
		},
	}
}

func AlreadyBooked(slotKey string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    "This time slot was just booked by someone else",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"reason":   ReasonAlreadyBooked,
			"slot_key": slotKey,
		},
	}
}

func StaleVersion(resource, id string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    fmt.Sprintf("%s was modified concurrently, re-read and retry", resource),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"reason": ReasonStaleVersion,
			"id":     id,
		},
	}
}

func SlotUnavailable(reason string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    "This time slot is not bookable",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"reason": reason,
		},
	}
}

func TooLateToCancel(bookingID string) *AppError {
	return &AppError{
		Code:       CodeTooLateToCancel,
		Message:    "Booking is inside the cancellation window and can no longer be cancelled",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"id": bookingID,
		},
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// StoreUnavailable marks transient infrastructure faults. Safe to retry with
// backoff since all core operations are idempotent or conditional.
func StoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Backing store is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// IsConflict reports whether err is a contention-class error, including
// NotFound on holds or bookings that were already expired, claimed or
// cancelled by someone else.
func IsConflict(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == CodeConflict || appErr.Code == CodeNotFound
}
