package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Code != CodeValidation {
		t.Errorf("expected code %s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if !errors.Is(wrapped, originalErr) {
		t.Errorf("expected errors.Is to unwrap to the original error")
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "booking not found",
			},
			expected: "NOT_FOUND: booking not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeStoreUnavailable,
				Message: "store unavailable",
				Err:     errors.New("connection reset"),
			},
			expected: "STORE_UNAVAILABLE: store unavailable (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestConflictConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		reason string
		status int
	}{
		{"locked by other", LockedByOther("p1|2026-09-01T09:00:00Z|30"), CodeConflict, ReasonLockedByOther, http.StatusConflict},
		{"already booked", AlreadyBooked("p1|2026-09-01T09:00:00Z|30"), CodeConflict, ReasonAlreadyBooked, http.StatusConflict},
		{"stale version", StaleVersion("Booking", "abc"), CodeConflict, ReasonStaleVersion, http.StatusConflict},
		{"outside schedule", SlotUnavailable(ReasonOutsideSchedule), CodeUnavailable, ReasonOutsideSchedule, http.StatusUnprocessableEntity},
		{"blocked", SlotUnavailable(ReasonBlocked), CodeUnavailable, ReasonBlocked, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if tt.err.Reason() != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, tt.err.Reason())
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, tt.err.HTTPStatus)
			}
		})
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(LockedByOther("k")) {
		t.Error("expected lock conflict to be conflict-class")
	}
	if !IsConflict(NotFound("Hold")) {
		t.Error("expected NotFound to be treated as conflict, not a system fault")
	}
	if IsConflict(Internal("boom", nil)) {
		t.Error("did not expect internal error to be conflict-class")
	}
	if IsConflict(errors.New("plain")) {
		t.Error("did not expect plain error to be conflict-class")
	}
}
