package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"reserva/internal/broadcast"
	"reserva/internal/reservations/service"
	apperrors "reserva/pkg/errors"
	httputil "reserva/pkg/http"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

type AvailabilityService interface {
	GetAvailability(ctx context.Context, providerID string, from, to time.Time) ([]model.Slot, error)
}

type HoldManager interface {
	Acquire(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error)
	Release(ctx context.Context, key model.SlotKey, sessionID string) error
	Extend(ctx context.Context, key model.SlotKey, sessionID string) (*model.Hold, error)
}

type WaitlistCoordinator interface {
	Join(ctx context.Context, key model.SlotKey, clientID string) (*model.WaitlistEntry, error)
	Withdraw(ctx context.Context, key model.SlotKey, clientID string) error
	ListBySlot(ctx context.Context, key model.SlotKey) ([]*model.WaitlistEntry, error)
}

type RecurrenceExpander interface {
	Expand(ctx context.Context, rule *model.RecurrenceRule, details model.BookingDetails) ([]model.OccurrenceReport, error)
}

type EventSource interface {
	Subscribe(providerID string, from, to *time.Time) *broadcast.Subscription
	Unsubscribe(sub *broadcast.Subscription)
}

type ReservationHandler struct {
	availability AvailabilityService
	holds        HoldManager
	reservations service.ReservationService
	waitlist     WaitlistCoordinator
	recurrence   RecurrenceExpander
	events       EventSource
	log          *logger.Logger
}

func NewReservationHandler(
	availability AvailabilityService,
	holds HoldManager,
	reservations service.ReservationService,
	waitlist WaitlistCoordinator,
	recurrence RecurrenceExpander,
	events EventSource,
	log *logger.Logger,
) *ReservationHandler {
	return &ReservationHandler{
		availability: availability,
		holds:        holds,
		reservations: reservations,
		waitlist:     waitlist,
		recurrence:   recurrence,
		events:       events,
		log:          log,
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/providers/:provider_id/availability", h.GetAvailability)
	router.GET("/api/v1/providers/:provider_id/bookings", h.ListBookings)
	router.GET("/api/v1/providers/:provider_id/events", h.StreamEvents)

	router.POST("/api/v1/holds", h.AcquireHold)
	router.POST("/api/v1/holds/release", h.ReleaseHold)
	router.POST("/api/v1/holds/extend", h.ExtendHold)

	router.POST("/api/v1/bookings", h.ConfirmBooking)
	router.GET("/api/v1/bookings/:id", h.GetBooking)
	router.POST("/api/v1/bookings/:id/cancel", h.CancelBooking)
	router.POST("/api/v1/bookings/:id/complete", h.CompleteBooking)

	router.POST("/api/v1/recurrences", h.ExpandRecurrence)

	router.POST("/api/v1/waitlist", h.JoinWaitlist)
	router.POST("/api/v1/waitlist/withdraw", h.WithdrawWaitlist)
	router.GET("/api/v1/waitlist", h.ListWaitlist)
}

type slotRequest struct {
	ProviderID  string    `json:"provider_id"`
	StartTime   time.Time `json:"start_time"`
	DurationMin int       `json:"duration_min"`
}

func (s slotRequest) key() model.SlotKey {
	return model.SlotKey{
		ProviderID:  s.ProviderID,
		StartTime:   s.StartTime,
		DurationMin: s.DurationMin,
	}
}

type holdRequest struct {
	slotRequest
	SessionID string `json:"session_id"`
}

type confirmRequest struct {
	slotRequest
	SessionID   string `json:"session_id"`
	ClientID    string `json:"client_id"`
	ServiceName string `json:"service_name"`
	Notes       string `json:"notes,omitempty"`
}

type bookingActionRequest struct {
	Version  int64 `json:"version"`
	Override bool  `json:"override,omitempty"`
}

type waitlistRequest struct {
	slotRequest
	ClientID string `json:"client_id"`
}

type recurrenceRequest struct {
	Rule    model.RecurrenceRule `json:"rule"`
	Details model.BookingDetails `json:"details"`
}

func (h *ReservationHandler) decode(w http.ResponseWriter, r *http.Request, v any, handlerName string) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", handlerName, "operation", "WriteJSON", "error", writeErr)
		}
		return false
	}
	return true
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, err error, handlerName string) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) GetAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	from, to, err := httputil.ExtractTimeRange(r)
	if err != nil {
		h.writeError(w, err, "GetAvailability")
		return
	}
	if from == nil || to == nil {
		h.writeError(w, apperrors.InvalidInput("from and to query parameters are required"), "GetAvailability")
		return
	}

	slots, err := h.availability.GetAvailability(r.Context(), ps.ByName("provider_id"), *from, *to)
	if err != nil {
		h.writeError(w, err, "GetAvailability")
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "GetAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) AcquireHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req holdRequest
	if !h.decode(w, r, &req, "AcquireHold") {
		return
	}

	hold, err := h.holds.Acquire(r.Context(), req.key(), req.SessionID)
	if err != nil {
		h.writeError(w, err, "AcquireHold")
		return
	}

	if err := httputil.WriteCreated(w, hold); err != nil {
		h.log.Error("failed to write created response", "handler", "AcquireHold", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) ReleaseHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req holdRequest
	if !h.decode(w, r, &req, "ReleaseHold") {
		return
	}

	if err := h.holds.Release(r.Context(), req.key(), req.SessionID); err != nil {
		h.writeError(w, err, "ReleaseHold")
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) ExtendHold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req holdRequest
	if !h.decode(w, r, &req, "ExtendHold") {
		return
	}

	hold, err := h.holds.Extend(r.Context(), req.key(), req.SessionID)
	if err != nil {
		h.writeError(w, err, "ExtendHold")
		return
	}

	if err := httputil.WriteSuccess(w, hold); err != nil {
		h.log.Error("failed to write success response", "handler", "ExtendHold", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req confirmRequest
	if !h.decode(w, r, &req, "ConfirmBooking") {
		return
	}

	details := model.BookingDetails{
		ClientID:    req.ClientID,
		ServiceName: req.ServiceName,
		Notes:       req.Notes,
	}
	booking, err := h.reservations.Confirm(r.Context(), req.key(), req.SessionID, details)
	if err != nil {
		h.writeError(w, err, "ConfirmBooking")
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "ConfirmBooking", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.reservations.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, err, "GetBooking")
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req bookingActionRequest
	if !h.decode(w, r, &req, "CancelBooking") {
		return
	}

	booking, err := h.reservations.Cancel(r.Context(), ps.ByName("id"), req.Version, req.Override)
	if err != nil {
		h.writeError(w, err, "CancelBooking")
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "CancelBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) CompleteBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req bookingActionRequest
	if !h.decode(w, r, &req, "CompleteBooking") {
		return
	}

	booking, err := h.reservations.Complete(r.Context(), ps.ByName("id"), req.Version)
	if err != nil {
		h.writeError(w, err, "CompleteBooking")
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "CompleteBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) ListBookings(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err, "ListBookings")
		return
	}
	from, to, err := httputil.ExtractTimeRange(r)
	if err != nil {
		h.writeError(w, err, "ListBookings")
		return
	}

	bookings, totalCount, err := h.reservations.ListByProvider(r.Context(), ps.ByName("provider_id"), from, to, limit, offset)
	if err != nil {
		h.writeError(w, err, "ListBookings")
		return
	}

	if err := httputil.WritePaginated(w, bookings, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListBookings", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) ExpandRecurrence(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req recurrenceRequest
	if !h.decode(w, r, &req, "ExpandRecurrence") {
		return
	}

	reports, err := h.recurrence.Expand(r.Context(), &req.Rule, req.Details)
	if err != nil {
		h.writeError(w, err, "ExpandRecurrence")
		return
	}

	if err := httputil.WriteCreated(w, reports); err != nil {
		h.log.Error("failed to write created response", "handler", "ExpandRecurrence", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req waitlistRequest
	if !h.decode(w, r, &req, "JoinWaitlist") {
		return
	}

	entry, err := h.waitlist.Join(r.Context(), req.key(), req.ClientID)
	if err != nil {
		h.writeError(w, err, "JoinWaitlist")
		return
	}

	if err := httputil.WriteCreated(w, entry); err != nil {
		h.log.Error("failed to write created response", "handler", "JoinWaitlist", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) WithdrawWaitlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req waitlistRequest
	if !h.decode(w, r, &req, "WithdrawWaitlist") {
		return
	}

	if err := h.waitlist.Withdraw(r.Context(), req.key(), req.ClientID); err != nil {
		h.writeError(w, err, "WithdrawWaitlist")
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) ListWaitlist(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()
	key, err := model.ParseSlotKey(query.Get("slot_id"))
	if err != nil {
		h.writeError(w, apperrors.InvalidInput("slot_id query parameter is required and must be a slot key"), "ListWaitlist")
		return
	}

	entries, err := h.waitlist.ListBySlot(r.Context(), key)
	if err != nil {
		h.writeError(w, err, "ListWaitlist")
		return
	}

	if err := httputil.WriteSuccess(w, entries); err != nil {
		h.log.Error("failed to write success response", "handler", "ListWaitlist", "operation", "WriteSuccess", "error", err)
	}
}
