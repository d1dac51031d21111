package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"reserva/internal/schedules/service"
	httputil "reserva/pkg/http"
	"reserva/pkg/logger"
	"reserva/pkg/model"
)

type ScheduleHandler struct {
	service service.ScheduleService
	log     *logger.Logger
}

func NewScheduleHandler(service service.ScheduleService, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
		log:     log,
	}
}

func (h *ScheduleHandler) RegisterRoutes(router *httprouter.Router) {
	router.PUT("/api/v1/providers/:provider_id/schedule", h.Put)
	router.GET("/api/v1/providers/:provider_id/schedule", h.Get)
	router.PATCH("/api/v1/providers/:provider_id/schedule", h.Patch)
	router.DELETE("/api/v1/providers/:provider_id/schedule", h.Delete)
}

func (h *ScheduleHandler) Put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var schedule model.ProviderSchedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Put", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}
	schedule.ProviderID = ps.ByName("provider_id")

	if err := h.service.Put(r.Context(), &schedule); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Put", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, schedule); err != nil {
		h.log.Error("failed to write success response", "handler", "Put", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	schedule, err := h.service.Get(r.Context(), ps.ByName("provider_id"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Get", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, schedule); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScheduleHandler) Patch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var update model.ProviderScheduleUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Patch", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	schedule, err := h.service.Patch(r.Context(), ps.ByName("provider_id"), &update)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Patch", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, schedule); err != nil {
		h.log.Error("failed to write success response", "handler", "Patch", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Delete(r.Context(), ps.ByName("provider_id")); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}
