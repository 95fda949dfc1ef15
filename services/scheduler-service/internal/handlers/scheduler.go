package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookslot/libs/httpx"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
)

type SchedulerHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewSchedulerHandler(svc *booking.Service, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{svc: svc, logger: logger}
}

// Mount registers the API under /api/v1.
func (h *SchedulerHandler) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/event-types", h.CreateEventType)
		r.Get("/event-types", h.ListEventTypes)
		r.Get("/event-types/{id}", h.GetEventType)
		r.Get("/event-types/{id}/availability", h.ListAvailabilities)
		r.Get("/event-types/{id}/slots", h.Slots)
		r.Post("/availability", h.CreateAvailability)
		r.Post("/bookings", h.CreateBooking)
		r.Get("/users/{id}/bookings", h.ListUserBookings)
	})
}

type createEventTypeRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	OwnerID         string `json:"owner_id"`
}

type createAvailabilityRequest struct {
	EventTypeID string `json:"event_type_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type createBookingRequest struct {
	BookerID    string `json:"booker_id"`
	EventTypeID string `json:"event_type_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type eventTypeItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	OwnerID         string `json:"owner_id"`
	CreatedAt       string `json:"created_at"`
}

type availabilityItem struct {
	ID          string `json:"id"`
	EventTypeID string `json:"event_type_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	CreatedAt   string `json:"created_at"`
}

type bookingItem struct {
	ID          string `json:"id"`
	BookerID    string `json:"booker_id"`
	EventTypeID string `json:"event_type_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	CreatedAt   string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *SchedulerHandler) CreateEventType(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	et, err := h.svc.CreateEventType(r.Context(), req.Name, req.DurationMinutes, req.OwnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toEventTypeItem(et))
}

func (h *SchedulerHandler) ListEventTypes(w http.ResponseWriter, r *http.Request) {
	var (
		items []model.EventType
		err   error
	)
	if owner := strings.TrimSpace(r.URL.Query().Get("owner_id")); owner != "" {
		items, err = h.svc.ListEventTypesByOwner(r.Context(), owner)
	} else {
		items, err = h.svc.ListEventTypes(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]eventTypeItem, 0, len(items))
	for _, et := range items {
		resp = append(resp, toEventTypeItem(et))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *SchedulerHandler) GetEventType(w http.ResponseWriter, r *http.Request) {
	et, err := h.svc.GetEventType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toEventTypeItem(et))
}

func (h *SchedulerHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	var req createAvailabilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	interval, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	av, err := h.svc.ProposeAvailability(r.Context(), strings.TrimSpace(req.EventTypeID), interval)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAvailabilityItem(av))
}

func (h *SchedulerHandler) ListAvailabilities(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListAvailabilities(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]availabilityItem, 0, len(items))
	for _, av := range items {
		resp = append(resp, toAvailabilityItem(av))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *SchedulerHandler) Slots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.svc.GenerateFreeSlots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		resp = append(resp, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *SchedulerHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	interval, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	b, err := h.svc.ProposeBooking(r.Context(), booking.Request{
		BookerID:    req.BookerID,
		EventTypeID: strings.TrimSpace(req.EventTypeID),
		Interval:    interval,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBookingItem(b))
}

func (h *SchedulerHandler) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListUserBookings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]bookingItem, 0, len(items))
	for _, b := range items {
		resp = append(resp, toBookingItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *SchedulerHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", "validation")
			return false
		}
		h.writeError(w, r, fmt.Errorf("%w: invalid json body", model.ErrValidation))
		return false
	}
	return true
}

func parseInterval(startRaw, endRaw string) (model.Interval, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(startRaw))
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: invalid start_time", model.ErrValidation)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(endRaw))
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: invalid end_time", model.ErrValidation)
	}
	return model.NewInterval(start, end)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrSelfBooking):
		return http.StatusForbidden
	case errors.Is(err, model.ErrOutsideAvailability):
		return http.StatusUnprocessableEntity
	case model.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *SchedulerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		httpx.WriteError(w, status, "internal error", "internal")
		return
	}
	httpx.WriteError(w, status, publicMessage(err), model.Reason(err))
}

// publicMessage drops the op prefix the service adds while wrapping.
func publicMessage(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "booking.") {
		if _, rest, ok := strings.Cut(msg, ": "); ok {
			return rest
		}
	}
	return msg
}

func toEventTypeItem(et model.EventType) eventTypeItem {
	return eventTypeItem{
		ID:              et.ID,
		Name:            et.Name,
		DurationMinutes: et.DurationMinutes,
		OwnerID:         et.OwnerID,
		CreatedAt:       et.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toAvailabilityItem(av model.Availability) availabilityItem {
	return availabilityItem{
		ID:          av.ID,
		EventTypeID: av.EventTypeID,
		StartTime:   av.Interval.Start.UTC().Format(time.RFC3339),
		EndTime:     av.Interval.End.UTC().Format(time.RFC3339),
		CreatedAt:   av.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		ID:          b.ID,
		BookerID:    b.BookerID,
		EventTypeID: b.EventTypeID,
		StartTime:   b.Interval.Start.UTC().Format(time.RFC3339),
		EndTime:     b.Interval.End.UTC().Format(time.RFC3339),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
