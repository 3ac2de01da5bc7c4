/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the scheduling engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coupdefeu/coupdefeu/internal/demand"
	"github.com/coupdefeu/coupdefeu/internal/events"
	"github.com/coupdefeu/coupdefeu/internal/loads"
	"github.com/coupdefeu/coupdefeu/internal/models"
	"github.com/coupdefeu/coupdefeu/internal/scheduler"
	"github.com/coupdefeu/coupdefeu/internal/store"
	"github.com/coupdefeu/coupdefeu/internal/timeline"
)

// API exposes HTTP handlers.
type API struct {
	store     *store.Store
	scheduler *scheduler.Service
	timeline  *timeline.Service
	loads     *loads.Service
	bus       *events.Bus
	horizon   time.Duration
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(st *store.Store, sched *scheduler.Service, tl *timeline.Service, loadSvc *loads.Service, bus *events.Bus, horizon time.Duration, logger zerolog.Logger) *API {
	if horizon <= 0 {
		horizon = 6 * time.Hour
	}
	return &API{
		store:     st,
		scheduler: sched,
		timeline:  tl,
		loads:     loadSvc,
		bus:       bus,
		horizon:   horizon,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all handlers under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", a.handleOrderCreate)
			r.Post("/schedule", a.handleOrderSchedule)
			r.Get("/{orderID}", a.handleOrderGet)
			r.Patch("/{orderID}/status", a.handleOrderStatus)
		})

		r.Get("/slots", a.handleSlots)
		r.Get("/timeline", a.handleTimeline)
		r.Get("/timeline/stream", a.handleTimelineStream)

		r.Route("/external-loads", func(r chi.Router) {
			r.Get("/", a.handleLoadsList)
			r.Post("/", a.handleLoadCreate)
			r.Get("/{loadID}", a.handleLoadGet)
			r.Put("/{loadID}", a.handleLoadUpdate)
			r.Delete("/{loadID}", a.handleLoadDelete)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type orderCreateRequest struct {
	RestaurantID     string           `json:"restaurant_id"`
	Type             models.OrderType `json:"type"`
	Source           string           `json:"source"`
	CustomerName     string           `json:"customer_name"`
	ItemCount        int              `json:"item_count"`
	TransitMin       int              `json:"transit_min"`
	RequestedReadyAt *time.Time       `json:"requested_ready_at,omitempty"`
	Notes            string           `json:"notes"`
}

type orderCreateResponse struct {
	Order         models.Order         `json:"order"`
	Scheduled     bool                 `json:"scheduled"`
	Placement     *scheduler.Placement `json:"placement,omitempty"`
	ScheduleError string               `json:"schedule_error,omitempty"`
}

// handleOrderCreate stores the order, then tries to place it. A placement
// failure is reported in the response body, never as an HTTP error: the
// order exists either way and can be scheduled later.
func (a *API) handleOrderCreate(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.RestaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}
	if err := demand.ValidateOrderInput(req.ItemCount, req.Type); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_demand")
		return
	}

	order := models.Order{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		Status:       models.OrderStatusPending,
		Type:         req.Type,
		Source:       req.Source,
		CustomerName: req.CustomerName,
		ItemCount:    req.ItemCount,
		TransitMin:   req.TransitMin,
		Notes:        req.Notes,
	}
	if err := a.store.CreateOrder(r.Context(), &order); err != nil {
		a.logger.Error().Err(err).Msg("order create failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	resp := orderCreateResponse{Order: order}
	placement, err := a.scheduler.Schedule(r.Context(), req.RestaurantID, scheduler.Request{
		ItemCount:        req.ItemCount,
		OrderType:        req.Type,
		RequestedReadyAt: req.RequestedReadyAt,
		TransitMin:       req.TransitMin,
	})
	if err != nil {
		resp.ScheduleError = scheduleErrorCode(err)
		a.logger.Warn().Err(err).Str("order", order.ID).Msg("order created without schedule")
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	if err := a.scheduler.Commit(r.Context(), a.store, a.bus, req.RestaurantID, order.ID, placement); err != nil {
		a.logger.Error().Err(err).Str("order", order.ID).Msg("placement commit failed")
		resp.ScheduleError = "commit_failed"
		writeJSON(w, http.StatusCreated, resp)
		return
	}

	order.Size = placement.Size
	order.CookStartAt = &placement.CookStartAt
	order.ReadyAt = &placement.ReadyAt
	order.HandoffAt = placement.HandoffAt
	resp.Order = order
	resp.Scheduled = true
	resp.Placement = &placement
	writeJSON(w, http.StatusCreated, resp)
}

type orderScheduleRequest struct {
	RestaurantID     string           `json:"restaurant_id"`
	OrderID          string           `json:"order_id,omitempty"`
	Type             models.OrderType `json:"type"`
	ItemCount        int              `json:"item_count"`
	TransitMin       int              `json:"transit_min"`
	RequestedReadyAt *time.Time       `json:"requested_ready_at,omitempty"`
}

// handleOrderSchedule places a demand. With an order_id the placement is
// committed onto that order; without one it is a dry run and nothing is
// written.
func (a *API) handleOrderSchedule(w http.ResponseWriter, r *http.Request) {
	var req orderScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	schedReq := scheduler.Request{
		ItemCount:        req.ItemCount,
		OrderType:        req.Type,
		RequestedReadyAt: req.RequestedReadyAt,
		TransitMin:       req.TransitMin,
	}
	restaurantID := req.RestaurantID

	if req.OrderID != "" {
		order, err := a.store.GetOrder(r.Context(), req.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
		restaurantID = order.RestaurantID
		schedReq.ItemCount = order.ItemCount
		schedReq.OrderType = order.Type
		schedReq.TransitMin = order.TransitMin
	}
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}

	placement, err := a.scheduler.Schedule(r.Context(), restaurantID, schedReq)
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}

	if req.OrderID != "" {
		if err := a.scheduler.Commit(r.Context(), a.store, a.bus, restaurantID, req.OrderID, placement); err != nil {
			a.logger.Error().Err(err).Str("order", req.OrderID).Msg("placement commit failed")
			writeError(w, http.StatusInternalServerError, "commit_failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, placement)
}

func (a *API) handleOrderGet(w http.ResponseWriter, r *http.Request) {
	order, err := a.store.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// handleOrderStatus records a lifecycle transition driven by the
// surrounding application. The engine needs to see it because block
// derivation is keyed off the status.
func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if !validOrderStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	order, err := a.store.GetOrder(r.Context(), orderID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if err := a.store.UpdateOrderStatus(r.Context(), orderID, req.Status); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if a.bus != nil {
		if req.Status == models.OrderStatusCancelled {
			a.bus.Publish(events.EventOrderUnscheduled, events.Payload{
				"restaurant_id": order.RestaurantID,
				"order_id":      orderID,
			})
		}
		a.bus.Publish(events.EventTimelineChanged, events.Payload{
			"restaurant_id": order.RestaurantID,
		})
	}

	order.Status = req.Status
	writeJSON(w, http.StatusOK, order)
}

// handleSlots answers the "what times can I offer the caller" question.
func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}
	orderType := models.OrderType(r.URL.Query().Get("type"))
	itemCount, err := strconv.Atoi(r.URL.Query().Get("item_count"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_item_count")
		return
	}
	transitMin := 0
	if raw := r.URL.Query().Get("transit_min"); raw != "" {
		if transitMin, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_transit_min")
			return
		}
	}

	options, err := a.scheduler.AvailableSlots(r.Context(), restaurantID, orderType, itemCount, transitMin)
	if err != nil {
		a.writeScheduleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": options})
}

func (a *API) handleTimeline(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}

	from := time.Now().UTC()
	to := from.Add(a.horizon)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		to = parsed
	}

	snapshot, err := a.timeline.Build(r.Context(), restaurantID, from, to)
	if err != nil {
		a.logger.Error().Err(err).Msg("timeline build failed")
		writeError(w, http.StatusInternalServerError, "snapshot_failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleLoadsList(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}
	list, err := a.loads.List(r.Context(), restaurantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type loadCreateBody struct {
	RestaurantID string `json:"restaurant_id"`
	loads.CreateRequest
}

func (a *API) handleLoadCreate(w http.ResponseWriter, r *http.Request) {
	var body loadCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.RestaurantID == "" {
		writeError(w, http.StatusBadRequest, "restaurant_required")
		return
	}
	load, err := a.loads.Create(r.Context(), body.RestaurantID, body.CreateRequest)
	if errors.Is(err, loads.ErrInvalidLoad) {
		writeError(w, http.StatusBadRequest, "invalid_load")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, load)
}

func (a *API) handleLoadGet(w http.ResponseWriter, r *http.Request) {
	load, err := a.loads.Get(r.Context(), chi.URLParam(r, "loadID"))
	if errors.Is(err, loads.ErrNotFound) {
		writeError(w, http.StatusNotFound, "load_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (a *API) handleLoadUpdate(w http.ResponseWriter, r *http.Request) {
	var req loads.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	load, err := a.loads.Update(r.Context(), chi.URLParam(r, "loadID"), req)
	if errors.Is(err, loads.ErrNotFound) {
		writeError(w, http.StatusNotFound, "load_not_found")
		return
	}
	if errors.Is(err, loads.ErrInvalidLoad) {
		writeError(w, http.StatusBadRequest, "invalid_load")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (a *API) handleLoadDelete(w http.ResponseWriter, r *http.Request) {
	err := a.loads.Delete(r.Context(), chi.URLParam(r, "loadID"))
	if errors.Is(err, loads.ErrNotFound) {
		writeError(w, http.StatusNotFound, "load_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (a *API) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, demand.ErrInvalidDemand):
		writeError(w, http.StatusBadRequest, "invalid_demand")
	case errors.Is(err, scheduler.ErrInfeasible):
		writeError(w, http.StatusConflict, "infeasible_schedule")
	default:
		a.logger.Error().Err(err).Msg("schedule request failed")
		writeError(w, http.StatusInternalServerError, "schedule_failed")
	}
}

func scheduleErrorCode(err error) string {
	switch {
	case errors.Is(err, demand.ErrInvalidDemand):
		return "invalid_demand"
	case errors.Is(err, scheduler.ErrInfeasible):
		return "infeasible_schedule"
	default:
		return "schedule_failed"
	}
}

func validOrderStatus(status models.OrderStatus) bool {
	switch status {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusPreparing,
		models.OrderStatusReady, models.OrderStatusDelivering, models.OrderStatusCompleted,
		models.OrderStatusCancelled:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
