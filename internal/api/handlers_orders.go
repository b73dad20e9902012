package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apsfactory/aps-core/internal/builder"
	"github.com/apsfactory/aps-core/internal/infrastructure/mqtt"
	"github.com/apsfactory/aps-core/internal/order"
)

// startOrderRequest is the body for POST /orders.
type startOrderRequest struct {
	OrderType   string `json:"order_type"`
	Color       string `json:"color"`
	WorkpieceID string `json:"workpiece_id"`
}

// cancelOrderRequest is the body for POST /orders/{id}/cancel.
type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// moduleCommandRequest is the body for POST /modules/{serial}/commands.
type moduleCommandRequest struct {
	Command       string `json:"command"`
	WorkpieceType string `json:"workpiece_type"`
	WorkpieceID   string `json:"workpiece_id"`
}

// handleListOrders returns active orders, optionally filtered by
// status or workpiece color.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	var orders []order.Order
	switch {
	case r.URL.Query().Get("status") != "":
		orders = s.tracker.ByStatus(order.Status(r.URL.Query().Get("status")))
	case r.URL.Query().Get("color") != "":
		orders = s.tracker.ByColor(r.URL.Query().Get("color"))
	default:
		orders = s.tracker.Active()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(orders),
		"orders": orders,
	})
}

// handleStartOrder dispatches a new order request to the controller.
func (s *Server) handleStartOrder(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeInternalError(w, "dispatch unavailable")
		return
	}

	var req startOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OrderType == "" || req.Color == "" || req.WorkpieceID == "" {
		writeBadRequest(w, "order_type, color and workpiece_id are required")
		return
	}

	handle, err := s.dispatcher.StartOrder(req.OrderType, req.Color, req.WorkpieceID)
	switch {
	case errors.Is(err, order.ErrDuplicateOrder):
		writeConflict(w, err.Error())
		return
	case errors.Is(err, builder.ErrBuildInvalid):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"handle": handle,
		"status": order.StatusPendingID,
	})
}

// handleGetOrder returns one order by ID or pending handle.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ord, err := s.tracker.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, ord)
}

// handleCancelOrder cancels a tracked order.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.Body != nil {
		//nolint:errcheck // Empty body is allowed; reason falls back to default
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "USER_CANCELLED"
	}

	id := chi.URLParam(r, "id")
	var err error
	if s.dispatcher != nil {
		err = s.dispatcher.CancelOrder(id, req.Reason)
	} else {
		err = s.tracker.Cancel(id, req.Reason)
	}

	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		writeNotFound(w, "order not found")
	case errors.Is(err, order.ErrTerminalState):
		writeConflict(w, "order already in a terminal state")
	case err != nil:
		writeInternalError(w, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     id,
			"status": order.StatusCancelled,
		})
	}
}

// handleOrderHistory returns completed, failed, and cancelled orders,
// newest first.
func (s *Server) handleOrderHistory(w http.ResponseWriter, _ *http.Request) {
	orders := s.tracker.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(orders),
		"orders": orders,
	})
}

// handleOrderStats returns aggregate order statistics.
func (s *Server) handleOrderStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":    s.tracker.Stats(),
		"counters": s.tracker.Counters(),
	})
}

// handleModuleCommand dispatches one command to a processing module.
func (s *Server) handleModuleCommand(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeInternalError(w, "dispatch unavailable")
		return
	}

	var req moduleCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd := builder.Command(req.Command)
	if !builder.ValidCommand(cmd) {
		writeBadRequest(w, "unknown command: "+req.Command)
		return
	}

	serial := chi.URLParam(r, "serial")
	seq, err := s.dispatcher.SendCommand(r.Context(), serial, cmd, req.WorkpieceType, req.WorkpieceID)
	switch {
	case errors.Is(err, mqtt.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "broker not connected")
		return
	case errors.Is(err, builder.ErrBuildInvalid):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"serial":          serial,
		"command":         cmd,
		"order_update_id": seq,
	})
}

// handleTransportOrder dispatches an order to a transport vehicle.
// The body is passed through as template parameters.
func (s *Server) handleTransportOrder(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeInternalError(w, "dispatch unavailable")
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	serial := chi.URLParam(r, "serial")
	seq, err := s.dispatcher.SendTransportCommand(r.Context(), serial, params)
	switch {
	case errors.Is(err, mqtt.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "broker not connected")
		return
	case errors.Is(err, builder.ErrBuildInvalid):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	case err != nil:
		writeInternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"serial":          serial,
		"order_update_id": seq,
	})
}
