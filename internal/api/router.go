package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		// Order endpoints
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.handleListOrders)
			r.Post("/", s.handleStartOrder)
			r.Get("/history", s.handleOrderHistory)
			r.Get("/stats", s.handleOrderStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetOrder)
				r.Post("/cancel", s.handleCancelOrder)
			})
		})

		// Module command endpoints
		r.Post("/modules/{serial}/commands", s.handleModuleCommand)
		r.Post("/transports/{serial}/orders", s.handleTransportOrder)

		// Template registry endpoints
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Put("/", s.handleUpsertTemplate)
			r.Post("/reload", s.handleReloadTemplates)
			r.Get("/categories", s.handleTemplateCategories)
			r.Get("/*", s.handleGetTemplate)
		})

		// Ad-hoc payload validation
		r.Post("/validate", s.handleValidate)

		// Sequence counters
		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", s.handleListSequences)
			r.Post("/{module}/reset", s.handleResetSequence)
		})

		// Message trace and structural analysis
		r.Route("/trace", func(r chi.Router) {
			r.Get("/", s.handleTraceRecent)
			r.Get("/topics", s.handleTraceTopics)
		})
		r.Post("/analyze", s.handleAnalyze)

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStats returns an aggregate snapshot across subsystems.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]any{
		"version":   s.version,
		"orders":    s.tracker.Stats(),
		"templates": s.registry.Stats(),
	}
	if s.intake != nil {
		stats["intake"] = s.intake.Counters()
	}
	if s.sequencer != nil {
		stats["sequences"] = s.sequencer.Snapshot()
	}
	if s.hub != nil {
		stats["websocket_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, stats)
}
