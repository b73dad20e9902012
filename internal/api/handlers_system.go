package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apsfactory/aps-core/internal/analyzer"
)

// Trace query limits.
const (
	defaultTraceLimit = 50
	maxTraceLimit     = 500
)

// analyzeRequest is the body for POST /analyze.
type analyzeRequest struct {
	Apply bool `json:"apply"`
}

// handleListSequences returns every module's last issued sequence number.
func (s *Server) handleListSequences(w http.ResponseWriter, _ *http.Request) {
	if s.sequencer == nil {
		writeInternalError(w, "sequencer unavailable")
		return
	}
	seqs := s.sequencer.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(seqs),
		"sequences": seqs,
	})
}

// handleResetSequence rewinds one module's counter to zero so the next
// command carries orderUpdateId 1. Used after module recommissioning.
func (s *Server) handleResetSequence(w http.ResponseWriter, r *http.Request) {
	if s.sequencer == nil {
		writeInternalError(w, "sequencer unavailable")
		return
	}

	module := chi.URLParam(r, "module")
	if err := s.sequencer.Reset(r.Context(), module); err != nil {
		writeInternalError(w, err.Error())
		return
	}

	s.logger.Info("sequence counter reset", "module", module)
	writeJSON(w, http.StatusOK, map[string]any{
		"module": module,
		"next":   s.sequencer.Peek(module),
	})
}

// handleTraceRecent returns recently captured broker messages, newest
// first, optionally filtered by exact topic.
func (s *Server) handleTraceRecent(w http.ResponseWriter, r *http.Request) {
	if s.trace == nil {
		writeInternalError(w, "trace unavailable")
		return
	}

	limit := defaultTraceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTraceLimit)
	}

	records, err := s.trace.Recent(r.Context(), r.URL.Query().Get("topic"), limit)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	// Payloads are stored as raw JSON; re-emit them as JSON rather
	// than base64-encoded byte slices.
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"id":          rec.ID,
			"topic":       rec.Topic,
			"payload":     json.RawMessage(rec.Payload),
			"received_at": rec.ReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(out),
		"records": out,
	})
}

// handleTraceTopics returns per-topic message counts for the capture window.
func (s *Server) handleTraceTopics(w http.ResponseWriter, r *http.Request) {
	if s.trace == nil {
		writeInternalError(w, "trace unavailable")
		return
	}

	topics, err := s.trace.Topics(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(topics),
		"topics": topics,
	})
}

// handleAnalyze infers template structures from the captured trace.
// With apply set, the suggestions are installed into the registry.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.trace == nil || s.analyzer == nil {
		writeInternalError(w, "analyzer unavailable")
		return
	}

	var req analyzeRequest
	if r.Body != nil {
		//nolint:errcheck // Empty body means analyze without applying
		json.NewDecoder(r.Body).Decode(&req)
	}

	traced, err := s.trace.All(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}

	records := make([]analyzer.Record, 0, len(traced))
	for _, rec := range traced {
		records = append(records, analyzer.Record{
			Topic:      rec.Topic,
			Payload:    rec.Payload,
			ReceivedAt: rec.ReceivedAt,
		})
	}

	templates := s.analyzer.Analyze(records)

	applied := false
	if req.Apply {
		if err := s.analyzer.Apply(s.registry, templates); err != nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
			return
		}
		applied = true
		s.logger.Info("analyzer suggestions applied",
			"templates", len(templates), "version", s.registry.Version())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analyzed_messages": len(records),
		"templates":         templates,
		"applied":           applied,
	})
}
