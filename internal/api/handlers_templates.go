package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apsfactory/aps-core/internal/template"
)

// validateRequest is the body for POST /validate.
type validateRequest struct {
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

// handleListTemplates returns registered templates sorted by topic.
// Optional query params narrow the set: ?category=, ?sub_category= and
// ?module= each select one dimension; module wins over sub-category,
// sub-category over category.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var templates []*template.Template
	switch {
	case q.Get("module") != "":
		templates = s.registry.ListByModule(q.Get("module"))
	case q.Get("sub_category") != "":
		templates = s.registry.ListBySubCategory(template.SubCategory(q.Get("sub_category")))
	case q.Get("category") != "":
		templates = s.registry.ListByCategory(template.Category(q.Get("category")))
	default:
		templates = s.registry.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(templates),
		"version":   s.registry.Version(),
		"templates": templates,
	})
}

// handleTemplateCategories returns the categories present in the
// registry and the sub-categories observed under each.
func (s *Server) handleTemplateCategories(w http.ResponseWriter, _ *http.Request) {
	categories := s.registry.Categories()

	subs := make(map[template.Category][]template.SubCategory, len(categories))
	for _, cat := range categories {
		subs[cat] = s.registry.SubCategories(cat)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories":     categories,
		"sub_categories": subs,
	})
}

// handleGetTemplate returns the template matching a topic. The topic is
// the remainder of the URL path, so slashes pass through unescaped:
// GET /api/v1/templates/module/v1/ff/SVR3QA0022/state
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "*")
	tmpl, err := s.registry.Get(topic)
	if err != nil {
		writeNotFound(w, "no template for topic: "+topic)
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

// handleUpsertTemplate inserts or replaces one template. The change is
// verified against the rest of the registry before it becomes visible.
func (s *Server) handleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl template.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.Upsert(&tmpl); err != nil {
		switch {
		case errors.Is(err, template.ErrInvalidTemplate),
			errors.Is(err, template.ErrInvalidPattern),
			errors.Is(err, template.ErrPatternConflict),
			errors.Is(err, template.ErrExampleInvalid):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topic":   tmpl.Topic,
		"version": s.registry.Version(),
	})
}

// handleReloadTemplates re-reads the template source document and
// atomically replaces the registry contents.
func (s *Server) handleReloadTemplates(w http.ResponseWriter, _ *http.Request) {
	if s.templatesPath == "" {
		writeBadRequest(w, "no template source configured")
		return
	}

	doc, err := template.LoadSource(s.templatesPath)
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if err := s.registry.Load(doc); err != nil {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		return
	}

	s.logger.Info("template source reloaded", "path", s.templatesPath, "version", s.registry.Version())
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": len(s.registry.List()),
		"version":   s.registry.Version(),
	})
}

// handleValidate checks an arbitrary payload against the registry
// without routing it anywhere.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	v := s.validator
	if v == nil {
		v = template.NewValidator(s.registry, false)
	}
	writeJSON(w, http.StatusOK, v.Validate(req.Topic, req.Payload))
}
