package template

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
)

// wildcardEntry is one pattern template prepared for matching.
type wildcardEntry struct {
	segments []string
	fixed    int
	tmpl     *Template
}

// snapshot is one immutable generation of the registry contents.
// Lookups read a snapshot without locking; mutations build a new
// snapshot and swap the pointer.
type snapshot struct {
	exact     map[string]*Template
	wildcards []wildcardEntry
	formats   *formatSet
	version   uint64
}

// Registry holds the active template set and answers topic lookups.
//
// Reads are lock-free against an atomically swapped snapshot. Writes
// (Upsert, Load) serialize on a mutex, clone the current snapshot,
// apply the change and swap. A lookup concurrent with a reload sees
// either the old generation or the new one, never a mix.
type Registry struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
	logger  *logging.Logger
}

// NewRegistry creates an empty registry. Load or Upsert populate it.
func NewRegistry(logger *logging.Logger) *Registry {
	r := &Registry{logger: logger}

	fs, _ := newFormatSet(nil)
	r.current.Store(&snapshot{
		exact:   make(map[string]*Template),
		formats: fs,
	})
	return r
}

// Load replaces the entire template set with the given document.
// The previous generation stays active until the new one is fully
// built and verified, so a bad reload never leaves the registry empty.
func (r *Registry) Load(doc *SourceDocument) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next, err := buildSnapshot(doc)
	if err != nil {
		return err
	}
	next.version = r.current.Load().version + 1

	r.current.Store(next)

	if r.logger != nil {
		r.logger.Info("template registry loaded",
			"templates", len(next.exact)+len(next.wildcards),
			"wildcards", len(next.wildcards),
			"version", next.version)
	}
	return nil
}

// Get returns the template governing the given topic.
//
// Resolution order:
//  1. Exact topic match.
//  2. Wildcard patterns, most fixed segments first. A "+" matches
//     exactly one topic segment; multi-segment wildcards are not
//     supported for templates.
//
// The returned template is a deep copy; callers may modify it freely.
// Returns ErrTemplateNotFound when nothing matches.
func (r *Registry) Get(topic string) (*Template, error) {
	snap := r.current.Load()

	if tmpl, ok := snap.exact[topic]; ok {
		return tmpl.DeepCopy(), nil
	}

	segments := strings.Split(topic, "/")
	for _, entry := range snap.wildcards {
		if matchSegments(entry.segments, segments) {
			return entry.tmpl.DeepCopy(), nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, topic)
}

// Has reports whether any template governs the given topic.
func (r *Registry) Has(topic string) bool {
	_, err := r.Get(topic)
	return err == nil
}

// List returns deep copies of all templates, sorted by topic.
func (r *Registry) List() []*Template {
	return r.listWhere(func(*Template) bool { return true })
}

// ListByCategory returns the templates in one category, sorted by
// topic.
func (r *Registry) ListByCategory(cat Category) []*Template {
	return r.listWhere(func(t *Template) bool { return t.Category == cat })
}

// ListBySubCategory returns the templates in one sub-category, sorted
// by topic.
func (r *Registry) ListBySubCategory(sub SubCategory) []*Template {
	return r.listWhere(func(t *Template) bool { return t.SubCategory == sub })
}

// ListByModule returns the templates bound to one module serial,
// sorted by topic. Wildcard templates carry no serial and never match.
func (r *Registry) ListByModule(module string) []*Template {
	return r.listWhere(func(t *Template) bool { return t.Module != "" && t.Module == module })
}

// Categories returns the distinct categories present in the registry,
// sorted.
func (r *Registry) Categories() []Category {
	seen := make(map[Category]bool)
	for _, tmpl := range r.listWhere(func(*Template) bool { return true }) {
		seen[tmpl.Category] = true
	}

	out := make([]Category, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubCategories returns the distinct sub-categories present within one
// category, sorted.
func (r *Registry) SubCategories(cat Category) []SubCategory {
	seen := make(map[SubCategory]bool)
	for _, tmpl := range r.ListByCategory(cat) {
		seen[tmpl.SubCategory] = true
	}

	out := make([]SubCategory, 0, len(seen))
	for sub := range seen {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// listWhere collects deep copies of the templates matching a predicate,
// sorted by topic.
func (r *Registry) listWhere(keep func(*Template) bool) []*Template {
	snap := r.current.Load()

	out := make([]*Template, 0, len(snap.exact)+len(snap.wildcards))
	for _, tmpl := range snap.exact {
		if keep(tmpl) {
			out = append(out, tmpl.DeepCopy())
		}
	}
	for _, entry := range snap.wildcards {
		if keep(entry.tmpl) {
			out = append(out, entry.tmpl.DeepCopy())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Upsert inserts or replaces a single template without touching the
// rest of the set. The template is verified (structure, examples,
// wildcard conflicts) before the swap; a rejected upsert leaves the
// registry unchanged.
func (r *Registry) Upsert(tmpl *Template) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap := r.current.Load()

	doc := &SourceDocument{Topics: make([]*Template, 0, len(snap.exact)+len(snap.wildcards)+1)}
	for _, t := range snap.exact {
		if t.Topic != tmpl.Topic {
			doc.Topics = append(doc.Topics, t)
		}
	}
	for _, entry := range snap.wildcards {
		if entry.tmpl.Topic != tmpl.Topic {
			doc.Topics = append(doc.Topics, entry.tmpl)
		}
	}
	doc.Topics = append(doc.Topics, tmpl)

	next, err := buildSnapshot(doc)
	if err != nil {
		return err
	}
	next.formats = snap.formats
	next.version = snap.version + 1

	r.current.Store(next)

	if r.logger != nil {
		r.logger.Info("template upserted", "topic", tmpl.Topic, "version", next.version)
	}
	return nil
}

// Version returns the current snapshot generation. It increases on
// every successful Load or Upsert.
func (r *Registry) Version() uint64 {
	return r.current.Load().version
}

// Stats returns counts describing the current snapshot.
func (r *Registry) Stats() map[string]any {
	snap := r.current.Load()

	byCategory := make(map[Category]int)
	for _, tmpl := range snap.exact {
		byCategory[tmpl.Category]++
	}
	for _, entry := range snap.wildcards {
		byCategory[entry.tmpl.Category]++
	}

	return map[string]any{
		"total_templates": len(snap.exact) + len(snap.wildcards),
		"exact":           len(snap.exact),
		"wildcards":       len(snap.wildcards),
		"by_category":     byCategory,
		"version":         snap.version,
	}
}

// formatsForValidation hands the current compiled pattern set to the
// validator without copying.
func (r *Registry) formatsForValidation() *formatSet {
	return r.current.Load().formats
}

// matchSegments reports whether a pattern (with "+" wildcards) matches
// a concrete topic split into segments. Segment counts must be equal.
func matchSegments(pattern, topic []string) bool {
	if len(pattern) != len(topic) {
		return false
	}
	for i, seg := range pattern {
		if seg == "+" {
			continue
		}
		if seg != topic[i] {
			return false
		}
	}
	return true
}

// fixedSegments counts the non-wildcard segments of a pattern.
func fixedSegments(segments []string) int {
	n := 0
	for _, seg := range segments {
		if seg != "+" {
			n++
		}
	}
	return n
}

// patternsOverlap reports whether two wildcard patterns can both match
// at least one concrete topic.
func patternsOverlap(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != "+" && b[i] != "+" && a[i] != b[i] {
			return false
		}
	}
	return true
}
