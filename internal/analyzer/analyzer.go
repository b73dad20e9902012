package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/apsfactory/aps-core/internal/infrastructure/logging"
	"github.com/apsfactory/aps-core/internal/template"
)

// Record is one captured message handed to the analyzer.
type Record struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Thresholds driving template inference.
const (
	// maxExamples caps how many payloads a suggested template carries;
	// the newest win.
	maxExamples = 5

	// enumCardinality is the distinct-value ceiling below which a
	// string field becomes an enum.
	enumCardinality = 10

	// requiredRatio is the presence ratio at which a field is marked
	// required.
	requiredRatio = 0.8

	// valueSampleCap bounds how many distinct string values are
	// retained per field while scanning a batch.
	valueSampleCap = 64
)

// Analyzer infers topic templates from captured traffic.
//
// Analysis is pure over its input batch: the same records always
// produce the same templates, field by field and byte for byte. That
// determinism is what makes suggested templates reviewable diffs
// instead of churn.
type Analyzer struct {
	logger *logging.Logger
}

// New creates an Analyzer.
func New(logger *logging.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze groups records by topic and infers one template per topic
// with at least one parseable payload. Results are sorted by topic.
func (a *Analyzer) Analyze(records []Record) []*template.Template {
	byTopic := make(map[string][]Record)
	for _, rec := range records {
		byTopic[rec.Topic] = append(byTopic[rec.Topic], rec)
	}

	topics := make([]string, 0, len(byTopic))
	for topic := range byTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var out []*template.Template
	for _, topic := range topics {
		if tmpl := a.analyzeTopic(topic, byTopic[topic]); tmpl != nil {
			out = append(out, tmpl)
		}
	}
	return out
}

// Apply upserts suggested templates into the registry. The first
// rejected template stops the application; earlier upserts stay.
func (a *Analyzer) Apply(registry *template.Registry, templates []*template.Template) error {
	for _, tmpl := range templates {
		if err := registry.Upsert(tmpl); err != nil {
			return fmt.Errorf("applying suggested template for %s: %w", tmpl.Topic, err)
		}
		if a.logger != nil {
			a.logger.Info("suggested template applied", "topic", tmpl.Topic)
		}
	}
	return nil
}

// analyzeTopic infers one topic's template. Unparseable payloads and
// non-object payloads are discarded; a topic with nothing left yields
// no template.
func (a *Analyzer) analyzeTopic(topic string, records []Record) *template.Template {
	type parsed struct {
		payload    map[string]any
		receivedAt time.Time
	}

	var msgs []parsed
	discarded := 0
	for _, rec := range records {
		var payload map[string]any
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			discarded++
			continue
		}
		msgs = append(msgs, parsed{payload: payload, receivedAt: rec.ReceivedAt})
	}

	if discarded > 0 && a.logger != nil {
		a.logger.Warn("discarded unparseable payloads during analysis",
			"topic", topic, "discarded", discarded)
	}
	if len(msgs) == 0 {
		return nil
	}

	stats := newObjectStats()
	for _, m := range msgs {
		stats.observeObject(m.payload)
	}

	structure := stats.toStructure(len(msgs))

	// Newest examples first, capped. Ties on timestamp keep input
	// order, which itself must be stable for idempotent output.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].receivedAt.After(msgs[j].receivedAt) })
	if len(msgs) > maxExamples {
		msgs = msgs[:maxExamples]
	}
	tmpl := &template.Template{
		Topic:       topic,
		Category:    template.ClassifyTopic(topic),
		SubCategory: template.ClassifySubCategory(topic),
		Structure:   structure,
	}

	// Only examples that validate under the inferred structure are
	// kept; a payload that predates a field becoming required must not
	// wedge the template at load time.
	for _, m := range msgs {
		if len(template.CheckExample(tmpl, m.payload)) == 0 {
			tmpl.Examples = append(tmpl.Examples, m.payload)
		}
	}

	tmpl.ValidationRules = describeRules(structure)
	return tmpl
}

// fieldStats accumulates observations for one field path.
type fieldStats struct {
	// present counts messages (at this object level) carrying the
	// field.
	present int

	// typeCounts tallies observed JSON types.
	typeCounts map[template.FieldType]int

	// sawFraction marks a numeric observation with a fractional part.
	sawFraction bool

	// strings holds distinct observed string values, capped.
	strings  map[string]struct{}
	overflow bool

	// intMin/intMax bound observed whole-number values.
	intMin, intMax float64
	sawInt         bool

	children *objectStats
	items    *fieldStats
}

func newFieldStats() *fieldStats {
	return &fieldStats{
		typeCounts: make(map[template.FieldType]int),
		strings:    make(map[string]struct{}),
	}
}

// objectStats accumulates per-field observations at one object level.
type objectStats struct {
	fields map[string]*fieldStats
	seen   int
}

func newObjectStats() *objectStats {
	return &objectStats{fields: make(map[string]*fieldStats)}
}

func (os *objectStats) observeObject(obj map[string]any) {
	os.seen++
	for name, value := range obj {
		fs, ok := os.fields[name]
		if !ok {
			fs = newFieldStats()
			os.fields[name] = fs
		}
		fs.present++
		fs.observe(value)
	}
}

func (fs *fieldStats) observe(value any) {
	switch v := value.(type) {
	case nil:
		fs.typeCounts[template.TypeNull]++
	case string:
		fs.typeCounts[template.TypeString]++
		if len(fs.strings) < valueSampleCap {
			fs.strings[v] = struct{}{}
		} else if _, known := fs.strings[v]; !known {
			fs.overflow = true
		}
	case bool:
		fs.typeCounts[template.TypeBoolean]++
	case float64:
		if v == math.Trunc(v) {
			fs.typeCounts[template.TypeInteger]++
			if !fs.sawInt || v < fs.intMin {
				fs.intMin = v
			}
			if !fs.sawInt || v > fs.intMax {
				fs.intMax = v
			}
			fs.sawInt = true
		} else {
			fs.typeCounts[template.TypeNumber]++
			fs.sawFraction = true
		}
	case []any:
		fs.typeCounts[template.TypeArray]++
		if fs.items == nil {
			fs.items = newFieldStats()
		}
		for _, item := range v {
			fs.items.present++
			fs.items.observe(item)
		}
	case map[string]any:
		fs.typeCounts[template.TypeObject]++
		if fs.children == nil {
			fs.children = newObjectStats()
		}
		fs.children.observeObject(v)
	default:
		// json.Unmarshal into any never produces other types, but a
		// caller-constructed record might
		fs.typeCounts[template.TypeUnknown]++
	}
}

// typePriority breaks frequency ties deterministically.
var typePriority = []template.FieldType{
	template.TypeObject, template.TypeArray, template.TypeString,
	template.TypeNumber, template.TypeInteger, template.TypeBoolean,
	template.TypeNull, template.TypeUnknown,
}

// primaryType picks the most frequent observed type. Whole and
// fractional numbers observed together collapse to number.
func (fs *fieldStats) primaryType() template.FieldType {
	if fs.sawFraction && fs.typeCounts[template.TypeInteger] > 0 {
		merged := make(map[template.FieldType]int, len(fs.typeCounts))
		for t, n := range fs.typeCounts {
			merged[t] = n
		}
		merged[template.TypeNumber] += merged[template.TypeInteger]
		delete(merged, template.TypeInteger)
		fs.typeCounts = merged
	}

	best := template.TypeUnknown
	bestCount := -1
	for _, t := range typePriority {
		if n := fs.typeCounts[t]; n > bestCount {
			best = t
			bestCount = n
		}
	}
	if bestCount <= 0 {
		return template.TypeUnknown
	}
	return best
}

// toStructure converts accumulated stats into field specs. total is
// how many messages were observed at this object level.
func (os *objectStats) toStructure(total int) map[string]*template.FieldSpec {
	if len(os.fields) == 0 {
		return nil
	}

	structure := make(map[string]*template.FieldSpec, len(os.fields))
	for name, fs := range os.fields {
		structure[name] = fs.toSpec(total)
	}
	return structure
}

func (fs *fieldStats) toSpec(total int) *template.FieldSpec {
	spec := &template.FieldSpec{
		Type:     fs.primaryType(),
		Required: total > 0 && float64(fs.present)/float64(total) >= requiredRatio,
	}

	switch spec.Type {
	case template.TypeString:
		values := make([]string, 0, len(fs.strings))
		for v := range fs.strings {
			values = append(values, v)
		}
		sort.Strings(values)

		if format := commonFormat(values); format != template.FormatNone {
			spec.Format = format
		} else if !fs.overflow && len(values) > 0 && len(values) <= enumCardinality {
			spec.Enum = make([]any, len(values))
			for i, v := range values {
				spec.Enum[i] = v
			}
		}

	case template.TypeInteger:
		if fs.sawInt {
			min, max := fs.intMin, fs.intMax
			spec.Minimum = &min
			spec.Maximum = &max
		}

	case template.TypeObject:
		if fs.children != nil {
			spec.Children = fs.children.toStructure(fs.children.seen)
		}

	case template.TypeArray:
		if fs.items != nil && fs.items.present > 0 {
			spec.Items = fs.items.toSpec(fs.items.present)
		}
	}

	return spec
}

// commonFormat returns the format every observed value shares, or
// none. A single stray value disables the format so validation never
// rejects traffic the analyzer itself saw.
func commonFormat(values []string) template.Format {
	if len(values) == 0 {
		return template.FormatNone
	}

	format := template.DetectFormat(values[0])
	if format == template.FormatNone {
		return template.FormatNone
	}
	for _, v := range values[1:] {
		if template.DetectFormat(v) != format {
			return template.FormatNone
		}
	}
	return format
}
