package observability

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// exportable is anything the registry can render in Prometheus text format.
type exportable interface {
	writeTo(w io.Writer)
}

// MetricsRegistry holds registered metrics and renders them on demand.
// Exposition is sorted by metric name so scrapes are diffable.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]exportable
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]exportable)}
}

func (r *MetricsRegistry) register(name string, m exportable) {
	r.mu.Lock()
	r.metrics[name] = m
	r.mu.Unlock()
}

// scalar is the shared guts of Counter and Gauge.
type scalar struct {
	name   string
	help   string
	kind   string
	labels string

	mu sync.Mutex
	v  float64
}

func (s *scalar) add(d float64) {
	s.mu.Lock()
	s.v += d
	s.mu.Unlock()
}

func (s *scalar) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *scalar) writeTo(w io.Writer) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", s.name, s.help, s.name, s.kind)
	fmt.Fprintf(w, "%s%s %s\n", s.name, s.labels, formatFloat(s.Value()))
}

// Counter only goes up.
type Counter struct{ scalar }

func (c *Counter) Inc()          { c.add(1) }
func (c *Counter) Add(v float64) { c.add(v) }

// Gauge goes both ways.
type Gauge struct{ scalar }

func (g *Gauge) Inc() { g.add(1) }
func (g *Gauge) Dec() { g.add(-1) }
func (g *Gauge) Add(v float64) {
	g.add(v)
}
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	c := &Counter{scalar{name: name, help: help, kind: "counter", labels: formatLabels(labels, "", "")}}
	r.register(name, c)
	return c
}

func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	g := &Gauge{scalar{name: name, help: help, kind: "gauge", labels: formatLabels(labels, "", "")}}
	r.register(name, g)
	return g
}

// Histogram tracks a value distribution as cumulative buckets.
type Histogram struct {
	name   string
	help   string
	labels map[string]string
	bounds []float64

	mu     sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:   name,
		help:   help,
		labels: labels,
		bounds: buckets,
		counts: make([]uint64, len(buckets)),
	}
	r.register(name, h)
	return h
}

// DefaultBuckets suit sub-second to tens-of-seconds latencies.
func DefaultBuckets() []float64 {
	return []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.bounds {
		if v <= bound {
			h.counts[i]++
		}
	}
}

func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *Histogram) writeTo(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cum uint64
	for i, bound := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, "le", formatFloat(bound)), cum)
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(h.labels, "le", "+Inf"), h.count)
	fmt.Fprintf(w, "%s_sum%s %s\n", h.name, formatLabels(h.labels, "", ""), formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, formatLabels(h.labels, "", ""), h.count)
}

// Handler serves the registry in Prometheus text format.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	metrics := make([]exportable, len(names))
	for i, name := range names {
		metrics[i] = r.metrics[name]
	}
	r.mu.RUnlock()

	for _, m := range metrics {
		m.writeTo(w)
	}
}

// formatLabels renders a label set, optionally with one extra pair appended
// (used for the histogram "le" bound).
func formatLabels(labels map[string]string, extraKey, extraVal string) string {
	if len(labels) == 0 && extraKey == "" {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if extraKey != "" {
		keys = append(keys, extraKey)
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		v := labels[k]
		if k == extraKey {
			v = extraVal
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(v)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WeaveMetrics groups every metric the engine and binaries record.
type WeaveMetrics struct {
	Registry *MetricsRegistry

	// Analysis pipeline
	AnalysesTotal    *Counter
	AnalysisDuration *Histogram
	AnalysisPartial  *Counter
	GapsDetected     *Counter

	// LLM metrics
	LLMRequestsTotal   *Counter
	LLMRequestDuration *Histogram
	LLMTokensTotal     *Counter
	LLMErrorsTotal     *Counter

	// Suggestion lifecycle
	SuggestionsTotal     *Counter
	SuggestionsFailed    *Counter
	SuggestionsApplied   *Counter
	SuggestionsRejected  *Counter
	ValidationScoreGauge *Gauge

	ActiveWorkers *Gauge
}

func NewWeaveMetrics() *WeaveMetrics {
	r := NewMetricsRegistry()

	return &WeaveMetrics{
		Registry: r,

		AnalysesTotal:    r.NewCounter("weave_analyses_total", "Total analysis runs", nil),
		AnalysisDuration: r.NewHistogram("weave_analysis_duration_seconds", "Analysis run duration", nil, nil),
		AnalysisPartial:  r.NewCounter("weave_analyses_partial_total", "Analysis runs with partial results", nil),
		GapsDetected:     r.NewCounter("weave_gaps_detected_total", "Total gaps detected", nil),

		LLMRequestsTotal:   r.NewCounter("weave_llm_requests_total", "Total LLM API requests", nil),
		LLMRequestDuration: r.NewHistogram("weave_llm_request_duration_seconds", "LLM request duration", nil, nil),
		LLMTokensTotal:     r.NewCounter("weave_llm_tokens_total", "Total tokens used", nil),
		LLMErrorsTotal:     r.NewCounter("weave_llm_errors_total", "Total LLM errors", nil),

		SuggestionsTotal:     r.NewCounter("weave_suggestions_total", "Total suggestions generated", nil),
		SuggestionsFailed:    r.NewCounter("weave_suggestions_failed_total", "Suggestions that failed to generate", nil),
		SuggestionsApplied:   r.NewCounter("weave_suggestions_applied_total", "Suggestions applied to the graph", nil),
		SuggestionsRejected:  r.NewCounter("weave_suggestions_rejected_total", "Suggestions rejected by the user", nil),
		ValidationScoreGauge: r.NewGauge("weave_validation_score", "Latest suggestion validation score", nil),

		ActiveWorkers: r.NewGauge("weave_active_workers", "Number of active workers", nil),
	}
}

func (m *WeaveMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordAnalysis records one analysis run.
func (m *WeaveMetrics) RecordAnalysis(duration time.Duration, gapCount int, partial bool) {
	m.AnalysesTotal.Inc()
	m.AnalysisDuration.Observe(duration.Seconds())
	m.GapsDetected.Add(float64(gapCount))
	if partial {
		m.AnalysisPartial.Inc()
	}
}

// RecordLLMRequest records one provider call.
func (m *WeaveMetrics) RecordLLMRequest(duration time.Duration, tokens int, err error) {
	m.LLMRequestsTotal.Inc()
	m.LLMRequestDuration.Observe(duration.Seconds())
	m.LLMTokensTotal.Add(float64(tokens))
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordSuggestion records one generated suggestion.
func (m *WeaveMetrics) RecordSuggestion(failed bool, validationScore float64) {
	m.SuggestionsTotal.Inc()
	if failed {
		m.SuggestionsFailed.Inc()
		return
	}
	m.ValidationScoreGauge.Set(validationScore)
}

var (
	globalMetrics *WeaveMetrics
	metricsOnce   sync.Once
)

// Metrics returns the process-wide metrics instance.
func Metrics() *WeaveMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewWeaveMetrics()
	})
	return globalMetrics
}
