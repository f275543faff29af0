package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitTracingNoEndpoint(t *testing.T) {
	tp, err := InitTracing(context.Background(), &TracingConfig{})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected no-op tracer")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestInitTracingNilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected tracer from defaults")
	}
}

func TestAnalysisSpanRoundTrip(t *testing.T) {
	ctx, span := StartAnalysisSpan(context.Background(), 100, 250)
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	RecordAnalysisResult(span, 12, 5, true)
	RecordError(span, errors.New("boom"))
	span.End()
}

func TestDetectorAndLLMSpans(t *testing.T) {
	_, span := StartDetectorSpan(context.Background(), "bridge")
	RecordDetectorResult(span, 3)
	span.End()

	_, span = StartLLMSpan(context.Background(), "anthropic", "claude")
	RecordLLMMetrics(span, 120, 80, 900*time.Millisecond)
	span.End()

	_, span = StartApplySpan(context.Background(), "direct_link", "s1")
	span.End()

	_, span = StartSnapshotSpan(context.Background(), "save")
	span.End()
}

func TestCounterAndGauge(t *testing.T) {
	r := NewMetricsRegistry()
	c := r.NewCounter("test_total", "test counter", nil)
	c.Inc()
	c.Add(2)
	if got := c.Value(); got != 3 {
		t.Errorf("counter = %v, want 3", got)
	}

	g := r.NewGauge("test_gauge", "test gauge", nil)
	g.Set(5)
	g.Dec()
	if got := g.Value(); got != 4 {
		t.Errorf("gauge = %v, want 4", got)
	}
}

func TestHistogramObserve(t *testing.T) {
	r := NewMetricsRegistry()
	h := r.NewHistogram("test_seconds", "test histogram", nil, []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)
	if h.count != 3 {
		t.Errorf("count = %d, want 3", h.count)
	}
	if h.counts[0] != 1 || h.counts[1] != 2 {
		t.Errorf("bucket counts = %v", h.counts)
	}
}

func TestPrometheusExposition(t *testing.T) {
	m := NewWeaveMetrics()
	m.RecordAnalysis(2*time.Second, 7, true)
	m.RecordLLMRequest(time.Second, 500, errors.New("timeout"))
	m.RecordSuggestion(false, 0.82)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"weave_analyses_total 1",
		"weave_analyses_partial_total 1",
		"weave_gaps_detected_total 7",
		"weave_llm_errors_total 1",
		"weave_suggestions_total 1",
		"# TYPE weave_analysis_duration_seconds histogram",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestFormatLabelsSorted(t *testing.T) {
	got := formatLabels(map[string]string{"b": "2", "a": "1"}, "", "")
	if got != `{a="1",b="2"}` {
		t.Errorf("formatLabels = %s", got)
	}
	if formatLabels(map[string]string{"a": "1"}, "le", "+Inf") != `{a="1",le="+Inf"}` {
		t.Error("extra pair should append after sorted labels")
	}
	if formatLabels(nil, "", "") != "" {
		t.Error("nil labels should format empty")
	}
}

func TestAuditLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditLogger(&buf, "session-1")

	l.LogAnalysis("abc123", 3*time.Second, nil)
	l.LogSuggestionDecision("s1", true, nil)
	l.LogSuggestionDecision("s2", false, errors.New("conflict"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.EventType != AuditEventAnalysisComplete || first.SessionID != "session-1" || !first.Success {
		t.Errorf("first event = %+v", first)
	}

	var third AuditEvent
	if err := json.Unmarshal([]byte(lines[2]), &third); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if third.EventType != AuditEventSuggestionReject || third.Success || third.ErrorDetail == "" {
		t.Errorf("third event = %+v", third)
	}
}

func TestAuditLoggerDisabled(t *testing.T) {
	l := NewAuditLogger(nil, "s")
	l.Log(AuditEvent{EventType: AuditEventAnalysisStart})
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	var nilLogger *AuditLogger
	nilLogger.Log(AuditEvent{}) // must not panic
}
