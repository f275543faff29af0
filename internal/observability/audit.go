package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventAnalysisStart    AuditEventType = "analysis.start"
	AuditEventAnalysisComplete AuditEventType = "analysis.complete"
	AuditEventAnalysisError    AuditEventType = "analysis.error"
	AuditEventLLMRequest       AuditEventType = "llm.request"
	AuditEventLLMError         AuditEventType = "llm.error"
	AuditEventSuggestionApply  AuditEventType = "suggestion.apply"
	AuditEventSuggestionReject AuditEventType = "suggestion.reject"
	AuditEventSnapshotSave     AuditEventType = "snapshot.save"
	AuditEventGraphWrite       AuditEventType = "graph.write"
	AuditEventWorkflowStart    AuditEventType = "workflow.start"
	AuditEventWorkflowEnd      AuditEventType = "workflow.end"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	EventType    AuditEventType `json:"event_type"`
	SessionID    string         `json:"session_id"`
	SnapshotHash string         `json:"snapshot_hash,omitempty"`
	SuggestionID string         `json:"suggestion_id,omitempty"`
	Success      bool           `json:"success"`
	Duration     time.Duration  `json:"duration_ms,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// NewAuditLogger creates a logger writing to w. A nil writer disables it.
func NewAuditLogger(w io.Writer, sessionID string) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: sessionID,
		enabled:   w != nil,
	}
}

// NewFileAuditLogger creates a logger appending to the given path.
func NewFileAuditLogger(path, sessionID string) (*AuditLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewAuditLogger(f, sessionID), nil
}

// Log writes one event. Failures to write are swallowed; audit logging
// never breaks the operation it describes.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil || !l.enabled {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.SessionID = l.sessionID

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	l.writer.Write(append(data, '\n'))
}

// LogAnalysis records the start and completion of one analysis run.
func (l *AuditLogger) LogAnalysis(snapshotHash string, duration time.Duration, err error) {
	event := AuditEvent{
		EventType:    AuditEventAnalysisComplete,
		SnapshotHash: snapshotHash,
		Duration:     duration,
		Success:      err == nil,
	}
	if err != nil {
		event.EventType = AuditEventAnalysisError
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogSuggestionDecision records an apply or reject decision.
func (l *AuditLogger) LogSuggestionDecision(suggestionID string, applied bool, err error) {
	eventType := AuditEventSuggestionApply
	if !applied {
		eventType = AuditEventSuggestionReject
	}
	event := AuditEvent{
		EventType:    eventType,
		SuggestionID: suggestionID,
		Success:      err == nil,
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// Close closes the underlying writer if it is closable.
func (l *AuditLogger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
