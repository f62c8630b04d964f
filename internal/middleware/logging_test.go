package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/planify/internal/auth"
	"github.com/hitoshi/planify/internal/model"
)

// mockMetrics はHTTPステータスの記録のみを保持する。
type mockMetrics struct {
	statuses []int
}

func (m *mockMetrics) RecordMutation(string, string)       {}
func (m *mockMetrics) RecordPersistFailure(string, string) {}
func (m *mockMetrics) RecordPersistLatency(time.Duration)  {}
func (m *mockMetrics) RecordPlannerCall(string)            {}
func (m *mockMetrics) RecordPlannerLatency(time.Duration)  {}
func (m *mockMetrics) RecordAuthEvent(string)              {}
func (m *mockMetrics) RecordHTTPStatus(code int)           { m.statuses = append(m.statuses, code) }

func parseLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	mc := &mockMetrics{}

	handler := NewLoggingMiddleware(logger, mc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	entry := parseLogEntry(t, &buf)
	if entry["msg"] != "http_request" || entry["method"] != "GET" || entry["path"] != "/api/tasks" {
		t.Errorf("entry = %v", entry)
	}
	if status, _ := entry["status"].(float64); status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("未認証のリクエストに user_id を含めない")
	}
	if len(mc.statuses) != 1 || mc.statuses[0] != 200 {
		t.Errorf("statuses = %v", mc.statuses)
	}
}

func TestLoggingMiddleware_IncludesUserIDFromInnerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	session := &mockSessionState{state: auth.StateAuthenticated, user: &model.User{ID: "user-123"}}

	inner := NewSessionMiddleware(session)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler := NewLoggingMiddleware(logger, nil)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/tasks", nil))

	entry := parseLogEntry(t, &buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v", entry["user_id"])
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if entry := parseLogEntry(t, &buf); entry["level"] != tt.level {
			t.Errorf("status %d: level = %v, want %s", tt.status, entry["level"], tt.level)
		}
	}
}
