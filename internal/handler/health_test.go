package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(nil, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	tests := []struct {
		name         string
		db, cache    HealthChecker
		wantCode     int
		wantPostgres string
		wantRedis    string
	}{
		{"all healthy", &mockHealthChecker{}, &mockHealthChecker{}, http.StatusOK, "ok", "ok"},
		{"database down", &mockHealthChecker{err: errors.New("connection refused")}, &mockHealthChecker{}, http.StatusServiceUnavailable, "unavailable", "ok"},
		{"redis down", &mockHealthChecker{}, &mockHealthChecker{err: errors.New("i/o timeout")}, http.StatusServiceUnavailable, "ok", "unavailable"},
		{"not configured", nil, nil, http.StatusOK, "not configured", "not configured"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.cache, discardLogger())

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if strings.Contains(rec.Body.String(), "refused") || strings.Contains(rec.Body.String(), "timeout") {
				t.Error("readiness response leaks dependency error text")
			}

			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Checks["postgres"] != tt.wantPostgres || resp.Checks["redis"] != tt.wantRedis {
				t.Errorf("checks = %v", resp.Checks)
			}
		})
	}
}
