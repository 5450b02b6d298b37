package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeConvs struct{ n int }

func (f fakeConvs) ConversationCount(context.Context) (int, error) { return f.n, nil }

type fakeStats struct {
	failures int
	pingErr  error
}

func (f fakeStats) PublishFailuresSince(context.Context, time.Time) (int, error) {
	return f.failures, nil
}

func (f fakeStats) Ping(context.Context) error { return f.pingErr }

func get(t *testing.T, hs *HealthServer, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	hs.ServeHTTP(rr, req)
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rr, body
}

func TestHealthServer_Health(t *testing.T) {
	hs := NewHealthServer(":0", nil, nil, nil, nil)

	rr, body := get(t, hs, "/health")
	if rr.Code != http.StatusOK {
		t.Errorf("status code = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["version"] == "" {
		t.Error("version is empty")
	}
}

func TestHealthServer_Status(t *testing.T) {
	hs := NewHealthServer(":0", fakeConvs{n: 4}, fakeStats{failures: 2}, []string{"archive", "notion"}, nil)

	rr, body := get(t, hs, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rr.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["conversation_count"] != float64(4) {
		t.Errorf("conversation_count = %v", body["conversation_count"])
	}
	if body["publish_failures_24h"] != float64(2) {
		t.Errorf("publish_failures_24h = %v", body["publish_failures_24h"])
	}
	adapters, _ := body["adapters"].([]any)
	if len(adapters) != 2 || adapters[0] != "archive" {
		t.Errorf("adapters = %v", body["adapters"])
	}
	if _, ok := body["error"]; ok {
		t.Errorf("unexpected error field: %v", body["error"])
	}
}

func TestHealthServer_StatusDegraded(t *testing.T) {
	hs := NewHealthServer(":0", fakeConvs{n: 1}, fakeStats{pingErr: errors.New("disk I/O error")}, nil, nil)

	rr, body := get(t, hs, "/status")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", rr.Code)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v", body["status"])
	}
	if body["error"] != "database: disk I/O error" {
		t.Errorf("error = %v", body["error"])
	}
	if adapters, _ := body["adapters"].([]any); adapters == nil || len(adapters) != 0 {
		t.Errorf("adapters = %v, want []", body["adapters"])
	}
}

func TestHealthServer_UnknownPath(t *testing.T) {
	hs := NewHealthServer(":0", nil, nil, nil, nil)
	rr := httptest.NewRecorder()
	hs.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", rr.Code)
	}
}

func TestHealthServer_StartStop(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", nil, nil, nil, nil)
	if err := hs.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	hs.Stop(ctx)
}
