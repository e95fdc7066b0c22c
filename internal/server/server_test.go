package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tkoide/framesentry/internal/config"
	"github.com/tkoide/framesentry/internal/pipeline"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	pipe := pipeline.New(nil, nil, nil, nil, nil)
	return New(cfg, pipe, nil, nil)
}

func TestHandleStatus(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["pipeline"]; !ok {
		t.Error("status response missing pipeline stats")
	}
	if _, ok := body["health"]; !ok {
		t.Error("status response missing health section")
	}
}

func TestHandleConfigGet(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	s.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap config.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Motion.Threshold != 25 {
		t.Errorf("threshold = %d", snap.Motion.Threshold)
	}
}

func TestHandleConfigPut(t *testing.T) {
	s := testServer(t)

	body := strings.NewReader(`{"motion": {"threshold": 60}}`)
	req := httptest.NewRequest(http.MethodPut, "/api/config", body)
	rec := httptest.NewRecorder()
	s.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := s.cfg.Get().Motion.Threshold; got != 60 {
		t.Errorf("threshold after update = %d, want 60", got)
	}
}

func TestHandleConfigRejectsBadJSON(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.handleConfig(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMotionToggleEndpoints(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/motion-detection/disable", nil)
	rec := httptest.NewRecorder()
	s.handleMotionDisable(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/motion-detection/enable", nil)
	rec = httptest.NewRecorder()
	s.handleMotionEnable(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on enable = %d, want 405", rec.Code)
	}
}
