package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/pcap"
	"go.uber.org/zap"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/settings"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/stats"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	dir := t.TempDir()
	st, err := settings.Open(filepath.Join(dir, "settings.json"))
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}

	engine, err := stats.New(filepath.Join(dir, "users.json"), filepath.Join(dir, "logs"), st, zap.NewNop(), "test", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	return NewHandler(engine, st, filepath.Join(dir, "logs"), zap.NewNop(), nil)
}

func TestGetDataReturnsSnapshot(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	h.engine.AddDamage(1, "skill-1", "fire", 100, false, false, false, 0, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != 0 {
		t.Fatalf("expected success envelope, got %+v", resp)
	}
}

func TestGetSkillUnknownUidReturns404(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/skill/12345", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSkillInvalidUidReturns400(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/skill/not-a-number", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostPauseTogglesEngine(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	body := strings.NewReader(`{"paused": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/pause", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !h.engine.Paused() {
		t.Fatalf("expected engine to be paused")
	}
}

func TestGetSettingsAndPostSettingsRoundTrip(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	body := strings.NewReader(`{"onlyRecordEliteDummy": true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/settings", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)

	var resp apiResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected settings map, got %T", resp.Data)
	}
	if data["onlyRecordEliteDummy"] != true {
		t.Fatalf("expected onlyRecordEliteDummy persisted under its exact-case key, got %+v", data)
	}
}

func TestGetHistoryListEmptyWhenNoSessions(t *testing.T) {
	h := newTestHandler(t)
	// stats.New already created the live session's directory (for its
	// fight.log) under the engine's logs dir; list an empty one instead.
	h.logsDir = t.TempDir()
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/history/list", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != 0 {
		t.Fatalf("expected success envelope, got %+v", resp)
	}
	// An existing but empty logs dir yields a nil slice, which encodes as
	// JSON null and unmarshals as nil; a non-empty list would unmarshal
	// as []interface{} instead.
	if resp.Data != nil {
		t.Fatalf("expected no data for an empty history list, got %v", resp.Data)
	}
}

func TestGetCaptureStatsWithoutDeviceReturns503(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/capture/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no capture device attached, got %d", rec.Code)
	}
}

func TestGetCaptureStatsReturnsProvidedCounters(t *testing.T) {
	h := newTestHandler(t)
	h.pcapStats = func() (pcap.Stats, error) {
		return pcap.Stats{PacketsReceived: 10, PacketsDropped: 2, PacketsIfDropped: 1}, nil
	}
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/capture/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected capture stats map, got %T", resp.Data)
	}
	if data["packetsReceived"] != float64(10) {
		t.Fatalf("expected packetsReceived 10, got %+v", data)
	}
}

func TestGetHistorySummaryUnknownSessionReturns404(t *testing.T) {
	h := newTestHandler(t)
	e := h.NewEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/history/not-a-timestamp/summary", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a non-numeric session id, got %d", rec.Code)
	}
}
