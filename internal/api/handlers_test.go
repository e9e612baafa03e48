package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/internal/metrics"
	"github.com/yegors/ccrp/internal/mission"
	"github.com/yegors/ccrp/internal/ballistics"
	"github.com/yegors/ccrp/internal/grid"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/internal/weather"
	"github.com/yegors/ccrp/pkg/logger"
)

func newTestRouter(t *testing.T, withStore bool) http.Handler {
	t.Helper()
	cfg := config.Default()
	log := logger.NewNop()

	var store mission.Store
	if withStore {
		s, err := sqlite.NewSolutionStorage(filepath.Join(t.TempDir(), "ccrp.db"), log)
		if err != nil {
			t.Fatalf("NewSolutionStorage: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		store = s
	}

	collector, err := metrics.NewSolveCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSolveCollector: %v", err)
	}
	svc, err := mission.NewService(cfg, store, collector, nil, log)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewRouter(NewHandler(svc, 5, log), nil, collector.Handler(), log).Routes()
}

const referenceBody = `{
	"target": "33TWN0000000000",
	"aircraft": "33TWN0100000000",
	"speed_ms": 250,
	"altitude_m": 5000,
	"dive_deg": 30,
	"heading_deg": 0,
	"wind_east": 10,
	"wind_north": 5
}`

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/solve", strings.NewReader(body)))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestSolveEndpoint(t *testing.T) {
	h := newTestRouter(t, true)

	rr := post(t, h, referenceBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var record mission.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.ID == "" || record.Solution == nil || !strings.HasPrefix(record.Solution.ImpactGridRef, "33T") {
		t.Errorf("unexpected record %+v", record)
	}
	if record.Solution.TimeOfFlight <= 0 || record.Solution.TimeToRelease <= 0 {
		t.Errorf("timings %+v", record.Solution)
	}

	rr = get(t, h, "/api/v1/solutions/"+record.ID)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rr.Code, rr.Body.String())
	}
	var stored mission.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Solution.ImpactGridRef != record.Solution.ImpactGridRef {
		t.Errorf("stored impact %s, want %s", stored.Solution.ImpactGridRef, record.Solution.ImpactGridRef)
	}
}

func TestSolveEndpointErrors(t *testing.T) {
	h := newTestRouter(t, false)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{"malformed json", `{"target":`, http.StatusBadRequest, "invalid_request"},
		{"unknown field", `{"target":"33TWN0000000000","sped":250}`, http.StatusBadRequest, "invalid_request"},
		{"zero speed", strings.Replace(referenceBody, `"speed_ms": 250`, `"speed_ms": 0`, 1), http.StatusBadRequest, metrics.OutcomeInvalidInput},
		{"negative altitude", strings.Replace(referenceBody, `"altitude_m": 5000`, `"altitude_m": -1`, 1), http.StatusBadRequest, metrics.OutcomeInvalidInput},
		{"malformed target", strings.Replace(referenceBody, `"33TWN0000000000"`, `"33TWN000Q"`, 1), http.StatusBadRequest, metrics.OutcomeConversionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(t, h, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["kind"] != tt.kind || body["error"] == "" {
				t.Errorf("error body = %v, want kind %s", body, tt.kind)
			}
		})
	}
}

func TestListSolutionsPagination(t *testing.T) {
	h := newTestRouter(t, true)

	for i := 0; i < 7; i++ {
		if rr := post(t, h, referenceBody); rr.Code != http.StatusOK {
			t.Fatalf("solve %d: status %d", i, rr.Code)
		}
	}

	tests := []struct {
		path  string
		count int
	}{
		{"/api/v1/solutions", 5},
		{"/api/v1/solutions?limit=2", 2},
		{"/api/v1/solutions?limit=50", 5},
		{"/api/v1/solutions?limit=5&offset=5", 2},
		{"/api/v1/solutions?offset=100", 0},
	}
	for _, tt := range tests {
		rr := get(t, h, tt.path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d", tt.path, rr.Code)
		}
		var body struct {
			Count     int               `json:"count"`
			Solutions []*mission.Record `json:"solutions"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if body.Count != tt.count || len(body.Solutions) != tt.count {
			t.Errorf("%s: count = %d (%d solutions), want %d", tt.path, body.Count, len(body.Solutions), tt.count)
		}
	}
}

func TestSolutionNotFoundAndHistoryDisabled(t *testing.T) {
	rr := get(t, newTestRouter(t, true), "/api/v1/solutions/missing")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing solution status = %d, want 404", rr.Code)
	}

	noHistory := newTestRouter(t, false)
	if rr := get(t, noHistory, "/api/v1/solutions"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("list without store status = %d, want 503", rr.Code)
	}
	if rr := get(t, noHistory, "/api/v1/solutions/abc"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("get without store status = %d, want 503", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, false)

	if rr := get(t, h, "/health"); rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(`"ok"`)) {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}

	post(t, h, referenceBody)
	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `ccrp_solves_total{outcome="ok"} 1`) {
		t.Errorf("metrics = %d %s", rr.Code, rr.Body.String())
	}

	if rr := get(t, h, "/ws"); rr.Code != http.StatusNotFound {
		t.Errorf("/ws without hub = %d, want 404", rr.Code)
	}
}

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
	}{
		{"", 100, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=-1&offset=-5", 100, 0},
		{"limit=abc", 100, 0},
		{"limit=1000", 100, 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/solutions?"+tt.query, nil)
		limit, offset := parsePaginationParams(r, 100)
		if limit != tt.limit || offset != tt.offset {
			t.Errorf("%q: got (%d, %d), want (%d, %d)", tt.query, limit, offset, tt.limit, tt.offset)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid input", &ballistics.InvalidInputError{Field: "speed", Reason: "must be positive"}, http.StatusBadRequest, metrics.OutcomeInvalidInput},
		{"conversion", fmt.Errorf("target: %w", grid.ErrConversion), http.StatusBadRequest, metrics.OutcomeConversionError},
		{"integration bound", &ballistics.IntegrationBoundError{Steps: 10}, http.StatusUnprocessableEntity, metrics.OutcomeIntegrationBound},
		{"weather", fmt.Errorf("fetch: %w", weather.ErrUnavailable), http.StatusBadGateway, metrics.OutcomeWeatherUnavailable},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, metrics.OutcomeCanceled},
		{"weather lookup canceled", fmt.Errorf("fetch: %w", fmt.Errorf("%w: LJLJ: %w", weather.ErrUnavailable, context.Canceled)), http.StatusServiceUnavailable, metrics.OutcomeCanceled},
		{"weather lookup timed out", fmt.Errorf("%w: LJLJ: %w", weather.ErrUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable, metrics.OutcomeCanceled},
		{"other", fmt.Errorf("disk on fire"), http.StatusInternalServerError, metrics.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := errorStatus(tt.err)
			if status != tt.status || kind != tt.kind {
				t.Errorf("errorStatus = (%d, %s), want (%d, %s)", status, kind, tt.status, tt.kind)
			}
		})
	}
}
