package mission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/internal/metrics"
	"github.com/yegors/ccrp/internal/physics"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/internal/weather"
	"github.com/yegors/ccrp/internal/websocket"
	"github.com/yegors/ccrp/pkg/logger"
)

type recordingHub struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (h *recordingHub) Broadcast(m *websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *metrics.SolveCollector, *recordingHub) {
	t.Helper()
	store, err := sqlite.NewSolutionStorage(filepath.Join(t.TempDir(), "ccrp.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSolutionStorage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	collector, err := metrics.NewSolveCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSolveCollector: %v", err)
	}
	hub := &recordingHub{}

	svc, err := NewService(cfg, store, collector, hub, logger.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, collector, hub
}

func TestSolveReferenceScenario(t *testing.T) {
	cfg := config.Default()
	svc, _, _ := newTestService(t, cfg)

	record, err := svc.Solve(context.Background(), RequestFromConfig(cfg.Scenario))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if _, err := uuid.Parse(record.ID); err != nil {
		t.Errorf("record ID %q is not a UUID: %v", record.ID, err)
	}
	if tof := record.Solution.TimeOfFlight; tof < 15 || tof > 30 {
		t.Errorf("time of flight = %.2f, want roughly 21-22 s", tof)
	}
	if w := record.Resolved.Wind; w.East != 10 || w.North != 5 || w.Up != 0 {
		t.Errorf("resolved wind = %+v", w)
	}
	if math.Abs(record.Resolved.Kinematics.Dive-math.Pi/6) > 1e-12 {
		t.Errorf("dive = %f rad, want pi/6", record.Resolved.Kinematics.Dive)
	}
	if record.Resolved.Constants.AirDensity != 1.225 || record.Resolved.TimeStep != 0.1 {
		t.Errorf("resolved constants = %+v, step %f", record.Resolved.Constants, record.Resolved.TimeStep)
	}
}

func TestSolveRecordsHistoryMetricsAndBroadcast(t *testing.T) {
	cfg := config.Default()
	svc, collector, hub := newTestService(t, cfg)

	record, err := svc.Solve(context.Background(), RequestFromConfig(cfg.Scenario))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	stored, err := svc.Get(record.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Solution.ImpactGridRef != record.Solution.ImpactGridRef || stored.Request.Target != cfg.Scenario.Target {
		t.Errorf("stored record %+v differs from %+v", stored, record)
	}
	if stored.Resolved.Wind != record.Resolved.Wind {
		t.Errorf("stored wind %+v, want %+v", stored.Resolved.Wind, record.Resolved.Wind)
	}

	list, err := svc.List(10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != record.ID {
		t.Errorf("history = %+v", list)
	}

	if got := testutil.ToFloat64(collector.Solves.WithLabelValues(metrics.OutcomeOK)); got != 1 {
		t.Errorf("ok solves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.StoredSolutions); got != 1 {
		t.Errorf("stored solutions gauge = %v, want 1", got)
	}

	if hub.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", hub.count())
	}
	msg := hub.messages[0]
	if msg.Type != websocket.MessageTypeSolutionComputed || msg.Data["impact_grid_ref"] != record.Solution.ImpactGridRef {
		t.Errorf("unexpected broadcast %+v", msg)
	}
}

func TestSolveFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		outcome string
	}{
		{"zero speed", func(r *Request) { r.SpeedMs = 0 }, metrics.OutcomeInvalidInput},
		{"zero altitude", func(r *Request) { r.AltitudeM = 0 }, metrics.OutcomeInvalidInput},
		{"negative time step", func(r *Request) { r.TimeStep = -1 }, metrics.OutcomeInvalidInput},
		{"unknown heading mode", func(r *Request) { r.HeadingMode = "grid" }, metrics.OutcomeInvalidInput},
		{"unparseable metar", func(r *Request) { r.METAR = "NO WIND HERE" }, metrics.OutcomeInvalidInput},
		{"malformed target", func(r *Request) { r.Target = "garbage" }, metrics.OutcomeConversionError},
		{"malformed aircraft", func(r *Request) { r.Aircraft = "33TWN123" }, metrics.OutcomeConversionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			svc, collector, hub := newTestService(t, cfg)

			req := RequestFromConfig(cfg.Scenario)
			tt.mutate(&req)
			record, err := svc.Solve(context.Background(), req)
			if err == nil {
				t.Fatalf("expected error, got %+v", record)
			}
			if got := Outcome(err); got != tt.outcome {
				t.Errorf("Outcome(%v) = %s, want %s", err, got, tt.outcome)
			}
			if got := testutil.ToFloat64(collector.Solves.WithLabelValues(tt.outcome)); got != 1 {
				t.Errorf("%s solves = %v, want 1", tt.outcome, got)
			}
			if hub.count() != 0 {
				t.Errorf("failed solve was broadcast")
			}
			if list, _ := svc.List(10, 0); len(list) != 0 {
				t.Errorf("failed solve was stored: %+v", list)
			}
		})
	}
}

func TestSolveIntegrationBound(t *testing.T) {
	cfg := config.Default()
	cfg.Physics.Gravity = 0
	cfg.Physics.MaxSteps = 100
	svc, _, _ := newTestService(t, cfg)

	req := RequestFromConfig(cfg.Scenario)
	req.DiveDeg = 0
	_, err := svc.Solve(context.Background(), req)
	if Outcome(err) != metrics.OutcomeIntegrationBound {
		t.Errorf("expected integration bound, got %v", err)
	}
}

func TestSolveCanceledContext(t *testing.T) {
	cfg := config.Default()
	svc, _, hub := newTestService(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Solve(ctx, RequestFromConfig(cfg.Scenario)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if hub.count() != 0 {
		t.Error("canceled solve was broadcast")
	}
}

func TestHeadingModes(t *testing.T) {
	cfg := config.Default()
	svc, _, _ := newTestService(t, cfg)

	tests := []struct {
		name    string
		mode    string
		heading float64
		want    float64
	}{
		{"axis", HeadingAxis, 90, 90},
		{"empty mode is axis", "", 45, 45},
		{"true north", HeadingTrue, 0, 90},
		{"true east", HeadingTrue, 90, 0},
		{"true south", HeadingTrue, 180, -90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := RequestFromConfig(cfg.Scenario)
			req.HeadingMode = tt.mode
			req.HeadingDeg = tt.heading
			resolved, err := svc.Resolve(context.Background(), req)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if math.Abs(resolved.HeadingAxisDeg-tt.want) > 1e-9 {
				t.Errorf("axis heading = %f, want %f", resolved.HeadingAxisDeg, tt.want)
			}
			if math.Abs(resolved.Kinematics.Heading-tt.want*math.Pi/180) > 1e-12 {
				t.Errorf("heading = %f rad", resolved.Kinematics.Heading)
			}
		})
	}
}

func TestMagneticHeadingAppliesDeclination(t *testing.T) {
	cfg := config.Default()
	svc, _, _ := newTestService(t, cfg)

	req := RequestFromConfig(cfg.Scenario)
	req.HeadingMode = HeadingMagnetic
	req.HeadingDeg = 0
	req.Date = "2022-06-01T00:00:00Z"

	resolved, err := svc.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Central Europe has a small easterly declination
	if resolved.DeclinationDeg < 1 || resolved.DeclinationDeg > 10 {
		t.Errorf("declination = %f, want 1-10 degrees east", resolved.DeclinationDeg)
	}
	want := 90 - resolved.DeclinationDeg
	if math.Abs(resolved.HeadingAxisDeg-want) > 1e-9 {
		t.Errorf("axis heading = %f, want %f", resolved.HeadingAxisDeg, want)
	}

	req.Date = "June"
	if _, err := svc.Resolve(context.Background(), req); Outcome(err) != metrics.OutcomeInvalidInput {
		t.Errorf("expected invalid date, got %v", err)
	}
}

func TestWindResolution(t *testing.T) {
	cfg := config.Default()
	svc, _, _ := newTestService(t, cfg)

	base := RequestFromConfig(cfg.Scenario)
	base.WindEast, base.WindNorth, base.WindUp = 1, 2, 0.5

	t.Run("direction and speed", func(t *testing.T) {
		req := base
		req.WindFromDeg = 270
		req.WindSpeedKts = 10
		resolved, err := svc.Resolve(context.Background(), req)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		w := resolved.Wind
		if math.Abs(w.East-(1+10*physics.KnotsToMs)) > 1e-9 || math.Abs(w.North-2) > 1e-9 || w.Up != 0.5 {
			t.Errorf("wind = %+v", w)
		}
	})

	t.Run("metar replaces direction and speed", func(t *testing.T) {
		req := base
		req.WindFromDeg = 90
		req.WindSpeedKts = 50
		req.METAR = "LJLJ 091230Z 18010KT 9999 FEW030 22/M05 Q1013"
		resolved, err := svc.Resolve(context.Background(), req)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		// Wind from the south pushes the air mass north
		w := resolved.Wind
		if math.Abs(w.East-1) > 1e-9 || math.Abs(w.North-(2+10*physics.KnotsToMs)) > 1e-9 {
			t.Errorf("wind = %+v", w)
		}
	})
}

func TestDensitySources(t *testing.T) {
	metar := "LJLJ 091230Z 27015KT 9999 FEW030 20/M05 Q1000"
	temp := 30.0

	tests := []struct {
		name   string
		atmos  config.AtmosphereConfig
		metar  string
		want   float64
		errOut string
	}{
		{"fixed", config.AtmosphereConfig{DensitySource: "fixed"}, "", 1.225, ""},
		{"isa sea level", config.AtmosphereConfig{DensitySource: "isa"}, "", physics.ISADensity(0), ""},
		{"isa hot", config.AtmosphereConfig{DensitySource: "isa", ISAAltitudeFt: 5000, TemperatureC: &temp}, "",
			physics.AirDensity(physics.AltitudeToPressure(5000), 30), ""},
		{"metar", config.AtmosphereConfig{DensitySource: "metar"}, metar, physics.AirDensity(1000, 20), ""},
		{"metar missing", config.AtmosphereConfig{DensitySource: "metar"}, "", 0, metrics.OutcomeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Atmosphere = tt.atmos
			svc, _, _ := newTestService(t, cfg)

			req := RequestFromConfig(cfg.Scenario)
			req.METAR = tt.metar
			resolved, err := svc.Resolve(context.Background(), req)
			if tt.errOut != "" {
				if Outcome(err) != tt.errOut {
					t.Fatalf("expected %s, got %v", tt.errOut, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if math.Abs(resolved.Constants.AirDensity-tt.want) > 1e-12 {
				t.Errorf("density = %f, want %f", resolved.Constants.AirDensity, tt.want)
			}
		})
	}
}

func TestTimeStepOverride(t *testing.T) {
	cfg := config.Default()
	svc, _, _ := newTestService(t, cfg)

	coarse, err := svc.Solve(context.Background(), RequestFromConfig(cfg.Scenario))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	req := RequestFromConfig(cfg.Scenario)
	req.TimeStep = 0.05
	fine, err := svc.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if fine.Resolved.TimeStep != 0.05 {
		t.Errorf("time step = %f, want 0.05", fine.Resolved.TimeStep)
	}
	if fine.Solution.Steps <= coarse.Solution.Steps {
		t.Errorf("finer step took %d steps, coarse took %d", fine.Solution.Steps, coarse.Solution.Steps)
	}
}

func TestHistoryDisabled(t *testing.T) {
	svc, err := NewService(config.Default(), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Solve(context.Background(), RequestFromConfig(config.Default().Scenario)); err != nil {
		t.Fatalf("Solve without sinks: %v", err)
	}
	if _, err := svc.List(10, 0); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("List: expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := svc.Get("x"); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Get: expected ErrHistoryDisabled, got %v", err)
	}
}

type stubWeather struct {
	report string
	err    error
	calls  []string
}

func (w *stubWeather) METAR(_ context.Context, station string) (string, error) {
	w.calls = append(w.calls, station)
	return w.report, w.err
}

func TestMETARStationLookup(t *testing.T) {
	cfg := config.Default()
	cfg.Atmosphere.DensitySource = "metar"
	report := "LJLJ 091230Z 27015KT 9999 FEW030 20/M05 Q1000"

	t.Run("fetched report feeds wind and density", func(t *testing.T) {
		svc, _, _ := newTestService(t, cfg)
		wx := &stubWeather{report: report}
		svc.SetWeather(wx)

		req := RequestFromConfig(cfg.Scenario)
		req.METARStation = "LJLJ"
		resolved, err := svc.Resolve(context.Background(), req)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(wx.calls) != 1 || wx.calls[0] != "LJLJ" {
			t.Errorf("calls = %v", wx.calls)
		}
		if resolved.METAR != report {
			t.Errorf("resolved metar = %q", resolved.METAR)
		}
		if math.Abs(resolved.Constants.AirDensity-physics.AirDensity(1000, 20)) > 1e-12 {
			t.Errorf("density = %f", resolved.Constants.AirDensity)
		}
		// 270 at 15 kt blows toward grid east
		if math.Abs(resolved.Wind.East-(10+15*physics.KnotsToMs)) > 1e-9 {
			t.Errorf("wind = %+v", resolved.Wind)
		}
	})

	t.Run("raw report takes precedence", func(t *testing.T) {
		svc, _, _ := newTestService(t, cfg)
		wx := &stubWeather{report: report}
		svc.SetWeather(wx)

		req := RequestFromConfig(cfg.Scenario)
		req.METAR = "LJLJ 091230Z 18010KT 9999 FEW030 22/M05 Q1013"
		req.METARStation = "LJLJ"
		if _, err := svc.Resolve(context.Background(), req); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(wx.calls) != 0 {
			t.Errorf("weather source called for a request with a raw report: %v", wx.calls)
		}
	})

	t.Run("no weather source", func(t *testing.T) {
		svc, _, _ := newTestService(t, cfg)
		req := RequestFromConfig(cfg.Scenario)
		req.METARStation = "LJLJ"
		_, err := svc.Solve(context.Background(), req)
		if Outcome(err) != metrics.OutcomeInvalidInput {
			t.Errorf("outcome = %s (%v)", Outcome(err), err)
		}
	})

	t.Run("lookup canceled", func(t *testing.T) {
		svc, collector, _ := newTestService(t, cfg)
		svc.SetWeather(&stubWeather{err: fmt.Errorf("%w: LJLJ: %w", weather.ErrUnavailable, context.Canceled)})
		req := RequestFromConfig(cfg.Scenario)
		req.METARStation = "LJLJ"
		_, err := svc.Solve(context.Background(), req)
		if !errors.Is(err, context.Canceled) || Outcome(err) != metrics.OutcomeCanceled {
			t.Errorf("outcome = %s (%v)", Outcome(err), err)
		}
		if got := testutil.ToFloat64(collector.Solves.WithLabelValues(metrics.OutcomeCanceled)); got != 1 {
			t.Errorf("canceled count = %f", got)
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc, collector, _ := newTestService(t, cfg)
		svc.SetWeather(&stubWeather{err: fmt.Errorf("%w: LJLJ: timeout", weather.ErrUnavailable)})
		req := RequestFromConfig(cfg.Scenario)
		req.METARStation = "LJLJ"
		_, err := svc.Solve(context.Background(), req)
		if Outcome(err) != metrics.OutcomeWeatherUnavailable {
			t.Errorf("outcome = %s (%v)", Outcome(err), err)
		}
		if got := testutil.ToFloat64(collector.Solves.WithLabelValues(metrics.OutcomeWeatherUnavailable)); got != 1 {
			t.Errorf("weather_unavailable count = %f", got)
		}
	})
}

func TestHandleMessage(t *testing.T) {
	cfg := config.Default()
	svc, collector, hub := newTestService(t, cfg)
	client := &websocket.Client{}

	data := map[string]any{
		"target":     "33TWN0000000000",
		"aircraft":   "33TWN0100000000",
		"speed_ms":   250.0,
		"altitude_m": 5000.0,
		"dive_deg":   30.0,
	}
	if err := svc.HandleMessage(client, websocket.MessageTypeSolveRequest, data); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", hub.count())
	}

	// A rejected solve is reported to the sender, not returned
	data["speed_ms"] = 0.0
	if err := svc.HandleMessage(client, websocket.MessageTypeSolveRequest, data); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := testutil.ToFloat64(collector.Solves.WithLabelValues(metrics.OutcomeInvalidInput)); got != 1 {
		t.Errorf("invalid_input count = %f", got)
	}

	if err := svc.HandleMessage(client, "bogus", nil); err == nil {
		t.Error("expected error for unsupported message type")
	}
}

func TestUnknownDragModelIsRecorded(t *testing.T) {
	cfg := config.Default()
	cfg.Physics.DragModel = "cubic"
	svc, collector, hub := newTestService(t, cfg)

	_, err := svc.Solve(context.Background(), RequestFromConfig(cfg.Scenario))
	if Outcome(err) != metrics.OutcomeInvalidInput {
		t.Fatalf("outcome = %s (%v)", Outcome(err), err)
	}
	if got := testutil.ToFloat64(collector.Solves.WithLabelValues(metrics.OutcomeInvalidInput)); got != 1 {
		t.Errorf("invalid_input count = %f, want 1", got)
	}
	if hub.count() != 0 {
		t.Error("failed solve was broadcast")
	}
}

func TestExcludeGravityReproducesReferenceLoop(t *testing.T) {
	cfg := config.Default()
	cfg.Physics.ExcludeGravity = true
	svc, _, _ := newTestService(t, cfg)

	record, err := svc.Solve(context.Background(), RequestFromConfig(cfg.Scenario))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !record.Resolved.ExcludeGravity {
		t.Error("resolved inputs do not record exclude_gravity")
	}
	sol := record.Solution
	if math.Abs(sol.TimeOfFlight-39.9) > 1e-6 || math.Abs(sol.DisplacementX-8992.10) > 0.01 || math.Abs(sol.DisplacementY-199.50) > 0.01 {
		t.Errorf("tof %.2f, displacement (%.2f, %.2f), want 39.90, (8992.10, 199.50)",
			sol.TimeOfFlight, sol.DisplacementX, sol.DisplacementY)
	}
}
