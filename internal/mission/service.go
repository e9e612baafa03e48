package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/ccrp/internal/ballistics"
	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/internal/grid"
	"github.com/yegors/ccrp/internal/metrics"
	"github.com/yegors/ccrp/internal/physics"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/internal/weather"
	"github.com/yegors/ccrp/internal/websocket"
	"github.com/yegors/ccrp/pkg/logger"
)

// Store is the solution history used by the service
type Store interface {
	Store(record *sqlite.SolutionRecord) error
	List(limit, offset int) ([]*sqlite.SolutionRecord, error)
	Get(id string) (*sqlite.SolutionRecord, error)
	Count() (int, error)
}

// Broadcaster pushes messages to live clients
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// METARSource looks up the current METAR for a station
type METARSource interface {
	METAR(ctx context.Context, station string) (string, error)
}

// ErrHistoryDisabled is returned by history queries when no store is configured
var ErrHistoryDisabled = errors.New("solution history is disabled")

// Service turns operator requests into solutions. Each Solve builds its own
// integrator, so concurrent solves share nothing but the sinks.
type Service struct {
	physics    config.PhysicsConfig
	atmosphere config.AtmosphereConfig
	converter  *grid.MGRS
	store      Store
	metrics    *metrics.SolveCollector
	hub        Broadcaster
	weather    METARSource
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates a mission service. store, collector and hub may be nil.
func NewService(cfg *config.Config, store Store, collector *metrics.SolveCollector, hub Broadcaster, log *logger.Logger) (*Service, error) {
	converter, err := grid.NewMGRS(cfg.Grid.Precision)
	if err != nil {
		return nil, fmt.Errorf("failed to create grid converter: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Service{
		physics:    cfg.Physics,
		atmosphere: cfg.Atmosphere,
		converter:  converter,
		store:      store,
		metrics:    collector,
		hub:        hub,
		logger:     log.Named("mission"),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetWeather sets the source used for requests that name a METAR station
func (s *Service) SetWeather(source METARSource) {
	s.weather = source
}

// Solve resolves the request, runs one solve and records the result
func (s *Service) Solve(ctx context.Context, req Request) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	dragModel := s.physics.DragModel

	resolved, err := s.Resolve(ctx, req)
	if err != nil {
		s.metrics.ObserveSolve(Outcome(err), dragModel, time.Since(start), 0, 0)
		return nil, err
	}

	integrator := ballistics.NewIntegrator(resolved.Constants)
	integrator.Drag, err = ballistics.NewDragModel(resolved.DragModel, resolved.Constants)
	if err != nil {
		s.metrics.ObserveSolve(Outcome(err), dragModel, time.Since(start), 0, 0)
		return nil, err
	}
	integrator.TimeStep = resolved.TimeStep
	integrator.MaxSteps = s.physics.MaxSteps
	integrator.WindInDrag = resolved.WindInDrag
	integrator.ExcludeGravity = resolved.ExcludeGravity

	solver := ballistics.NewSolver(s.converter, integrator, s.logger)
	sol, err := solver.Solve(ballistics.Request{
		Target:     req.Target,
		Aircraft:   req.Aircraft,
		Kinematics: resolved.Kinematics,
		Wind:       resolved.Wind,
	})
	if err != nil {
		s.metrics.ObserveSolve(Outcome(err), dragModel, time.Since(start), 0, 0)
		s.logger.Warn("Solve rejected",
			logger.String("target", req.Target),
			logger.Error(err))
		return nil, err
	}
	s.metrics.ObserveSolve(metrics.OutcomeOK, dragModel, time.Since(start), sol.Steps, sol.TimeOfFlight)

	record := &Record{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Request:   req,
		Resolved:  resolved,
		Solution:  sol,
	}

	s.logger.Info("Solution computed",
		logger.String("id", record.ID),
		logger.String("target", req.Target),
		logger.String("impact", sol.ImpactGridRef),
		logger.Float64("time_of_flight", sol.TimeOfFlight),
		logger.Float64("time_to_release", sol.TimeToRelease))

	if s.store != nil {
		if err := s.persist(record); err != nil {
			// The solution is still valid; history is best effort
			s.logger.Error("Failed to store solution", logger.String("id", record.ID), logger.Error(err))
		}
	}

	if s.hub != nil {
		s.hub.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeSolutionComputed,
			Data: map[string]any{
				"id":              record.ID,
				"created_at":      record.CreatedAt,
				"target":          req.Target,
				"aircraft":        req.Aircraft,
				"impact_grid_ref": sol.ImpactGridRef,
				"time_of_flight":  sol.TimeOfFlight,
				"time_to_release": sol.TimeToRelease,
			},
		})
	}

	return record, nil
}

// Resolve converts operator units into solver inputs without solving
func (s *Service) Resolve(ctx context.Context, req Request) (Resolved, error) {
	if req.TimeStep < 0 || math.IsNaN(req.TimeStep) || math.IsInf(req.TimeStep, 0) {
		return Resolved{}, &ballistics.InvalidInputError{Field: "time_step", Value: req.TimeStep, Reason: "must be finite and >= 0"}
	}
	timeStep := s.physics.TimeStep
	if req.TimeStep > 0 {
		timeStep = req.TimeStep
	}

	report, err := s.metarReport(ctx, req)
	if err != nil {
		return Resolved{}, err
	}
	var obs *weather.Observation
	if report != "" {
		obs, err = weather.ParseMETAR(report)
		if err != nil {
			return Resolved{}, &ballistics.InvalidInputError{Field: "metar", Reason: err.Error()}
		}
	}

	constants := ballistics.Constants{
		Gravity:         s.physics.Gravity,
		AirDensity:      s.physics.AirDensity,
		DragCoefficient: s.physics.DragCoefficient,
		ReferenceArea:   s.physics.ReferenceArea,
		Mass:            s.physics.Mass,
	}
	density, err := s.density(obs)
	if err != nil {
		return Resolved{}, err
	}
	constants.AirDensity = density

	headingAxis, declination, err := s.heading(req)
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Kinematics: ballistics.Kinematics{
			Speed:    req.SpeedMs,
			Altitude: req.AltitudeM,
			Dive:     req.DiveDeg * math.Pi / 180,
			Heading:  headingAxis * math.Pi / 180,
		},
		Wind:           resolveWind(req, obs),
		Constants:      constants,
		DragModel:      s.physics.DragModel,
		WindInDrag:     s.physics.WindInDrag,
		ExcludeGravity: s.physics.ExcludeGravity,
		TimeStep:       timeStep,
		HeadingAxisDeg: headingAxis,
		DeclinationDeg: declination,
		DensitySource:  s.atmosphere.DensitySource,
		METAR:          report,
	}, nil
}

// density returns the constant air density for the solve
func (s *Service) density(obs *weather.Observation) (float64, error) {
	switch s.atmosphere.DensitySource {
	case "isa":
		alt := s.atmosphere.ISAAltitudeFt
		if t := s.atmosphere.TemperatureC; t != nil {
			return physics.AirDensity(physics.AltitudeToPressure(alt), *t), nil
		}
		return physics.ISADensity(alt), nil
	case "metar":
		if obs == nil {
			return 0, &ballistics.InvalidInputError{Field: "metar", Reason: "required when density_source is metar"}
		}
		return obs.Density(), nil
	default:
		return s.physics.AirDensity, nil
	}
}

// heading returns the heading as degrees counter-clockwise from grid east, plus the
// declination applied for magnetic headings
func (s *Service) heading(req Request) (float64, float64, error) {
	switch req.HeadingMode {
	case "", HeadingAxis:
		return req.HeadingDeg, 0, nil
	case HeadingTrue:
		return physics.CompassToAxis(req.HeadingDeg) * 180 / math.Pi, 0, nil
	case HeadingMagnetic:
		date, err := config.ParseDate(req.Date, s.now())
		if err != nil {
			return 0, 0, &ballistics.InvalidInputError{Field: "date", Reason: "must be RFC3339"}
		}
		if math.IsNaN(req.HeadingDeg) || math.IsInf(req.HeadingDeg, 0) {
			return 0, 0, &ballistics.InvalidInputError{Field: "heading", Value: req.HeadingDeg, Reason: "must be finite"}
		}

		ref := req.Aircraft
		if ref == "" {
			ref = req.Target
		}
		p, err := s.converter.ToProjected(ref)
		if err != nil {
			return 0, 0, err
		}
		lat, lon, err := s.converter.ToLatLon(p)
		if err != nil {
			return 0, 0, err
		}
		declination := physics.CalculateMagneticVariation(lat, lon, req.AltitudeM/physics.FeetToM, date)
		trueHeading := physics.MagneticToTrue(req.HeadingDeg, declination)
		return physics.CompassToAxis(trueHeading) * 180 / math.Pi, declination, nil
	default:
		return 0, 0, &ballistics.InvalidInputError{Field: "heading_mode", Reason: fmt.Sprintf("unknown mode %q", req.HeadingMode)}
	}
}

// resolveWind sums the explicit components with the meteorological wind, which comes
// from the METAR when one is given and from wind_from_deg/wind_speed_kts otherwise
func resolveWind(req Request, obs *weather.Observation) ballistics.Wind {
	w := ballistics.Wind{East: req.WindEast, North: req.WindNorth, Up: req.WindUp}

	var met physics.Vector2D
	switch {
	case obs != nil:
		met = obs.Wind()
	case req.WindSpeedKts > 0:
		met = physics.WindFromDirection(req.WindFromDeg, req.WindSpeedKts)
	}
	w.East += met.X
	w.North += met.Y
	return w
}

// persist writes a record to the history store
func (s *Service) persist(record *Record) error {
	reqDoc, err := json.Marshal(requestDocument{Request: record.Request, Resolved: record.Resolved})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	solDoc, err := json.Marshal(record.Solution)
	if err != nil {
		return fmt.Errorf("failed to encode solution: %w", err)
	}

	if err := s.store.Store(&sqlite.SolutionRecord{
		ID:            record.ID,
		CreatedAt:     record.CreatedAt,
		Target:        record.Request.Target,
		Aircraft:      record.Request.Aircraft,
		ImpactGridRef: record.Solution.ImpactGridRef,
		TimeOfFlight:  record.Solution.TimeOfFlight,
		TimeToRelease: record.Solution.TimeToRelease,
		Request:       reqDoc,
		Solution:      solDoc,
	}); err != nil {
		return err
	}

	if n, err := s.store.Count(); err == nil {
		s.metrics.SetStoredSolutions(n)
	}
	return nil
}

// List returns stored solutions, newest first
func (s *Service) List(limit, offset int) ([]*Record, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	rows, err := s.store.List(limit, offset)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		record, err := decodeRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Get returns one stored solution
func (s *Service) Get(id string) (*Record, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	row, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return decodeRecord(row)
}

func decodeRecord(row *sqlite.SolutionRecord) (*Record, error) {
	var doc requestDocument
	if err := json.Unmarshal(row.Request, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode stored request %s: %w", row.ID, err)
	}
	var sol ballistics.Solution
	if err := json.Unmarshal(row.Solution, &sol); err != nil {
		return nil, fmt.Errorf("failed to decode stored solution %s: %w", row.ID, err)
	}
	return &Record{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Request:   doc.Request,
		Resolved:  doc.Resolved,
		Solution:  &sol,
	}, nil
}

// HandleMessage serves solve requests sent over the websocket feed. Successful solves
// reach every client through the regular broadcast; failures go back to the sender only.
func (s *Service) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	if messageType != websocket.MessageTypeSolveRequest {
		return fmt.Errorf("unsupported message type: %s", messageType)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode solve request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		client.SendMessage(&websocket.Message{
			Type: websocket.MessageTypeSolveFailed,
			Data: map[string]any{"error": err.Error()},
		})
		return nil
	}

	if _, err := s.Solve(context.Background(), req); err != nil {
		client.SendMessage(&websocket.Message{
			Type: websocket.MessageTypeSolveFailed,
			Data: map[string]any{"target": req.Target, "error": err.Error()},
		})
	}
	return nil
}

// metarReport returns the raw report given in the request, or fetches one for the
// requested station
func (s *Service) metarReport(ctx context.Context, req Request) (string, error) {
	if report := strings.TrimSpace(req.METAR); report != "" {
		return report, nil
	}
	station := strings.TrimSpace(req.METARStation)
	if station == "" {
		return "", nil
	}
	if s.weather == nil {
		return "", &ballistics.InvalidInputError{Field: "metar_station", Reason: "weather lookup is not configured"}
	}
	report, err := s.weather.METAR(ctx, station)
	if err != nil {
		return "", fmt.Errorf("failed to fetch METAR for %s: %w", station, err)
	}
	return report, nil
}

// Outcome classifies a solve error for metrics and HTTP status mapping
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case errors.Is(err, ballistics.ErrInvalidInput):
		return metrics.OutcomeInvalidInput
	case errors.Is(err, grid.ErrConversion):
		return metrics.OutcomeConversionError
	case errors.Is(err, ballistics.ErrIntegrationBound):
		return metrics.OutcomeIntegrationBound
	case errors.Is(err, weather.ErrUnavailable):
		return metrics.OutcomeWeatherUnavailable
	default:
		return metrics.OutcomeError
	}
}
