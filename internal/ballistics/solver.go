package ballistics

import (
	"math"

	"github.com/yegors/ccrp/internal/grid"
	"github.com/yegors/ccrp/pkg/logger"
)

// Converter translates between grid references and projected points
type Converter interface {
	ToProjected(ref string) (grid.Point, error)
	ToGridReference(p grid.Point) (string, error)
}

// Solver produces a release solution from one integrator run anchored at the aircraft.
//
// The solve simulates a release happening now, at the aircraft position, and reports how
// long the aircraft would take at constant speed to cover the straight-line distance to
// that impact point. It does not search for the release point that puts the munition on
// the target.
type Solver struct {
	converter  Converter
	integrator *Integrator
	logger     *logger.Logger
}

// NewSolver creates a solver. A nil logger discards output.
func NewSolver(converter Converter, integrator *Integrator, log *logger.Logger) *Solver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Solver{
		converter:  converter,
		integrator: integrator,
		logger:     log.Named("solver"),
	}
}

// Solve computes the impact point, time of flight and time to release for a request.
// Inputs are validated before any conversion or integration; conversion errors are
// returned unchanged.
func (s *Solver) Solve(req Request) (*Solution, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	target, err := s.converter.ToProjected(req.Target)
	if err != nil {
		return nil, err
	}

	aircraft := target
	if req.Aircraft != "" {
		aircraft, err = s.converter.ToProjected(req.Aircraft)
		if err != nil {
			return nil, err
		}
	}

	traj, err := s.integrator.Integrate(req.Kinematics, req.Wind)
	if err != nil {
		return nil, err
	}

	// The impact point keeps the target's zone identifiers
	impact := aircraft.Offset(traj.X, traj.Y)
	impact.ZoneNumber, impact.ZoneLetter = target.ZoneNumber, target.ZoneLetter
	impactRef, err := s.converter.ToGridReference(impact)
	if err != nil {
		return nil, err
	}

	distance := math.Hypot(aircraft.Easting-impact.Easting, aircraft.Northing-impact.Northing)

	sol := &Solution{
		ImpactGridRef: impactRef,
		TimeOfFlight:  traj.TimeOfFlight,
		TimeToRelease: distance / req.Kinematics.Speed,
		Target:        target,
		Aircraft:      aircraft,
		Impact:        impact,
		DisplacementX: traj.X,
		DisplacementY: traj.Y,
		Distance:      distance,
		Steps:         traj.Steps,
	}

	s.logger.Debug("Release point solved",
		logger.String("target", req.Target),
		logger.String("impact", impactRef),
		logger.Float64("time_of_flight", sol.TimeOfFlight),
		logger.Float64("time_to_release", sol.TimeToRelease),
		logger.Int("steps", sol.Steps))

	return sol, nil
}

// validateRequest rejects inputs that would make the solve meaningless, including a zero
// speed that would otherwise reach the distance/speed division
func validateRequest(req Request) error {
	k := req.Kinematics
	if !isFinite(k.Speed) || k.Speed <= 0 {
		return invalidInput("speed", k.Speed, "must be finite and > 0")
	}
	if !isFinite(k.Altitude) || k.Altitude <= 0 {
		return invalidInput("altitude", k.Altitude, "must be finite and > 0")
	}
	if !isFinite(k.Dive) {
		return invalidInput("dive", k.Dive, "must be finite")
	}
	if !isFinite(k.Heading) {
		return invalidInput("heading", k.Heading, "must be finite")
	}
	return validateWind(req.Wind)
}
