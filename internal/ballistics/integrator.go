package ballistics

// Integrator advances a munition from release to ground impact with a fixed explicit step.
// An Integrator holds no per-run state; the same value may be used concurrently as long as
// Observer is safe for concurrent use.
type Integrator struct {
	Constants Constants
	Drag      DragModel
	TimeStep  float64 // s
	MaxSteps  int

	// WindInDrag computes drag from air-relative velocity (v - wind) instead of
	// ground velocity. Wind drift is added to the displacement either way.
	WindInDrag bool

	// ExcludeGravity leaves gravity out of the vertical update so that only drag acts on
	// Vz, reproducing the reference release loop. Level or zero-speed releases then never
	// descend and end with an IntegrationBoundError.
	ExcludeGravity bool

	// Observer, when set, receives the state after every step
	Observer func(State)
}

// NewIntegrator returns an integrator with the default step, step cap and literal drag
func NewIntegrator(c Constants) *Integrator {
	return &Integrator{
		Constants: c,
		Drag:      QuadraticDrag{K: c.DragFactor()},
		TimeStep:  DefaultTimeStep,
		MaxSteps:  DefaultMaxSteps,
	}
}

// Integrate runs the munition from release until its altitude reaches zero and returns
// the horizontal displacement and the time of flight
func (in *Integrator) Integrate(k Kinematics, w Wind) (Trajectory, error) {
	if err := in.validate(k, w); err != nil {
		return Trajectory{}, err
	}

	drag := in.Drag
	if drag == nil {
		drag = QuadraticDrag{K: in.Constants.DragFactor()}
	}
	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	dt := in.TimeStep
	g := in.Constants.Gravity
	if in.ExcludeGravity {
		g = 0
	}

	s := State{Altitude: k.Altitude}
	s.Vx, s.Vy, s.Vz = k.Velocity()

	for s.Altitude > 0 {
		if s.Step >= maxSteps {
			return Trajectory{}, &IntegrationBoundError{Steps: s.Step, Altitude: s.Altitude}
		}

		ax, ay, az := s.Vx, s.Vy, s.Vz
		if in.WindInDrag {
			ax -= w.East
			ay -= w.North
			az -= w.Up
		}
		dragX := drag.Deceleration(ax)
		dragY := drag.Deceleration(ay)
		dragZ := drag.Deceleration(az)

		s.Vx -= dragX * dt
		s.Vy -= dragY * dt
		s.Vz -= (dragZ + g) * dt

		s.Altitude += s.Vz * dt
		s.X += s.Vx*dt + w.East*dt
		s.Y += s.Vy*dt + w.North*dt
		s.Elapsed += dt
		s.Step++

		if in.Observer != nil {
			in.Observer(s)
		}
	}

	return Trajectory{
		X:            s.X,
		Y:            s.Y,
		TimeOfFlight: s.Elapsed,
		Steps:        s.Step,
		Final:        s,
	}, nil
}

func (in *Integrator) validate(k Kinematics, w Wind) error {
	if err := in.Constants.Validate(); err != nil {
		return err
	}
	if !isFinite(in.TimeStep) || in.TimeStep <= 0 {
		return invalidInput("time_step", in.TimeStep, "must be finite and > 0")
	}
	if !isFinite(k.Speed) || k.Speed < 0 {
		return invalidInput("speed", k.Speed, "must be finite and >= 0")
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
	return validateWind(w)
}

// validateWind reports the first non-finite wind component in east, north, up order
func validateWind(w Wind) error {
	for _, c := range []struct {
		field string
		v     float64
	}{{"wind_east", w.East}, {"wind_north", w.North}, {"wind_up", w.Up}} {
		if !isFinite(c.v) {
			return invalidInput(c.field, c.v, "must be finite")
		}
	}
	return nil
}
