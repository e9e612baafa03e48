package ballistics

import (
	"math"

	"github.com/yegors/ccrp/internal/grid"
)

// Reference values for a 250 kg general-purpose bomb
const (
	DefaultGravity         = 9.81  // m/s^2
	DefaultAirDensity      = 1.225 // kg/m^3
	DefaultDragCoefficient = 0.005
	DefaultReferenceArea   = 0.1 // m^2
	DefaultMass            = 250 // kg

	DefaultTimeStep = 0.1 // s
	DefaultMaxSteps = 1000000
)

// Constants are the physical parameters of one solve
type Constants struct {
	Gravity         float64 `json:"gravity"`          // m/s^2
	AirDensity      float64 `json:"air_density"`      // kg/m^3
	DragCoefficient float64 `json:"drag_coefficient"` // dimensionless
	ReferenceArea   float64 `json:"reference_area"`   // m^2
	Mass            float64 `json:"mass"`             // kg
}

// DefaultConstants returns the reference munition and atmosphere
func DefaultConstants() Constants {
	return Constants{
		Gravity:         DefaultGravity,
		AirDensity:      DefaultAirDensity,
		DragCoefficient: DefaultDragCoefficient,
		ReferenceArea:   DefaultReferenceArea,
		Mass:            DefaultMass,
	}
}

// Validate checks that the constants are finite and physically meaningful
func (c Constants) Validate() error {
	checks := []struct {
		field string
		value float64
		ok    bool
		why   string
	}{
		{"gravity", c.Gravity, c.Gravity >= 0, "must be >= 0"},
		{"air_density", c.AirDensity, c.AirDensity >= 0, "must be >= 0"},
		{"drag_coefficient", c.DragCoefficient, c.DragCoefficient >= 0, "must be >= 0"},
		{"reference_area", c.ReferenceArea, c.ReferenceArea >= 0, "must be >= 0"},
		{"mass", c.Mass, c.Mass > 0, "must be > 0"},
	}
	for _, chk := range checks {
		if !isFinite(chk.value) {
			return invalidInput(chk.field, chk.value, "must be finite")
		}
		if !chk.ok {
			return invalidInput(chk.field, chk.value, chk.why)
		}
	}
	return nil
}

// DragFactor returns 0.5·rho·Cd·A/m, the coefficient of v^2 in the drag deceleration
func (c Constants) DragFactor() float64 {
	return 0.5 * c.AirDensity * c.DragCoefficient * c.ReferenceArea / c.Mass
}

// Wind is a constant air mass motion in m/s
type Wind struct {
	East  float64 `json:"east"`
	North float64 `json:"north"`
	Up    float64 `json:"up"`
}

// Kinematics describes the aircraft at the moment of release
type Kinematics struct {
	Speed    float64 `json:"speed"`    // m/s
	Altitude float64 `json:"altitude"` // m above the target
	Dive     float64 `json:"dive"`     // rad, positive nose down
	Heading  float64 `json:"heading"`  // rad, counter-clockwise from the +easting axis
}

// Velocity decomposes the release speed into east/north/up components
func (k Kinematics) Velocity() (vx, vy, vz float64) {
	vx = k.Speed * math.Cos(k.Dive) * math.Cos(k.Heading)
	vy = k.Speed * math.Cos(k.Dive) * math.Sin(k.Heading)
	vz = -k.Speed * math.Sin(k.Dive)
	return vx, vy, vz
}

// State is the munition state during one integration run
type State struct {
	Vx, Vy, Vz float64 // m/s
	X, Y       float64 // horizontal displacement from release, m
	Altitude   float64 // height remaining above the target, m
	Elapsed    float64 // s
	Step       int
}

// Trajectory is the integrator output
type Trajectory struct {
	X, Y         float64 // horizontal displacement at impact, m
	TimeOfFlight float64 // s
	Steps        int
	Final        State
}

// Request is one release-point solve
type Request struct {
	Target     string // grid reference
	Aircraft   string // grid reference; empty means the aircraft is over the target
	Kinematics Kinematics
	Wind       Wind
}

// Solution is the result of one solve. It is never mutated after Solve returns.
type Solution struct {
	ImpactGridRef string  `json:"impact_grid_ref"`
	TimeOfFlight  float64 `json:"time_of_flight"`
	TimeToRelease float64 `json:"time_to_release"`

	Target        grid.Point `json:"target"`
	Aircraft      grid.Point `json:"aircraft"`
	Impact        grid.Point `json:"impact"`
	DisplacementX float64    `json:"displacement_x"`
	DisplacementY float64    `json:"displacement_y"`
	Distance      float64    `json:"distance"`
	Steps         int        `json:"steps"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
