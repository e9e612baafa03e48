package mission

import (
	"time"

	"github.com/yegors/ccrp/internal/ballistics"
	"github.com/yegors/ccrp/internal/config"
)

// Heading modes
const (
	HeadingAxis     = "axis"     // degrees counter-clockwise from grid east
	HeadingTrue     = "true"     // compass degrees from true north
	HeadingMagnetic = "magnetic" // compass degrees from magnetic north
)

// Request is a release scenario in operator units, as posted to the API or read from
// the [scenario] config section
type Request struct {
	Target      string  `json:"target"`
	Aircraft    string  `json:"aircraft,omitempty"`
	SpeedMs     float64 `json:"speed_ms"`
	AltitudeM   float64 `json:"altitude_m"`
	DiveDeg     float64 `json:"dive_deg"`
	HeadingDeg  float64 `json:"heading_deg"`
	HeadingMode string  `json:"heading_mode,omitempty"`

	WindEast     float64 `json:"wind_east"`
	WindNorth    float64 `json:"wind_north"`
	WindUp       float64 `json:"wind_up"`
	WindFromDeg  float64 `json:"wind_from_deg,omitempty"`
	WindSpeedKts float64 `json:"wind_speed_kts,omitempty"`
	METAR        string  `json:"metar,omitempty"`
	METARStation string  `json:"metar_station,omitempty"` // fetched when metar is empty

	Date     string  `json:"date,omitempty"`      // RFC3339, magnetic model epoch
	TimeStep float64 `json:"time_step,omitempty"` // overrides physics.time_step when > 0
}

// Resolved holds the SI inputs actually handed to the solver
type Resolved struct {
	Kinematics     ballistics.Kinematics `json:"kinematics"`
	Wind           ballistics.Wind       `json:"wind"`
	Constants      ballistics.Constants  `json:"constants"`
	DragModel      string                `json:"drag_model"`
	WindInDrag     bool                  `json:"wind_in_drag"`
	ExcludeGravity bool                  `json:"exclude_gravity,omitempty"`
	TimeStep       float64               `json:"time_step"`
	HeadingAxisDeg float64               `json:"heading_axis_deg"`
	DeclinationDeg float64               `json:"declination_deg,omitempty"`
	DensitySource  string                `json:"density_source"`
	METAR          string                `json:"metar,omitempty"` // report actually used
}

// Record is one computed solution with everything needed to reproduce it
type Record struct {
	ID        string               `json:"id"`
	CreatedAt time.Time            `json:"created_at"`
	Request   Request              `json:"request"`
	Resolved  Resolved             `json:"resolved"`
	Solution  *ballistics.Solution `json:"solution"`
}

// requestDocument is what the request column of the history store holds
type requestDocument struct {
	Request  Request  `json:"request"`
	Resolved Resolved `json:"resolved"`
}

// RequestFromConfig builds a request from the [scenario] config section
func RequestFromConfig(s config.ScenarioConfig) Request {
	return Request{
		Target:       s.Target,
		Aircraft:     s.Aircraft,
		SpeedMs:      s.SpeedMs,
		AltitudeM:    s.AltitudeM,
		DiveDeg:      s.DiveDeg,
		HeadingDeg:   s.HeadingDeg,
		HeadingMode:  s.HeadingMode,
		WindEast:     s.WindEast,
		WindNorth:    s.WindNorth,
		WindUp:       s.WindUp,
		WindFromDeg:  s.WindFromDeg,
		WindSpeedKts: s.WindSpeedKts,
		METAR:        s.METAR,
		METARStation: s.METARStation,
		Date:         s.Date,
	}
}
