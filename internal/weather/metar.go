package weather

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yegors/ccrp/internal/physics"
)

var (
	reWind      = regexp.MustCompile(`(?:^|\s)(\d{3}|VRB)(\d{2,3})(?:G(\d{2,3}))?(KT|MPS)(?:\s|$)`)
	reTGroup    = regexp.MustCompile(`T([01])(\d{3})`)
	reTempDew   = regexp.MustCompile(`\s(M)?(\d{2})/(?:M)?\d{2}`)
	reAltimeter = regexp.MustCompile(`(?:^|\s)([QA])(\d{4})(?:\s|$)`)
)

// Observation holds the parts of a METAR report that feed a ballistic solve
type Observation struct {
	Raw string `json:"raw"`

	WindFromDeg  float64 `json:"wind_from_deg"`
	WindSpeedKts float64 `json:"wind_speed_kts"`
	WindGustKts  float64 `json:"wind_gust_kts,omitempty"`
	WindVariable bool    `json:"wind_variable,omitempty"`
	HasWind      bool    `json:"has_wind"`
	TemperatureC float64 `json:"temperature_c"`
	HasTemp      bool    `json:"has_temperature"`
	PressureHPa  float64 `json:"pressure_hpa"`
	HasPressure  bool    `json:"has_pressure"`
}

// ParseMETAR extracts wind, temperature and altimeter setting from a raw METAR string.
// Missing groups are reported through the Has* flags; a report without a wind group is an error.
func ParseMETAR(raw string) (*Observation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty METAR")
	}

	obs := &Observation{Raw: raw}

	if m := reWind.FindStringSubmatch(raw); m != nil {
		speed, _ := strconv.ParseFloat(m[2], 64)
		gust := 0.0
		if m[3] != "" {
			gust, _ = strconv.ParseFloat(m[3], 64)
		}
		if m[4] == "MPS" {
			speed *= physics.MsToKnots
			gust *= physics.MsToKnots
		}

		obs.WindSpeedKts = speed
		obs.WindGustKts = gust
		if m[1] == "VRB" {
			// No usable direction; treated as calm for drift purposes
			obs.WindVariable = true
			obs.WindSpeedKts = 0
		} else {
			dir, _ := strconv.ParseFloat(m[1], 64)
			obs.WindFromDeg = dir
		}
		obs.HasWind = true
	}
	if !obs.HasWind {
		return nil, fmt.Errorf("no wind group in METAR %q", raw)
	}

	if t, ok := parseTemperature(raw); ok {
		obs.TemperatureC = t
		obs.HasTemp = true
	}

	if m := reAltimeter.FindStringSubmatch(raw); m != nil {
		val, _ := strconv.ParseFloat(m[2], 64)
		if m[1] == "A" {
			// inHg * 100 -> hPa
			val = val / 100.0 * 33.8639
		}
		obs.PressureHPa = val
		obs.HasPressure = true
	}

	return obs, nil
}

// Wind returns the east/north air mass motion in m/s
func (o *Observation) Wind() physics.Vector2D {
	if !o.HasWind || o.WindSpeedKts == 0 {
		return physics.Vector2D{}
	}
	return physics.WindFromDirection(o.WindFromDeg, o.WindSpeedKts)
}

// Density returns the surface air density implied by the report, falling back to ISA
// values for a missing temperature or pressure group
func (o *Observation) Density() float64 {
	temp := physics.ISATemperature(0)
	if o.HasTemp {
		temp = o.TemperatureC
	}
	press := physics.P0
	if o.HasPressure {
		press = o.PressureHPa
	}
	return physics.AirDensity(press, temp)
}

// parseTemperature extracts the temperature in Celsius from the raw METAR string.
// Standard Format: "22/M05" (22°C, Dewpoint -5°C) or "M02/M10" (-2°C / -10°C)
// Also supports RMK T-group: "T00561050" (Precise Temp: 5.6°C)
func parseTemperature(raw string) (float64, bool) {
	if strings.Contains(raw, "RMK") {
		matches := reTGroup.FindStringSubmatch(raw)
		if len(matches) == 3 {
			val, err := strconv.ParseFloat(matches[2], 64)
			if err == nil {
				val = val / 10.0
				if matches[1] == "1" {
					val = -val
				}
				return val, true
			}
		}
	}

	matches := reTempDew.FindStringSubmatch(raw)
	if len(matches) == 3 {
		val, err := strconv.ParseFloat(matches[2], 64)
		if err == nil {
			if matches[1] == "M" {
				val = -val
			}
			return val, true
		}
	}

	return 0, false
}
