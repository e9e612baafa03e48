package weather

import (
	"errors"
	"time"
)

// ErrUnavailable is returned when no METAR could be obtained for a station
var ErrUnavailable = errors.New("weather data unavailable")

// METARResponse is one observation as returned by the AviationWeather.gov data API
type METARResponse struct {
	ICAOID  string  `json:"icaoId"`
	RawOb   string  `json:"rawOb"`
	ObsTime int64   `json:"obsTime"` // unix seconds
	Temp    float64 `json:"temp"`
	Dewp    float64 `json:"dewp"`
	Wdir    any     `json:"wdir"` // degrees or "VRB"
	Wspd    float64 `json:"wspd"`
	Altim   float64 `json:"altim"` // hPa
}

// ObservedAt returns the observation time
func (m *METARResponse) ObservedAt() time.Time {
	return time.Unix(m.ObsTime, 0).UTC()
}

// cacheEntry is a cached report for one station
type cacheEntry struct {
	report    *METARResponse
	expiresAt time.Time
}
