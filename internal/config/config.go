package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server     ServerConfig     `toml:"server"`     // HTTP server settings
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Storage    StorageConfig    `toml:"storage"`    // Solution history settings
	Physics    PhysicsConfig    `toml:"physics"`    // Munition constants and integrator settings
	Atmosphere AtmosphereConfig `toml:"atmosphere"` // Where the air density comes from
	Grid       GridConfig       `toml:"grid"`       // Grid reference output settings
	Weather    WeatherConfig    `toml:"weather"`    // METAR lookup by station
	Scenario   ScenarioConfig   `toml:"scenario"`   // Release scenario solved by the CLI
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the API
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains solution history configuration
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`     // Persist every solve
	SQLitePath string `toml:"sqlite_path"` // SQLite database file
	MaxHistory int    `toml:"max_history"` // Maximum number of solutions returned by the history API
}

// PhysicsConfig contains the munition constants and integrator settings.
// Every field defaults to the reference value and can be overridden on its own.
type PhysicsConfig struct {
	Gravity         float64 `toml:"gravity"`          // m/s^2
	AirDensity      float64 `toml:"air_density"`      // kg/m^3, used when atmosphere.density_source = "fixed"
	DragCoefficient float64 `toml:"drag_coefficient"` // dimensionless
	ReferenceArea   float64 `toml:"reference_area"`   // m^2
	Mass            float64 `toml:"mass"`             // kg
	TimeStep        float64 `toml:"time_step"`        // integration step in seconds
	MaxSteps        int     `toml:"max_steps"`        // step cap before the integrator gives up
	DragModel       string  `toml:"drag_model"`       // "literal" (reference behaviour) or "signed" (drag opposes motion)
	WindInDrag      bool    `toml:"wind_in_drag"`     // compute drag from air-relative instead of ground velocity
	ExcludeGravity  bool    `toml:"exclude_gravity"`  // only drag acts on the vertical velocity, as in the reference loop
}

// AtmosphereConfig selects how the constant air density of a solve is obtained
type AtmosphereConfig struct {
	// Allowed values:
	// - "fixed": physics.air_density as configured
	// - "isa": standard atmosphere at isa_altitude_ft, optionally with temperature_c
	// - "metar": temperature and QNH of scenario.metar
	DensitySource string   `toml:"density_source"`
	ISAAltitudeFt float64  `toml:"isa_altitude_ft"` // pressure altitude for the ISA lookup
	TemperatureC  *float64 `toml:"temperature_c"`   // overrides the ISA temperature when set
}

// GridConfig contains grid reference settings
type GridConfig struct {
	Precision int `toml:"precision"` // digits per axis in emitted MGRS references (5 = 1 m)
}

// WeatherConfig contains settings for fetching METARs by station identifier
type WeatherConfig struct {
	APIBaseURL            string `toml:"api_base_url"`            // AviationWeather.gov data API base URL
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP request timeout
	MaxRetries            int    `toml:"max_retries"`             // Maximum number of retries for failed requests
	CacheExpiryMinutes    int    `toml:"cache_expiry_minutes"`    // How long a fetched METAR is reused (0 disables caching)
}

// ScenarioConfig describes one release
type ScenarioConfig struct {
	Target      string  `toml:"target"`       // target MGRS reference
	Aircraft    string  `toml:"aircraft"`     // aircraft MGRS reference (empty = over the target)
	SpeedMs     float64 `toml:"speed_ms"`     // release speed in m/s
	AltitudeM   float64 `toml:"altitude_m"`   // release height above the target in metres
	DiveDeg     float64 `toml:"dive_deg"`     // dive angle, positive nose down
	HeadingDeg  float64 `toml:"heading_deg"`  // heading, interpreted according to heading_mode
	HeadingMode string  `toml:"heading_mode"` // "axis" (counter-clockwise from grid east), "true" or "magnetic" (compass)

	// Wind as components (m/s) ...
	WindEast  float64 `toml:"wind_east"`
	WindNorth float64 `toml:"wind_north"`
	WindUp    float64 `toml:"wind_up"`
	// ... or as a meteorological direction/speed, added to the components
	WindFromDeg  float64 `toml:"wind_from_deg"`
	WindSpeedKts float64 `toml:"wind_speed_kts"`
	// ... or taken from a raw METAR report
	METAR string `toml:"metar"`
	// ... or fetched for an ICAO station when no raw report is given
	METARStation string `toml:"metar_station"`

	Date string `toml:"date"` // RFC3339 date for the magnetic model (empty = now)
}

// Default returns the reference configuration. A TOML file is decoded on top of it,
// so keys missing from the file keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8090,
			Host:             "127.0.0.1",
			ReadTimeoutSecs:  10,
			WriteTimeoutSecs: 10,
			IdleTimeoutSecs:  60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Enabled:    false,
			SQLitePath: "data/ccrp.db",
			MaxHistory: 100,
		},
		Physics: PhysicsConfig{
			Gravity:         9.81,
			AirDensity:      1.225,
			DragCoefficient: 0.005,
			ReferenceArea:   0.1,
			Mass:            250,
			TimeStep:        0.1,
			MaxSteps:        1000000,
			DragModel:       "literal",
			WindInDrag:      false,
			ExcludeGravity:  false,
		},
		Atmosphere: AtmosphereConfig{
			DensitySource: "fixed",
		},
		Grid: GridConfig{
			Precision: 5,
		},
		Weather: WeatherConfig{
			APIBaseURL:            "https://aviationweather.gov/api/data",
			RequestTimeoutSeconds: 10,
			MaxRetries:            2,
			CacheExpiryMinutes:    15,
		},
		Scenario: ScenarioConfig{
			Target:      "33TWN0000000000",
			Aircraft:    "33TWN0100000000",
			SpeedMs:     250,
			AltitudeM:   5000,
			DiveDeg:     30,
			HeadingDeg:  0,
			HeadingMode: "axis",
			WindEast:    10,
			WindNorth:   5,
			WindUp:      0,
		},
	}
}

// ErrNotFound is returned by LoadWithFallback when no candidate file exists
var ErrNotFound = errors.New("config file not found")

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// Parse decodes configuration from TOML text on top of the defaults
func Parse(data string) (*Config, error) {
	config := Default()
	if _, err := toml.Decode(data, config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
			return config, nil
		}
	}

	return nil, fmt.Errorf("%w in any of the expected locations: %v", ErrNotFound, uniquePaths)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must be >= 0")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate storage config
	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required when storage is enabled")
	}
	if c.Storage.MaxHistory <= 0 {
		c.Storage.MaxHistory = 100
	}

	if err := c.ValidatePhysics(); err != nil {
		return err
	}

	if err := c.ValidateAtmosphere(); err != nil {
		return err
	}

	if c.Grid.Precision < 1 || c.Grid.Precision > 5 {
		return fmt.Errorf("grid precision must be between 1 and 5: %d", c.Grid.Precision)
	}

	if err := c.ValidateWeather(); err != nil {
		return err
	}

	return c.ValidateScenario()
}

// ValidateWeather validates the METAR lookup settings
func (c *Config) ValidateWeather() error {
	w := &c.Weather
	if w.APIBaseURL == "" {
		w.APIBaseURL = "https://aviationweather.gov/api/data"
	}
	if w.RequestTimeoutSeconds <= 0 {
		w.RequestTimeoutSeconds = 10
	}
	if w.MaxRetries < 0 || w.MaxRetries > 10 {
		return fmt.Errorf("weather max_retries must be between 0 and 10: %d", w.MaxRetries)
	}
	if w.CacheExpiryMinutes < 0 {
		return fmt.Errorf("weather cache_expiry_minutes must be non-negative: %d", w.CacheExpiryMinutes)
	}
	return nil
}

// ValidatePhysics validates the munition constants and integrator settings
func (c *Config) ValidatePhysics() error {
	p := c.Physics

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"gravity", p.Gravity},
		{"air_density", p.AirDensity},
		{"drag_coefficient", p.DragCoefficient},
		{"reference_area", p.ReferenceArea},
		{"mass", p.Mass},
		{"time_step", p.TimeStep},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("physics %s must be finite: %f", f.name, f.value)
		}
	}

	if p.Gravity < 0 {
		return fmt.Errorf("physics gravity must be non-negative: %f", p.Gravity)
	}
	if p.AirDensity < 0 {
		return fmt.Errorf("physics air_density must be non-negative: %f", p.AirDensity)
	}
	if p.DragCoefficient < 0 {
		return fmt.Errorf("physics drag_coefficient must be non-negative: %f", p.DragCoefficient)
	}
	if p.ReferenceArea < 0 {
		return fmt.Errorf("physics reference_area must be non-negative: %f", p.ReferenceArea)
	}
	if p.Mass <= 0 {
		return fmt.Errorf("physics mass must be positive: %f", p.Mass)
	}
	if p.TimeStep <= 0 || p.TimeStep > 10 {
		return fmt.Errorf("physics time_step must be in (0, 10] seconds: %f", p.TimeStep)
	}
	if p.MaxSteps <= 0 {
		return fmt.Errorf("physics max_steps must be positive: %d", p.MaxSteps)
	}

	switch p.DragModel {
	case "literal", "signed":
	case "":
		c.Physics.DragModel = "literal"
	default:
		return fmt.Errorf("invalid drag_model: %s (must be 'literal' or 'signed')", p.DragModel)
	}

	return nil
}

// ValidateAtmosphere validates the air density source
func (c *Config) ValidateAtmosphere() error {
	switch c.Atmosphere.DensitySource {
	case "", "fixed":
		c.Atmosphere.DensitySource = "fixed"
	case "isa":
		if c.Atmosphere.ISAAltitudeFt < -2000 || c.Atmosphere.ISAAltitudeFt > 65000 {
			return fmt.Errorf("isa_altitude_ft out of range: %f", c.Atmosphere.ISAAltitudeFt)
		}
		if t := c.Atmosphere.TemperatureC; t != nil && (*t < -90 || *t > 60) {
			return fmt.Errorf("atmosphere temperature_c out of range: %f", *t)
		}
	case "metar":
		if strings.TrimSpace(c.Scenario.METAR) == "" && strings.TrimSpace(c.Scenario.METARStation) == "" {
			return fmt.Errorf("scenario metar or metar_station is required when density_source is metar")
		}
	default:
		return fmt.Errorf("invalid density_source: %s (must be 'fixed', 'isa' or 'metar')", c.Atmosphere.DensitySource)
	}
	return nil
}

// ValidateScenario validates the release scenario
func (c *Config) ValidateScenario() error {
	s := c.Scenario

	if s.Target == "" {
		return fmt.Errorf("scenario target is required")
	}
	if s.SpeedMs <= 0 {
		return fmt.Errorf("scenario speed_ms must be positive: %f", s.SpeedMs)
	}
	if s.AltitudeM <= 0 {
		return fmt.Errorf("scenario altitude_m must be positive: %f", s.AltitudeM)
	}
	if s.DiveDeg < -90 || s.DiveDeg > 90 {
		return fmt.Errorf("scenario dive_deg must be between -90 and 90: %f", s.DiveDeg)
	}
	if s.WindSpeedKts < 0 {
		return fmt.Errorf("scenario wind_speed_kts must be non-negative: %f", s.WindSpeedKts)
	}

	switch s.HeadingMode {
	case "axis", "true", "magnetic":
	case "":
		c.Scenario.HeadingMode = "axis"
	default:
		return fmt.Errorf("invalid heading_mode: %s (must be 'axis', 'true' or 'magnetic')", s.HeadingMode)
	}

	if s.Date != "" {
		if _, err := ParseDate(s.Date, time.Time{}); err != nil {
			return fmt.Errorf("invalid scenario date %q (use RFC3339): %w", s.Date, err)
		}
	}

	return nil
}

// ParseDate parses an RFC3339 scenario date. An empty value yields fallback.
func ParseDate(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, value)
}
