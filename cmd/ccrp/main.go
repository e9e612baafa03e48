// Command ccrp solves one release scenario and prints the impact point, time of
// flight and time to release.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/internal/mission"
	"github.com/yegors/ccrp/internal/storage/sqlite"
	"github.com/yegors/ccrp/internal/weather"
	"github.com/yegors/ccrp/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ccrp", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to configuration file (optional - defaults are used when none is found)")
	store := fs.Bool("store", false, "Persist the solution to the configured SQLite history")
	asJSON := fs.Bool("json", false, "Print the full solution record as JSON")
	version := fs.Bool("version", false, "Print the version and exit")

	// Scenario overrides; only flags given on the command line replace config values
	target := fs.String("target", "", "Target MGRS reference")
	aircraft := fs.String("aircraft", "", "Aircraft MGRS reference (empty = over the target)")
	speed := fs.Float64("speed", 0, "Release speed in m/s")
	altitude := fs.Float64("altitude", 0, "Release height above the target in metres")
	dive := fs.Float64("dive", 0, "Dive angle in degrees, positive nose down")
	heading := fs.Float64("heading", 0, "Heading in degrees")
	headingMode := fs.String("heading-mode", "", "Heading reference: axis, true or magnetic")
	windEast := fs.Float64("wind-east", 0, "East wind component in m/s")
	windNorth := fs.Float64("wind-north", 0, "North wind component in m/s")
	windUp := fs.Float64("wind-up", 0, "Vertical wind component in m/s")
	windFrom := fs.Float64("wind-from", 0, "Wind direction in degrees (blowing from)")
	windKts := fs.Float64("wind-kts", 0, "Wind speed in knots")
	metar := fs.String("metar", "", "Raw METAR report for wind (and density when density_source = metar)")
	metarStation := fs.String("metar-station", "", "ICAO station whose current METAR is fetched when -metar is not given")
	date := fs.String("date", "", "RFC3339 date for the magnetic model")
	timeStep := fs.Float64("time-step", 0, "Integration step in seconds")
	dragModel := fs.String("drag", "", "Drag model: literal or signed")
	excludeGravity := fs.Bool("exclude-gravity", false, "Leave gravity out of the vertical update (reference loop)")
	precision := fs.Int("precision", 0, "Grid reference precision (1-5)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *version {
		fmt.Fprintln(stdout, Version)
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			cfg.Scenario.Target = *target
		case "aircraft":
			cfg.Scenario.Aircraft = *aircraft
		case "speed":
			cfg.Scenario.SpeedMs = *speed
		case "altitude":
			cfg.Scenario.AltitudeM = *altitude
		case "dive":
			cfg.Scenario.DiveDeg = *dive
		case "heading":
			cfg.Scenario.HeadingDeg = *heading
		case "heading-mode":
			cfg.Scenario.HeadingMode = *headingMode
		case "wind-east":
			cfg.Scenario.WindEast = *windEast
		case "wind-north":
			cfg.Scenario.WindNorth = *windNorth
		case "wind-up":
			cfg.Scenario.WindUp = *windUp
		case "wind-from":
			cfg.Scenario.WindFromDeg = *windFrom
		case "wind-kts":
			cfg.Scenario.WindSpeedKts = *windKts
		case "metar":
			cfg.Scenario.METAR = *metar
		case "metar-station":
			cfg.Scenario.METARStation = *metarStation
		case "date":
			cfg.Scenario.Date = *date
		case "time-step":
			cfg.Physics.TimeStep = *timeStep
		case "drag":
			cfg.Physics.DragModel = *dragModel
		case "exclude-gravity":
			cfg.Physics.ExcludeGravity = *excludeGravity
		case "precision":
			cfg.Grid.Precision = *precision
		case "store":
			cfg.Storage.Enabled = *store
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	var history mission.Store
	if cfg.Storage.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			fmt.Fprintf(stderr, "Error creating storage directory: %v\n", err)
			return 1
		}
		s, err := sqlite.NewSolutionStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening solution storage: %v\n", err)
			return 1
		}
		defer s.Close()
		history = s
	}

	svc, err := mission.NewService(cfg, history, nil, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	svc.SetWeather(weather.NewService(cfg.Weather, log))

	record, err := svc.Solve(context.Background(), mission.RequestFromConfig(cfg.Scenario))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "Impact Point MGRS: %s\n", record.Solution.ImpactGridRef)
	fmt.Fprintf(stdout, "Time to Impact (TTI): %.2f seconds\n", record.Solution.TimeOfFlight)
	fmt.Fprintf(stdout, "Time to Release: %.2f seconds\n", record.Solution.TimeToRelease)
	return 0
}

// loadConfig loads the given file, or the first config found in the default
// locations, or the built-in reference scenario when there is none
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.LoadWithFallback("")
	if errors.Is(err, config.ErrNotFound) {
		return config.Default(), nil
	}
	return cfg, err
}
