package weather

import (
	"context"
	"strings"
	"time"

	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/pkg/logger"
)

// Service resolves station identifiers to METAR reports, fetching on demand and
// caching per station
type Service struct {
	client *Client
	cache  *Cache
	logger *logger.Logger
}

// NewService creates a new weather service
func NewService(cfg config.WeatherConfig, log *logger.Logger) *Service {
	return &Service{
		client: NewClient(cfg, log),
		cache:  NewCache(time.Duration(cfg.CacheExpiryMinutes)*time.Minute, log),
		logger: log.Named("weather-service"),
	}
}

// METAR returns the raw METAR text for a station
func (s *Service) METAR(ctx context.Context, station string) (string, error) {
	station = strings.ToUpper(strings.TrimSpace(station))

	if report := s.cache.Get(station); report != nil {
		s.logger.Debug("METAR cache hit", logger.String("station", station))
		return report.RawOb, nil
	}

	report, err := s.client.FetchMETAR(ctx, station)
	if err != nil {
		return "", err
	}
	s.cache.Set(station, report)

	s.logger.Info("METAR fetched",
		logger.String("station", station),
		logger.Time("observed_at", report.ObservedAt()),
		logger.String("raw", report.RawOb))

	return report.RawOb, nil
}

// Observation fetches and parses the METAR for a station
func (s *Service) Observation(ctx context.Context, station string) (*Observation, error) {
	raw, err := s.METAR(ctx, station)
	if err != nil {
		return nil, err
	}
	return ParseMETAR(raw)
}
