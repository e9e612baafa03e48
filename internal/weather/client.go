package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yegors/ccrp/internal/config"
	"github.com/yegors/ccrp/pkg/logger"
)

// Client handles HTTP requests to the METAR API
type Client struct {
	config     config.WeatherConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new weather API client
func NewClient(cfg config.WeatherConfig, log *logger.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		logger: log.Named("weather-client"),
	}
}

// FetchMETAR fetches the latest METAR for the specified station
func (c *Client) FetchMETAR(ctx context.Context, station string) (*METARResponse, error) {
	station = strings.ToUpper(strings.TrimSpace(station))
	if station == "" {
		return nil, fmt.Errorf("%w: empty station identifier", ErrUnavailable)
	}

	u := fmt.Sprintf("%s/metar?ids=%s&format=json", strings.TrimRight(c.config.APIBaseURL, "/"), url.QueryEscape(station))

	var result []METARResponse // API returns an array
	if err := c.fetchWithRetry(ctx, u, station, &result); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, station, err)
	}
	if len(result) == 0 || strings.TrimSpace(result[0].RawOb) == "" {
		return nil, fmt.Errorf("%w: no METAR data found for %s", ErrUnavailable, station)
	}

	// The first entry is the latest observation
	return &result[0], nil
}

// fetchWithRetry performs an HTTP GET with retry logic and exponential backoff
func (c *Client) fetchWithRetry(ctx context.Context, u, station string, target any) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			c.logger.Info("Retrying METAR fetch",
				logger.String("station", station),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoffDuration))
			select {
			case <-time.After(backoffDuration):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.fetchOnce(ctx, u, target)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Fetched METAR after retries",
					logger.String("station", station),
					logger.Int("attempts_needed", attempt+1))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		c.logger.Warn("METAR request failed, may retry",
			logger.String("station", station),
			logger.Error(err),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", c.config.MaxRetries+1))
	}

	c.logger.Error("All attempts to fetch METAR failed",
		logger.String("station", station),
		logger.Error(lastErr),
		logger.Int("max_attempts", c.config.MaxRetries+1))
	return lastErr
}

func (c *Client) fetchOnce(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request to weather API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("error decoding weather data: %w", err)
	}
	return nil
}
