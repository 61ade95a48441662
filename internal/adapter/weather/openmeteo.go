package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// OpenMeteoURL is the public Open-Meteo forecast endpoint.
const OpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const openMeteoTimeLayout = "2006-01-02T15:04"

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// BackoffConfig controls retry behaviour for forecast requests.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// OpenMeteoProvider fetches hourly forecasts from an Open-Meteo compatible
// endpoint.
type OpenMeteoProvider struct {
	name      string
	baseURL   string
	latitude  float64
	longitude float64
	days      uint
	client    *http.Client
	backoff   BackoffConfig
	circuit   *gobreaker.CircuitBreaker
	logger    *zap.Logger
}

func NewOpenMeteoProvider(name, baseURL string, latitude, longitude float64, days uint, client *http.Client, logger *zap.Logger) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = OpenMeteoURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &OpenMeteoProvider{
		name:      name,
		baseURL:   baseURL,
		latitude:  latitude,
		longitude: longitude,
		days:      days,
		client:    client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
		logger:  logger.With(zap.String("provider", name)),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2m []float64 `json:"temperature_2m"`
		CloudCover    []float64 `json:"cloud_cover"`
		Precipitation []float64 `json:"precipitation"`
		Snowfall      []float64 `json:"snowfall"`
	} `json:"hourly"`
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context) (HourlyForecast, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(p.latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(p.longitude, 'f', -1, 64))
	values.Set("hourly", "temperature_2m,cloud_cover,precipitation,snowfall")
	values.Set("forecast_days", strconv.FormatUint(uint64(p.days), 10))
	values.Set("past_days", "1")
	values.Set("timezone", "auto")

	reqURL := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	body, err := p.doWithResilience(ctx, reqURL)
	if err != nil {
		return HourlyForecast{}, err
	}

	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return HourlyForecast{}, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	return p.buildForecast(resp), nil
}

func (p *OpenMeteoProvider) buildForecast(resp openMeteoResponse) HourlyForecast {
	forecast := NewHourlyForecast()

	for i, ts := range resp.Hourly.Time {
		t, err := time.ParseInLocation(openMeteoTimeLayout, ts, time.Local)
		if err != nil {
			p.logger.Warn("skipping forecast hour with invalid time", zap.String("time", ts), zap.Error(err))
			continue
		}
		t = t.Truncate(time.Hour)

		if i < len(resp.Hourly.CloudCover) {
			forecast.CloudCover[t] = clampPercent(resp.Hourly.CloudCover[i])
		}
		if i < len(resp.Hourly.Temperature2m) {
			forecast.Temperature[t] = resp.Hourly.Temperature2m[i]
		}
		if i < len(resp.Hourly.Precipitation) {
			forecast.Precipitation[t] = resp.Hourly.Precipitation[i]
		}
		if i < len(resp.Hourly.Snowfall) {
			// snowfall comes in cm of snow, convert to mm of water
			forecast.Snowfall[t] = resp.Hourly.Snowfall[i] * 10
		}
	}

	return forecast
}

func (p *OpenMeteoProvider) doWithResilience(ctx context.Context, reqURL string) ([]byte, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := p.circuit.Execute(func() (interface{}, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			resp, execErr := p.client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			defer resp.Body.Close()

			data, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, readErr
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				return nil, errServerError
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("forecast api returned status %d: %s", resp.StatusCode, string(data))
			}
			return data, nil
		})

		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= p.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := p.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if p.backoff.MaxInterval > 0 && delay > p.backoff.MaxInterval {
			delay = p.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
