package pvgis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// APIURL is the PVGIS hourly radiation endpoint.
const APIURL = "https://re.jrc.ec.europa.eu/api/seriescalc"

const (
	MountingPlaceFree     = "free"
	MountingPlaceBuilding = "building"

	DefaultLoss          = 14.0
	DefaultMountingPlace = MountingPlaceFree
	DefaultPVTech        = "crystsi"
)

// pvTechAPIValues maps lowercase technology keys to their API spelling.
var pvTechAPIValues = map[string]string{
	"crystsi": "crystSi",
	"cis":     "CIS",
	"cdte":    "CdTe",
	"unknown": "Unknown",
}

// PVTechAPIValue translates a configured technology key to the value the API
// expects. Unknown keys pass through unchanged.
func PVTechAPIValue(key string) string {
	if v, ok := pvTechAPIValues[key]; ok {
		return v
	}
	return key
}

// ArrayParams describes one PV array for a seriescalc request.
type ArrayParams struct {
	Latitude      float64
	Longitude     float64
	PeakPowerKWp  float64
	Loss          float64
	Angle         float64
	Aspect        float64
	MountingPlace string
	PVTech        string
}

// Client fetches typical-year production series from PVGIS.
type Client interface {
	FetchSeries(ctx context.Context, params ArrayParams) (*Series, error)
}

// StatusError reports a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pvgis api returned status %d: %s", e.StatusCode, e.Body)
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// BackoffConfig controls retry behaviour for API requests.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type httpClient struct {
	baseURL string
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// CreateHTTPClient builds a Client talking to the public PVGIS API with
// retries and a circuit breaker. A nil http.Client selects a default with a
// generous timeout, seriescalc responses are large.
func CreateHTTPClient(client *http.Client) Client {
	return CreateHTTPClientForURL(APIURL, client)
}

func CreateHTTPClientForURL(baseURL string, client *http.Client) Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pvgis",
		MaxRequests: 2,
		Interval:    5 * time.Minute,
		Timeout:     10 * time.Minute,
	})
	return &httpClient{
		baseURL: baseURL,
		client:  client,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 2 * time.Second,
			MaxInterval:     30 * time.Second,
		},
		circuit: cb,
	}
}

func (c *httpClient) FetchSeries(ctx context.Context, params ArrayParams) (*Series, error) {
	values := url.Values{}
	values.Set("lat", formatFloat(params.Latitude))
	values.Set("lon", formatFloat(params.Longitude))
	values.Set("outputformat", "json")
	values.Set("pvcalculation", "1")
	values.Set("peakpower", formatFloat(params.PeakPowerKWp))
	values.Set("loss", formatFloat(params.Loss))
	values.Set("angle", formatFloat(params.Angle))
	values.Set("aspect", formatFloat(params.Aspect))
	values.Set("mountingplace", params.MountingPlace)
	values.Set("pvtechchoice", PVTechAPIValue(params.PVTech))

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	body, err := c.doWithResilience(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	return ParseSeries(body)
}

func (c *httpClient) doWithResilience(ctx context.Context, reqURL string) ([]byte, error) {
	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if reqErr != nil {
				return nil, reqErr
			}
			resp, execErr := c.client.Do(req)
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
				return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
			}
			return data, nil
		})

		if err == nil {
			return result.([]byte), nil
		}

		// Client-side API errors won't heal with a retry.
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, statusErr
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= c.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
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

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
