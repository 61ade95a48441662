package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func hour(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02T15:04", value, time.Local)
	require.NoError(t, err)
	return ts
}

func TestMergePrimaryWins(t *testing.T) {
	h0 := hour(t, "2024-01-01T10:00")
	h1 := hour(t, "2024-01-01T11:00")
	h2 := hour(t, "2024-01-01T12:00")

	primary := NewHourlyForecast()
	primary.CloudCover[h0] = 40
	primary.CloudCover[h1] = 50

	secondary := NewHourlyForecast()
	secondary.CloudCover[h1] = 90
	secondary.CloudCover[h2] = 80
	secondary.Temperature[h0] = -2

	merged := Merge(primary, secondary)

	assert.Equal(t, 40.0, merged.CloudCover[h0])
	assert.Equal(t, 50.0, merged.CloudCover[h1])
	assert.Equal(t, 80.0, merged.CloudCover[h2])
	// secondary fills variables the primary misses entirely
	assert.Equal(t, -2.0, merged.Temperature[h0])
	assert.Equal(t, h2, merged.Horizon())
}

func TestEmptyForecast(t *testing.T) {
	assert.True(t, NewHourlyForecast().Empty())

	f := NewHourlyForecast()
	f.Temperature[hour(t, "2024-01-01T10:00")] = 5
	assert.False(t, f.Empty())
}

func TestOpenMeteoForecast(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "temperature_2m,cloud_cover,precipitation,snowfall", r.URL.Query().Get("hourly"))
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		fmt.Fprint(w, `{"hourly":{
			"time":["2024-01-01T10:00","2024-01-01T11:00","garbage"],
			"temperature_2m":[1.5,-0.5,0],
			"cloud_cover":[120,-5,0],
			"precipitation":[0.4,0,0],
			"snowfall":[0.2,0,0]
		}}`)
	}))
	defer server.Close()

	provider := NewOpenMeteoProvider("openmeteo", server.URL, 48.2, 16.3, 7, server.Client(), zap.NewNop())
	forecast, err := provider.Forecast(context.Background())
	require.NoError(err)

	h0 := hour(t, "2024-01-01T10:00")
	h1 := hour(t, "2024-01-01T11:00")

	// cloud cover is clamped to 0..100
	assert.Equal(t, 100.0, forecast.CloudCover[h0])
	assert.Equal(t, 0.0, forecast.CloudCover[h1])
	assert.Equal(t, 1.5, forecast.Temperature[h0])
	assert.Equal(t, 0.4, forecast.Precipitation[h0])
	// snowfall cm converts to mm
	assert.Equal(t, 2.0, forecast.Snowfall[h0])
	// malformed hours are skipped
	assert.Len(t, forecast.Temperature, 2)
}

func TestOpenMeteoServerErrorRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"hourly":{"time":["2024-01-01T10:00"],"temperature_2m":[3.0],"cloud_cover":[10],"precipitation":[0],"snowfall":[0]}}`)
	}))
	defer server.Close()

	provider := NewOpenMeteoProvider("openmeteo", server.URL, 48.2, 16.3, 7, server.Client(), zap.NewNop())
	forecast, err := provider.Forecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 10.0, forecast.CloudCover[hour(t, "2024-01-01T10:00")])
}
