package pvgis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeries(t *testing.T) {
	require := require.New(t)

	data := []byte(`{"outputs":{"hourly":[
		{"time":"20200101:1210","P":1500.0,"G(i)":400.0,"H_sun":15.0},
		{"time":"20210101:1210","P":500.0,"G(i)":200.0,"H_sun":15.0},
		{"time":"20200101:1310","P":1200.0},
		{"time":"garbage","P":100.0},
		{"time":"20200102:1210"}
	]}}`)

	series, err := ParseSeries(data)
	require.NoError(err)

	// two years fold into a pairwise average
	assert.Equal(t, 1000.0, series.Power(1, 1, 12))
	assert.Equal(t, 1200.0, series.Power(1, 1, 13))

	irr, ok := series.Irradiance(1, 1, 12)
	require.True(ok)
	assert.Equal(t, 300.0, irr)

	// malformed items are skipped
	assert.Equal(t, 0.0, series.Power(1, 2, 12))
	assert.Equal(t, 2, series.Len())
}

func TestParseSeriesBadFormat(t *testing.T) {
	_, err := ParseSeries([]byte(`{"inputs":{}}`))
	assert.Error(t, err)

	_, err = ParseSeries([]byte(`not json`))
	assert.Error(t, err)
}

func TestPowerMissingHourIsZero(t *testing.T) {
	series := NewSeries(map[HourKey]float64{{6, 15, 12}: 3000}, nil, nil)
	assert.Equal(t, 3000.0, series.Power(6, 15, 12))
	assert.Equal(t, 0.0, series.Power(6, 15, 3))
}

func TestClearSkyIrradiance(t *testing.T) {
	irrLow := ClearSkyIrradiance(10, 1)
	irrMid := ClearSkyIrradiance(45, 180)
	irrHigh := ClearSkyIrradiance(90, 180)

	assert.Less(t, irrLow, irrMid)
	assert.Less(t, irrMid, irrHigh)
	assert.Greater(t, irrLow, 0.0)
	assert.Less(t, irrLow, 200.0)
	assert.Greater(t, irrMid, 500.0)
	assert.Less(t, irrMid, 800.0)
	assert.Greater(t, irrHigh, 900.0)
	assert.Less(t, irrHigh, 1100.0)

	assert.Equal(t, 0.0, ClearSkyIrradiance(-10, 1))
}

func TestClearSkyPowerScalesAboveTypical(t *testing.T) {
	series := NewSeries(
		map[HourKey]float64{{1, 1, 12}: 5000},
		map[HourKey]float64{{1, 1, 12}: 500},
		map[HourKey]float64{{1, 1, 12}: 50},
	)

	clearSky := series.ClearSkyPower(1, 1, 12)
	assert.Greater(t, clearSky, 5000.0)

	ratio := clearSky / 5000.0
	assert.GreaterOrEqual(t, ratio, 1.2)
	assert.LessOrEqual(t, ratio, 1.8)
}

func TestClearSkyPowerFallback(t *testing.T) {
	series := NewSeries(map[HourKey]float64{{1, 1, 12}: 5000}, nil, nil)
	assert.Equal(t, 5000.0, series.ClearSkyPower(1, 1, 12))
}

func TestFetchSeries(t *testing.T) {
	require := require.New(t)

	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		fmt.Fprint(w, `{"outputs":{"hourly":[{"time":"20200615:1210","P":2500.0}]}}`)
	}))
	defer server.Close()

	client := CreateHTTPClientForURL(server.URL, server.Client())
	series, err := client.FetchSeries(context.Background(), ArrayParams{
		Latitude:      48.2,
		Longitude:     16.3,
		PeakPowerKWp:  5,
		Loss:          14,
		Angle:         35,
		Aspect:        0,
		MountingPlace: MountingPlaceFree,
		PVTech:        "crystsi",
	})
	require.NoError(err)

	assert.Equal(t, 2500.0, series.Power(6, 15, 12))
	assert.Equal(t, "48.2", gotQuery["lat"])
	assert.Equal(t, "1", gotQuery["pvcalculation"])
	assert.Equal(t, "json", gotQuery["outputformat"])
	assert.Equal(t, "crystSi", gotQuery["pvtechchoice"])
	assert.Equal(t, "free", gotQuery["mountingplace"])
}

func TestFetchSeriesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"latitude out of range"}`)
	}))
	defer server.Close()

	client := CreateHTTPClientForURL(server.URL, server.Client())
	_, err := client.FetchSeries(context.Background(), ArrayParams{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestPVTechAPIValue(t *testing.T) {
	assert.Equal(t, "crystSi", PVTechAPIValue("crystsi"))
	assert.Equal(t, "CIS", PVTechAPIValue("cis"))
	assert.Equal(t, "CdTe", PVTechAPIValue("cdte"))
	assert.Equal(t, "Unknown", PVTechAPIValue("unknown"))
	assert.Equal(t, "other", PVTechAPIValue("other"))
}
