package pvgis

import (
	"context"
	"math"
)

func CreateTestClient() (Client, error) {
	return TestClient{}, nil
}

// TestClient serves a synthetic typical year without touching the network.
// Production follows a parabolic daytime curve peaking at noon, scaled by the
// requested peak power.
type TestClient struct {
	// FailFetch makes FetchSeries return this error instead of data.
	FailFetch error
}

func (c TestClient) FetchSeries(ctx context.Context, params ArrayParams) (*Series, error) {
	if c.FailFetch != nil {
		return nil, c.FailFetch
	}

	power := map[HourKey]float64{}
	irradiance := map[HourKey]float64{}
	sunHeight := map[HourKey]float64{}

	peakWatt := params.PeakPowerKWp * 1000 * 0.8
	if peakWatt <= 0 {
		peakWatt = 4000
	}

	for month := 1; month <= 12; month++ {
		for day := 1; day <= 28; day++ {
			for hour := 6; hour <= 18; hour++ {
				shape := 1 - math.Pow(float64(hour-12)/6, 2)
				key := HourKey{month, day, hour}
				power[key] = peakWatt * shape
				irradiance[key] = 700 * shape
				sunHeight[key] = 50 * shape
			}
		}
	}

	return NewSeries(power, irradiance, sunHeight), nil
}
