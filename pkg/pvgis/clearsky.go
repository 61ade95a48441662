package pvgis

import "math"

// ClearSkyIrradiance models the global horizontal irradiance in W/m² under a
// cloudless sky for a given sun elevation in degrees. It uses the Haurwitz
// model corrected for the earth-sun distance over the year.
func ClearSkyIrradiance(sunHeightDeg float64, dayOfYear int) float64 {
	if sunHeightDeg <= 0 {
		return 0
	}
	sinH := math.Sin(sunHeightDeg * math.Pi / 180)
	haurwitz := 1098 * sinH * math.Exp(-0.057/sinH)
	eccentricity := 1 + 0.033*math.Cos(2*math.Pi*float64(dayOfYear)/365)
	return haurwitz * eccentricity
}
