// Package units holds the unit conversions shared by drivers and the
// climatology client. The archive stores Fahrenheit, knots and inches.
package units

import (
	"fmt"
	"math"
)

func CToF(c float64) float64 {
	return c*9/5 + 32
}

func MphToKt(mph float64) float64 {
	return mph * 0.868976
}

// TenthsCToF converts GHCN temperature values (tenths of degrees C).
func TenthsCToF(v float64) float64 {
	return CToF(v / 10)
}

// TenthsMsToKt converts GHCN wind values (tenths of m/s).
func TenthsMsToKt(v float64) float64 {
	return v / 10 * 1.94384
}

// TenthsMmToIn converts GHCN precipitation values (tenths of mm).
func TenthsMmToIn(v float64) float64 {
	return v / 254
}

// DewpointFromTRH returns the dewpoint in C from temperature in C and
// relative humidity in percent (Magnus formula).
func DewpointFromTRH(t, rh float64) float64 {
	gamma := math.Log(rh/100) + (17.625*t)/(243.04+t)
	return 243.04 * gamma / (17.625 - gamma)
}

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// CompassToDegrees converts a 16-point compass direction to degrees.
func CompassToDegrees(dir string) (float64, error) {
	for i, p := range compassPoints {
		if p == dir {
			return 22.5 * float64(i), nil
		}
	}
	return 0, fmt.Errorf("unknown wind direction %q", dir)
}
