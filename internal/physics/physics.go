package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	R           = 287.058  // Specific gas constant for dry air (J/(kg·K))
	G           = 9.80665  // Standard gravity (m/s^2)
	T0          = 288.15   // Standard Sea Level Temperature (K)
	P0          = 1013.25  // Standard Sea Level Pressure (hPa)
	L           = 0.0065   // Temperature Lapse Rate (K/m) in Troposphere
	ZeroCelsius = 273.15   // 0°C in Kelvin
	KnotsToMs   = 0.514444 // Conversion factor from Knots to m/s
	MsToKnots   = 1.94384  // Conversion factor from m/s to Knots
	FeetToM     = 0.3048

	// ISA Layer Boundaries
	TropopauseAltM    = 11000.0 // 11 km
	StratosphereTempK = 216.65  // Constant temperature in Stratosphere
	TropopausePress   = 226.32  // Pressure at Tropopause (hPa)
)

// ------------------------------------------------------------------------------------------------
// ATMOSPHERE
// ------------------------------------------------------------------------------------------------

// AltitudeToPressure converts pressure altitude in feet to pressure in hPa
// Uses Standard Atmosphere model, supporting Troposphere and Stratosphere (up to 20km approx)
func AltitudeToPressure(altFt float64) float64 {
	altM := altFt * FeetToM
	if altM < 0 {
		altM = 0
	}

	if altM <= TropopauseAltM {
		// P = P0 * (1 - L*h/T0)^(g/RL)
		exponent := G / (R * L)
		base := 1 - (L * altM / T0)
		return P0 * math.Pow(base, exponent)
	}

	// P = P_trop * exp( -g*(h - h_trop) / (R * T_strat) )
	relAlt := altM - TropopauseAltM
	exponent := -(G * relAlt) / (R * StratosphereTempK)
	return TropopausePress * math.Exp(exponent)
}

// ISATemperature returns the standard atmosphere temperature in Celsius at a pressure altitude in feet
func ISATemperature(altFt float64) float64 {
	altM := altFt * FeetToM
	if altM < 0 {
		altM = 0
	}
	tempK := T0 - L*altM
	if altM > TropopauseAltM {
		tempK = StratosphereTempK
	}
	return tempK - ZeroCelsius
}

// AirDensity returns dry air density (kg/m^3) from pressure (hPa) and temperature (Celsius)
// using the ideal gas law rho = P / (R * T)
func AirDensity(pressureHPa, tempCelsius float64) float64 {
	tempK := tempCelsius + ZeroCelsius
	if tempK <= 0 || pressureHPa <= 0 {
		return 0
	}
	return pressureHPa * 100.0 / (R * tempK)
}

// ISADensity returns the standard atmosphere density at a pressure altitude in feet
func ISADensity(altFt float64) float64 {
	return AirDensity(AltitudeToPressure(altFt), ISATemperature(altFt))
}

// ------------------------------------------------------------------------------------------------
// NAVIGATION PHYSICS
// ------------------------------------------------------------------------------------------------

// Vector2D represents a 2D vector
type Vector2D struct {
	X float64 // East component
	Y float64 // North component
}

// HeadingToVector converts a heading (degrees) and magnitude to X/Y components
func HeadingToVector(headingDeg float64, magnitude float64) Vector2D {
	rad := CompassToAxis(headingDeg)
	return Vector2D{
		X: magnitude * math.Cos(rad),
		Y: magnitude * math.Sin(rad),
	}
}

// CompassToAxis converts a compass heading (degrees, 0 = north, clockwise) to a math angle
// in radians measured counter-clockwise from the east axis
func CompassToAxis(headingDeg float64) float64 {
	return (90 - headingDeg) * math.Pi / 180
}

// WindFromDirection converts a meteorological wind (direction it blows FROM, degrees,
// speed in knots) into the east/north components of the air mass motion in m/s
func WindFromDirection(fromDeg float64, speedKnots float64) Vector2D {
	// Air moves towards the reciprocal of the reported direction
	return HeadingToVector(fromDeg+180, speedKnots*KnotsToMs)
}

// NormalizeHeading wraps a heading into [0, 360)
func NormalizeHeading(headingDeg float64) float64 {
	h := math.Mod(headingDeg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// CalculateMagneticVariation calculates the magnetic declination for a given position and time
// Returns declination in degrees (+East, -West)
func CalculateMagneticVariation(lat, lon, altFt float64, date time.Time) float64 {
	altM := altFt * FeetToM

	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D()
}

// MagneticToTrue converts a magnetic heading to a true heading given the declination (+East)
func MagneticToTrue(magneticDeg, declinationDeg float64) float64 {
	return NormalizeHeading(magneticDeg + declinationDeg)
}
