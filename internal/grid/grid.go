package grid

import (
	"errors"
	"fmt"
)

// ErrConversion is the target for errors.Is on every conversion failure
var ErrConversion = errors.New("coordinate conversion failed")

// Point is a planar UTM position tied to a projection zone
type Point struct {
	Easting    float64 `json:"easting"`
	Northing   float64 `json:"northing"`
	ZoneNumber int     `json:"zone_number"`
	ZoneLetter string  `json:"zone_letter"`
}

// Offset returns the point displaced by (dx, dy) metres in the same zone
func (p Point) Offset(dx, dy float64) Point {
	return Point{
		Easting:    p.Easting + dx,
		Northing:   p.Northing + dy,
		ZoneNumber: p.ZoneNumber,
		ZoneLetter: p.ZoneLetter,
	}
}

// String formats the point as "33T 500000 5200000"
func (p Point) String() string {
	return fmt.Sprintf("%d%s %.0f %.0f", p.ZoneNumber, p.ZoneLetter, p.Easting, p.Northing)
}

// ConversionError reports a malformed or out-of-domain coordinate
type ConversionError struct {
	Input  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %q: %s", e.Input, e.Reason)
}

// Is makes every ConversionError match ErrConversion
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func conversionErrorf(input, format string, args ...any) error {
	return &ConversionError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
