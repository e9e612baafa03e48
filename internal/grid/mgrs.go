package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	UTM "github.com/im7mortal/UTM"
)

const (
	bandLetters = "CDEFGHJKLMNPQRSTUVWX"
	rowLetters  = "ABCDEFGHJKLMNPQRSTUV"

	squareSize   = 100000.0  // 100 km grid square
	rowCycle     = 2000000.0 // row letters repeat every 2000 km of northing
	maxNorthing  = 10000000.0
	maxPrecision = 5

	// A grid square may straddle its latitude band edge by a fraction of a degree
	bandToleranceDeg = 1.0
)

var columnLetters = [3]string{"ABCDEFGH", "JKLMNPQR", "STUVWXYZ"}

// MGRS converts between Military Grid Reference System strings and UTM points.
// Lat/lon work is delegated to the UTM package; the 100 km square lettering is done here.
type MGRS struct {
	precision int
}

// NewMGRS creates a converter that emits references with the given number of digits
// per axis (5 = 1 m, 4 = 10 m, ... 1 = 10 km)
func NewMGRS(precision int) (*MGRS, error) {
	if precision < 1 || precision > maxPrecision {
		return nil, fmt.Errorf("invalid MGRS precision %d (must be 1-%d)", precision, maxPrecision)
	}
	return &MGRS{precision: precision}, nil
}

// ToProjected parses an MGRS reference such as "33TWN0000000000" or "33T WN 00000 00000"
func (m *MGRS) ToProjected(ref string) (Point, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(ref), ""))
	if s == "" {
		return Point{}, conversionErrorf(ref, "empty grid reference")
	}

	i := 0
	for i < len(s) && i < 2 && isDigit(s[i]) {
		i++
	}
	if i == 0 {
		return Point{}, conversionErrorf(ref, "missing zone number")
	}
	zone, _ := strconv.Atoi(s[:i])
	if zone < 1 || zone > 60 {
		return Point{}, conversionErrorf(ref, "zone number %d out of range", zone)
	}

	rest := s[i:]
	if len(rest) < 3 {
		return Point{}, conversionErrorf(ref, "missing latitude band or square identifier")
	}
	band, col, row := rest[0], rest[1], rest[2]
	if strings.IndexByte(bandLetters, band) < 0 {
		return Point{}, conversionErrorf(ref, "invalid latitude band %q", band)
	}

	digits := rest[3:]
	if len(digits)%2 != 0 || len(digits) > 2*maxPrecision {
		return Point{}, conversionErrorf(ref, "expected an even number of digits (at most %d), got %d", 2*maxPrecision, len(digits))
	}
	for j := 0; j < len(digits); j++ {
		if !isDigit(digits[j]) {
			return Point{}, conversionErrorf(ref, "unexpected character %q in numerical location", digits[j])
		}
	}
	p := len(digits) / 2
	scale := math.Pow10(maxPrecision - p)
	var e, n float64
	if p > 0 {
		ev, _ := strconv.Atoi(digits[:p])
		nv, _ := strconv.Atoi(digits[p:])
		e, n = float64(ev)*scale, float64(nv)*scale
	}

	set := squareSet(zone)
	colIdx := strings.IndexByte(columnLetters[(set-1)%3], col)
	if colIdx < 0 {
		return Point{}, conversionErrorf(ref, "column letter %q not valid in zone %d", col, zone)
	}
	rowIdx := strings.IndexByte(rowLetters, row)
	if rowIdx < 0 {
		return Point{}, conversionErrorf(ref, "invalid row letter %q", row)
	}
	if set%2 == 0 {
		rowIdx = (rowIdx - 5 + len(rowLetters)) % len(rowLetters)
	}

	easting := float64(colIdx+1)*squareSize + e
	northing, err := resolveNorthing(ref, zone, band, easting, float64(rowIdx)*squareSize+n)
	if err != nil {
		return Point{}, err
	}

	return Point{
		Easting:    easting,
		Northing:   northing,
		ZoneNumber: zone,
		ZoneLetter: string(band),
	}, nil
}

// ToGridReference formats a UTM point as an MGRS reference at the converter precision.
// The band letter is recomputed from the point's latitude.
func (m *MGRS) ToGridReference(p Point) (string, error) {
	lat, _, err := m.ToLatLon(p)
	if err != nil {
		return "", err
	}
	if lat < -80 || lat > 84 {
		return "", conversionErrorf(p.String(), "latitude %.4f outside the UTM/MGRS domain", lat)
	}

	set := squareSet(p.ZoneNumber)
	colIdx := int(math.Floor(p.Easting/squareSize)) - 1
	if colIdx < 0 || colIdx >= len(columnLetters[0]) {
		return "", conversionErrorf(p.String(), "easting %.0f outside the grid zone", p.Easting)
	}
	rowIdx := int(math.Floor(p.Northing/squareSize)) % len(rowLetters)
	if set%2 == 0 {
		rowIdx = (rowIdx + 5) % len(rowLetters)
	}

	scale := math.Pow10(maxPrecision - m.precision)
	e := int(math.Floor(math.Mod(p.Easting, squareSize) / scale))
	n := int(math.Floor(math.Mod(p.Northing, squareSize) / scale))

	return fmt.Sprintf("%02d%c%c%c%0*d%0*d",
		p.ZoneNumber,
		bandLetter(lat),
		columnLetters[(set-1)%3][colIdx],
		rowLetters[rowIdx],
		m.precision, e,
		m.precision, n,
	), nil
}

// ToLatLon returns the geodetic position of a UTM point in decimal degrees
func (m *MGRS) ToLatLon(p Point) (float64, float64, error) {
	if p.ZoneNumber < 1 || p.ZoneNumber > 60 {
		return 0, 0, conversionErrorf(p.String(), "zone number %d out of range", p.ZoneNumber)
	}
	if len(p.ZoneLetter) != 1 || strings.IndexByte(bandLetters, strings.ToUpper(p.ZoneLetter)[0]) < 0 {
		return 0, 0, conversionErrorf(p.String(), "invalid zone letter %q", p.ZoneLetter)
	}
	if math.IsNaN(p.Easting) || math.IsInf(p.Easting, 0) || math.IsNaN(p.Northing) || math.IsInf(p.Northing, 0) {
		return 0, 0, conversionErrorf(p.String(), "non-finite coordinates")
	}

	lat, lon, err := UTM.ToLatLon(p.Easting, p.Northing, p.ZoneNumber, strings.ToUpper(p.ZoneLetter))
	if err != nil {
		return 0, 0, conversionErrorf(p.String(), "%v", err)
	}
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return 0, 0, conversionErrorf(p.String(), "projection diverged")
	}
	return lat, lon, nil
}

// resolveNorthing picks the 2000 km cycle that places the square inside its latitude band
func resolveNorthing(ref string, zone int, band byte, easting, base float64) (float64, error) {
	minLat, maxLat := bandRange(band)

	best, bestDist := -1.0, math.Inf(1)
	for k := 0; ; k++ {
		n := base + float64(k)*rowCycle
		if n > maxNorthing {
			break
		}
		lat, _, err := UTM.ToLatLon(easting, n, zone, string(band))
		if err != nil || math.IsNaN(lat) {
			continue
		}

		dist := 0.0
		if lat < minLat {
			dist = minLat - lat
		} else if lat > maxLat {
			dist = lat - maxLat
		}
		if dist < bestDist {
			best, bestDist = n, dist
		}
	}

	if best < 0 || bestDist > bandToleranceDeg {
		return 0, conversionErrorf(ref, "grid square does not intersect latitude band %c", band)
	}
	return best, nil
}

// squareSet returns the 100 km lettering set (1-6) used by a zone
func squareSet(zone int) int {
	return (zone-1)%6 + 1
}

// bandLetter returns the MGRS latitude band for a latitude in [-80, 84]
func bandLetter(lat float64) byte {
	idx := int(math.Floor((lat + 80) / 8))
	if idx < 0 {
		idx = 0
	}
	// Band X covers 72-84N
	if idx >= len(bandLetters) {
		idx = len(bandLetters) - 1
	}
	return bandLetters[idx]
}

// bandRange returns the latitude limits of a band letter
func bandRange(band byte) (float64, float64) {
	idx := strings.IndexByte(bandLetters, band)
	minLat := -80 + 8*float64(idx)
	maxLat := minLat + 8
	if band == 'X' {
		maxLat = 84
	}
	return minLat, maxLat
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
