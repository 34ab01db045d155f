// Package geo provides geolocation utilities for coarse spatial indexing
// and privacy-preserving location handling of item reports.
package geo

import "strings"

// DefaultPrecision is the geohash precision stored on item reports.
// A precision of 6 characters provides approximately ±0.61 km accuracy,
// which is enough for neighborhood-level candidate prefiltering without
// pinpointing exact addresses.
const DefaultPrecision = 6

// validGeohashChars is a lookup map for valid base32 characters used in geohashes.
// Geohash uses a custom base32 alphabet excluding 'a', 'i', 'l', and 'o'.
var validGeohashChars = map[rune]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
	'b': true, 'c': true, 'd': true, 'e': true, 'f': true,
	'g': true, 'h': true, 'j': true, 'k': true, 'm': true,
	'n': true, 'p': true, 'q': true, 'r': true, 's': true,
	't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
}

// base32 is the geohash base32 alphabet.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// base32Index maps a base32 character back to its 5-bit value.
var base32Index = func() map[byte]uint {
	m := make(map[byte]uint, len(base32))
	for i := 0; i < len(base32); i++ {
		m[base32[i]] = uint(i)
	}
	return m
}()

// Encode encodes latitude and longitude into a geohash string with the specified precision.
// Uses the standard geohash algorithm with base32 encoding.
//
// Parameters:
//   - lat: latitude in degrees (-90 to 90)
//   - lng: longitude in degrees (-180 to 180)
//   - precision: desired geohash length (typically 5-12 characters)
//
// Returns:
//   - Geohash string of the specified length
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			// Longitude
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= (1 << (4 - bits))
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			// Latitude
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// Decode decodes a geohash string into the center point of its cell along
// with the half-width of the cell in degrees for each axis.
//
// Returns:
//   - lat, lng: center of the cell
//   - latErr, lngErr: half-height and half-width of the cell in degrees
//   - ok: false if the input is empty or contains invalid characters
func Decode(geohash string) (lat, lng, latErr, lngErr float64, ok bool) {
	if geohash == "" {
		return 0, 0, 0, 0, false
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	even := true
	for i := 0; i < len(geohash); i++ {
		cd, valid := base32Index[geohash[i]]
		if !valid {
			return 0, 0, 0, 0, false
		}
		for bit := 4; bit >= 0; bit-- {
			set := (cd>>uint(bit))&1 == 1
			if even {
				mid := (lngRange[0] + lngRange[1]) / 2
				if set {
					lngRange[0] = mid
				} else {
					lngRange[1] = mid
				}
			} else {
				mid := (latRange[0] + latRange[1]) / 2
				if set {
					latRange[0] = mid
				} else {
					latRange[1] = mid
				}
			}
			even = !even
		}
	}

	lat = (latRange[0] + latRange[1]) / 2
	lng = (lngRange[0] + lngRange[1]) / 2
	latErr = (latRange[1] - latRange[0]) / 2
	lngErr = (lngRange[1] - lngRange[0]) / 2
	return lat, lng, latErr, lngErr, true
}

// Neighbors returns the given geohash cell plus its eight surrounding cells
// at the same precision, deduplicated. Used to prefilter match candidates to
// a spatial neighborhood without missing items just across a cell boundary.
//
// Returns nil if the input is empty or not a valid geohash.
func Neighbors(geohash string) []string {
	lower := strings.ToLower(geohash)
	lat, lng, latErr, lngErr, ok := Decode(lower)
	if !ok {
		return nil
	}

	precision := len(lower)
	cells := make([]string, 0, 9)
	seen := make(map[string]bool, 9)

	for _, dy := range []float64{-1, 0, 1} {
		for _, dx := range []float64{-1, 0, 1} {
			nLat := lat + dy*2*latErr
			nLng := lng + dx*2*lngErr

			// Latitude is clamped at the poles; longitude wraps at the antimeridian.
			if nLat > 90 || nLat < -90 {
				continue
			}
			if nLng > 180 {
				nLng -= 360
			} else if nLng < -180 {
				nLng += 360
			}

			cell := Encode(nLat, nLng, precision)
			if !seen[cell] {
				seen[cell] = true
				cells = append(cells, cell)
			}
		}
	}

	return cells
}

// RoundGeohash truncates a geohash string to the specified precision for privacy.
// It ensures coarse location display by limiting the geohash resolution.
//
// Parameters:
//   - input: the geohash string to round
//   - precision: the desired length (typically 5-6 characters)
//
// Returns:
//   - The truncated geohash if valid
//   - Empty string if input is empty, contains invalid characters, or precision is less than 1
//   - The input normalized to lowercase if it is shorter than precision
func RoundGeohash(input string, precision int) string {
	if input == "" {
		return ""
	}

	if precision < 1 {
		return ""
	}

	// Convert to lowercase for consistent validation
	lower := strings.ToLower(input)

	// Validate that all characters are valid geohash characters
	for _, c := range lower {
		if !validGeohashChars[c] {
			return ""
		}
	}

	// If input is shorter than precision, return as is
	if len(lower) <= precision {
		return lower
	}

	// Truncate to precision
	return lower[:precision]
}
