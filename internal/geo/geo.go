// Package geo holds the spherical-earth helpers shared by the track model,
// the camera controller and the renderers. Coordinates are orb.Point values,
// i.e. [lon, lat] in degrees.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadiusKm is the mean earth radius used by every distance computation.
// orb/geo's haversine uses the equatorial radius.
const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in kilometers.
func HaversineKm(p1, p2 orb.Point) float64 {
	lat1 := p1.Lat() * math.Pi / 180
	lon1 := p1.Lon() * math.Pi / 180
	lat2 := p2.Lat() * math.Pi / 180
	lon2 := p2.Lon() * math.Pi / 180

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Bearing returns the initial great-circle bearing from p1 to p2 in degrees,
// normalised to [0, 360).
func Bearing(p1, p2 orb.Point) float64 {
	return NormalizeBearing(orbgeo.Bearing(p1, p2))
}

// NormalizeBearing maps any angle in degrees into [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SignedDelta returns the shortest signed rotation from -> to in degrees,
// in the half-open interval (-180, 180].
func SignedDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Interpolate blends two points linearly in lon/lat space.
func Interpolate(p1, p2 orb.Point, ratio float64) orb.Point {
	return orb.Point{Lerp(p1.Lon(), p2.Lon(), ratio), Lerp(p1.Lat(), p2.Lat(), ratio)}
}

// GreatCircle returns n points (n >= 2) along the great circle from p1 to p2,
// both endpoints included.
func GreatCircle(p1, p2 orb.Point, n int) []orb.Point {
	if n < 2 {
		n = 2
	}
	lat1 := p1.Lat() * math.Pi / 180
	lon1 := p1.Lon() * math.Pi / 180
	lat2 := p2.Lat() * math.Pi / 180
	lon2 := p2.Lon() * math.Pi / 180

	d := HaversineKm(p1, p2) / EarthRadiusKm
	out := make([]orb.Point, n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		if d < 1e-12 {
			out[i] = Interpolate(p1, p2, f)
			continue
		}
		a := math.Sin((1-f)*d) / math.Sin(d)
		b := math.Sin(f*d) / math.Sin(d)
		x := a*math.Cos(lat1)*math.Cos(lon1) + b*math.Cos(lat2)*math.Cos(lon2)
		y := a*math.Cos(lat1)*math.Sin(lon1) + b*math.Cos(lat2)*math.Sin(lon2)
		z := a*math.Sin(lat1) + b*math.Sin(lat2)
		lat := math.Atan2(z, math.Sqrt(x*x+y*y))
		lon := math.Atan2(y, x)
		out[i] = orb.Point{lon * 180 / math.Pi, lat * 180 / math.Pi}
	}
	// keep the endpoints bit-exact
	out[0] = p1
	out[n-1] = p2
	return out
}

func Lerp(start, end, ratio float64) float64 {
	return start + ratio*(end-start)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidLatLon reports whether the coordinate lies inside the WGS84 ranges.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
