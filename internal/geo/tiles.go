package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// MaxZoom is the deepest slippy-map zoom any camera or renderer asks for.
const MaxZoom = 20.0

// Deg2Num converts a coordinate into fractional slippy-map tile coordinates.
func Deg2Num(lat, lon float64, zoom int) (float64, float64) {
	latRad := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	xtile := (lon + 180) / 360 * n
	ytile := (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n
	return xtile, ytile
}

// SplitZoom splits a fractional zoom into the integer tile zoom to fetch and
// the residual scale to apply to those tiles (>= 1 shrinks, < 1 enlarges).
func SplitZoom(zoom float64) (tileZoom int, residualScale float64) {
	zoom = Clamp(zoom, 0, MaxZoom)
	tileZoom = int(math.Ceil(zoom))
	residualScale = math.Pow(2, float64(tileZoom)-zoom)
	return tileZoom, residualScale
}

// FitZoom returns the largest fractional zoom at which the bound fits into a
// viewport of width x height pixels with the given padding on every side.
func FitZoom(b orb.Bound, width, height, padding, tileSize int) float64 {
	w := float64(width - 2*padding)
	h := float64(height - 2*padding)
	if w <= 0 || h <= 0 || tileSize <= 0 {
		return 0
	}

	x1, y1 := Deg2Num(b.Max.Lat(), b.Min.Lon(), 0)
	x2, y2 := Deg2Num(b.Min.Lat(), b.Max.Lon(), 0)
	dx := math.Abs(x2-x1) * float64(tileSize)
	dy := math.Abs(y2-y1) * float64(tileSize)

	zoom := MaxZoom
	if dx > 0 {
		zoom = math.Min(zoom, math.Log2(w/dx))
	}
	if dy > 0 {
		zoom = math.Min(zoom, math.Log2(h/dy))
	}
	return Clamp(zoom, 0, MaxZoom)
}
