package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/units"
)

var (
	backgroundColor = color.RGBA{R: 230, G: 228, B: 224, A: 255}
	markerColor     = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	defaultTrail    = color.RGBA{R: 252, G: 76, B: 2, A: 255}
)

type renderer struct {
	store          *TileStore
	width, height  int
	pathWidth      float64
	indicatorColor color.Color
	units          units.System
	totalDistance  float64
	font           *truetype.Font
	log            logrus.FieldLogger
}

func drawSpeedIcon(dc *gg.Context, x, y, size, lineWidth float64) {
	dc.Push()
	dc.Translate(x, y)
	dc.SetLineWidth(lineWidth)

	startAngle := gg.Radians(165)
	endAngle := gg.Radians(375)
	dc.DrawArc(0, 0, size/2, startAngle, endAngle)
	dc.Stroke()

	needleAngle := gg.Radians(210)
	dc.MoveTo(0, 0)
	dc.LineTo(math.Cos(needleAngle)*size/2.2, math.Sin(needleAngle)*size/2.2)
	dc.Stroke()
	dc.Pop()
}

func drawSlopeIcon(dc *gg.Context, x, y, size, lineWidth float64) {
	dc.Push()
	dc.Translate(x, y)
	dc.SetLineWidth(lineWidth)
	angle := gg.Radians(30)
	legX := size
	legY := size * math.Tan(angle)
	dc.MoveTo(legX, legY/2)
	dc.LineTo(0, legY/2)
	dc.LineTo(legX, -legY/2)
	dc.Stroke()
	dc.Pop()
}

func drawHeartIcon(dc *gg.Context, x, y, size, lineWidth float64) {
	dc.Push()
	dc.Translate(x, y)
	dc.SetLineWidth(lineWidth)
	r := size / 4
	dc.DrawArc(-r, -r/2, r, gg.Radians(135), gg.Radians(360))
	dc.DrawArc(r, -r/2, r, gg.Radians(180), gg.Radians(405))
	dc.LineTo(0, size/2)
	dc.ClosePath()
	dc.Stroke()
	dc.Pop()
}

// renderFrame draws the map as the camera in snap sees it, then the trail,
// the marker and the indicators.
func (r *renderer) renderFrame(ctx context.Context, snap frameSnapshot) image.Image {
	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(backgroundColor)
	dc.Clear()

	cam := snap.Camera
	tileZoom, residual := geo.SplitZoom(cam.Zoom)
	ts := float64(r.store.TileSize())
	toWorld := func(p orb.Point) (float64, float64) {
		x, y := geo.Deg2Num(p.Lat(), p.Lon(), tileZoom)
		return x * ts, y * ts
	}
	cx, cy := toWorld(cam.Center)

	// --- Map Rendering Setup ---
	dc.Push()
	dc.Translate(float64(r.width)/2, float64(r.height)/2)
	cosPitch := math.Max(math.Cos(gg.Radians(cam.Pitch)), minPitchCos)
	dc.Scale(1/residual, cosPitch/residual)
	dc.Rotate(-gg.Radians(cam.Bearing))
	dc.Translate(-cx, -cy)

	// --- Render Map Image ---
	for _, t := range tilesForView(cam.Center, cam.Zoom, cam.Pitch, r.width, r.height, r.store.TileSize()) {
		img, ok := r.store.Cached(t)
		if !ok {
			var err error
			img, err = r.store.Get(ctx, t)
			if err != nil {
				r.log.WithError(err).Debug("could not get tile image")
				continue
			}
		}
		dc.DrawImage(img, t.X*int(ts), t.Y*int(ts))
	}

	// --- Trail ---
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	dc.SetLineWidth(r.pathWidth * 0.75)
	dc.SetDash(r.pathWidth*2, r.pathWidth*1.5)
	r.drawLines(dc, snap.Geometry[surface.SourceTransport], toWorld)
	dc.SetDash()
	dc.SetLineWidth(r.pathWidth)
	r.drawLines(dc, snap.Geometry[surface.SourceTrail], toWorld)

	// Marker position is taken in screen space so it stays round.
	var markerX, markerY float64
	marker := markerProps(snap.Geometry[surface.SourceMarker])
	if marker != nil {
		markerX, markerY = dc.TransformPoint(toWorld(marker.coord))
	}
	dc.Pop()

	// --- Draw Marker ---
	if marker != nil {
		dc.SetColor(markerColor)
		dc.DrawPoint(markerX, markerY, 8)
		dc.Fill()
		dc.SetColor(color.White)
		dc.SetLineWidth(2)
		dc.DrawPoint(markerX, markerY, 8)
		dc.Stroke()
		r.drawIndicators(dc, marker)
	}

	return dc.Image()
}

func (r *renderer) drawLines(dc *gg.Context, fc *geojson.FeatureCollection, toWorld func(orb.Point) (float64, float64)) {
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		ls, ok := f.Geometry.(orb.LineString)
		if !ok || len(ls) < 2 {
			continue
		}
		c := color.Color(defaultTrail)
		if hex, ok := f.Properties["color"].(string); ok {
			if parsed, err := parseHexColor(hex); err == nil {
				c = parsed
			}
		}
		dc.SetColor(c)
		dc.MoveTo(toWorld(ls[0]))
		for _, p := range ls[1:] {
			dc.LineTo(toWorld(p))
		}
		dc.Stroke()
	}
}

type markerInfo struct {
	coord     orb.Point
	distance  float64
	elevation float64
	speed     float64
	heartRate float64
}

func markerProps(fc *geojson.FeatureCollection) *markerInfo {
	if fc == nil || len(fc.Features) == 0 {
		return nil
	}
	f := fc.Features[0]
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		return nil
	}
	return &markerInfo{
		coord:     p,
		distance:  propFloat(f.Properties, "distance"),
		elevation: propFloat(f.Properties, "elevation"),
		speed:     propFloat(f.Properties, "speed"),
		heartRate: propFloat(f.Properties, "heartRate"),
	}
}

func propFloat(props geojson.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// --- Indicators ---

func (r *renderer) drawIndicators(dc *gg.Context, m *markerInfo) {
	widgetWidth := math.Min(float64(r.width)/3, 600)
	valueFontSize := widgetWidth / 12.0
	unitFontSize := valueFontSize / 2.0
	iconSize := widgetWidth / 14.0
	iconLineWidth := widgetWidth / 200.0
	margin := float64(r.height) / 30

	valueFace := truetype.NewFace(r.font, &truetype.Options{Size: valueFontSize})
	unitFace := truetype.NewFace(r.font, &truetype.Options{Size: unitFontSize})

	barHeight := unitFontSize * 1.4
	row2Y := float64(r.height) - margin - barHeight
	row1Y := row2Y - unitFontSize*1.2
	blockWidth := widgetWidth / 3.0
	iconY := row1Y - 1.15*valueFontSize

	// Translucent backdrop
	dc.SetColor(color.RGBA{R: 0, G: 0, B: 0, A: 110})
	dc.DrawRoundedRectangle(margin/2, row1Y-valueFontSize*2.2, widgetWidth+margin, float64(r.height)-(row1Y-valueFontSize*2.2)-margin/2, margin/3)
	dc.Fill()

	dc.SetColor(r.indicatorColor)

	speedValue, speedUnit := splitValue(r.units.FormatSpeed(m.speed))
	drawSpeedIcon(dc, margin+iconSize/2, iconY, iconSize, iconLineWidth)
	drawValue(dc, speedValue, " "+speedUnit, margin+blockWidth, row1Y, valueFace, unitFace)

	eleValue, eleUnit := splitValue(r.units.FormatElevation(m.elevation))
	drawSlopeIcon(dc, margin+blockWidth+iconSize/2, iconY, iconSize, iconLineWidth)
	drawValue(dc, eleValue, " "+eleUnit, margin+2*blockWidth, row1Y, valueFace, unitFace)

	hrValue, hrUnit := splitValue(units.FormatHeartRate(m.heartRate))
	drawHeartIcon(dc, margin+2*blockWidth+iconSize/2, iconY, iconSize, iconLineWidth)
	drawValue(dc, hrValue, " "+hrUnit, margin+3*blockWidth, row1Y, valueFace, unitFace)

	// Distance Bar
	progress := 0.0
	if r.totalDistance > 0 {
		progress = geo.Clamp(m.distance/r.totalDistance, 0, 1)
	}
	dc.SetColor(color.RGBA{R: 80, G: 80, B: 80, A: 255})
	dc.DrawRectangle(margin, row2Y, widgetWidth, barHeight)
	dc.Fill()
	dc.SetColor(color.RGBA{R: 100, G: 180, B: 255, A: 255})
	dc.DrawRectangle(margin, row2Y, widgetWidth*progress, barHeight)
	dc.Fill()
	distText := fmt.Sprintf("%s / %s", r.units.FormatDistance(m.distance), r.units.FormatDistance(r.totalDistance))
	dc.SetColor(r.indicatorColor)
	dc.SetFontFace(unitFace)
	dc.DrawStringAnchored(distText, margin+widgetWidth/2, row2Y+barHeight/2, 0.5, 0.5)
}

// drawValue right-aligns value and unit so they end at right.
func drawValue(dc *gg.Context, value, unit string, right, y float64, valueFace, unitFace font.Face) {
	dc.SetFontFace(valueFace)
	valueWidth, _ := dc.MeasureString(value)
	dc.SetFontFace(unitFace)
	unitWidth, _ := dc.MeasureString(unit)
	startX := right - (valueWidth + unitWidth)
	dc.SetFontFace(valueFace)
	dc.DrawString(value, startX, y)
	dc.SetFontFace(unitFace)
	dc.DrawString(unit, startX+valueWidth, y)
}

// splitValue splits "12 km/h" into "12" and "km/h".
func splitValue(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
