package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tkrajina/gpxgo/gpx"

	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/track"
)

var ErrUnsupportedFormat = errors.New("unsupported activity format")

// --- GPX Parsing & Processing ---

func parseGpx(filePath string) ([]track.RawPoint, error) {
	gpxFile, err := gpx.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file: %w", err)
	}

	var points []track.RawPoint
	for _, trk := range gpxFile.Tracks {
		for _, segment := range trk.Segments {
			for _, p := range segment.Points {
				points = append(points, gpxPoint(p))
			}
		}
	}
	// Planned routes carry no track, only route points.
	if len(points) == 0 {
		for _, rte := range gpxFile.Routes {
			for _, p := range rte.Points {
				points = append(points, gpxPoint(p))
			}
		}
	}
	return points, nil
}

func gpxPoint(p gpx.GPXPoint) track.RawPoint {
	rp := track.RawPoint{Lat: p.Latitude, Lon: p.Longitude, Time: p.Timestamp}
	if p.Elevation.NotNull() {
		rp.Elevation = p.Elevation.Value()
		rp.HasElevation = true
	}
	if hr, ok := findHeartRate(p.Extensions.Nodes); ok {
		rp.HeartRate = hr
	}
	return rp
}

// findHeartRate looks for an <hr> element at any depth, which covers both
// gpxtpx:TrackPointExtension and bare extensions.
func findHeartRate(nodes []gpx.ExtensionNode) (float64, bool) {
	for _, n := range nodes {
		if strings.EqualFold(n.XMLName.Local, "hr") {
			hr, err := strconv.ParseFloat(strings.TrimSpace(n.Data), 64)
			if err == nil && hr > 0 {
				return hr, true
			}
		}
		if hr, ok := findHeartRate(n.Nodes); ok {
			return hr, true
		}
	}
	return 0, false
}

// fillElevationGaps copies the first known elevation backwards and the last
// known elevation forwards over points that have none.
func fillElevationGaps(points []track.RawPoint) {
	firstEleIdx := -1
	for i, p := range points {
		if p.HasElevation {
			firstEleIdx = i
			break
		}
	}
	if firstEleIdx == -1 {
		return
	}

	for i := 0; i < firstEleIdx; i++ {
		points[i].Elevation = points[firstEleIdx].Elevation
		points[i].HasElevation = true
	}

	lastEle := points[firstEleIdx].Elevation
	for i := firstEleIdx; i < len(points); i++ {
		if points[i].HasElevation {
			lastEle = points[i].Elevation
		} else {
			points[i].Elevation = lastEle
			points[i].HasElevation = true
		}
	}
}

// clampElevationSteps drops barometric spikes: a jump larger than maxStep
// meters keeps the previous elevation.
func clampElevationSteps(points []track.RawPoint, maxStep float64) int {
	if maxStep <= 0 {
		return 0
	}
	clamped := 0
	for i := 1; i < len(points); i++ {
		if !points[i].HasElevation || !points[i-1].HasElevation {
			continue
		}
		if math.Abs(points[i].Elevation-points[i-1].Elevation) > maxStep {
			points[i].Elevation = points[i-1].Elevation
			clamped++
		}
	}
	return clamped
}

// loadActivity reads one input file and builds its track.
func loadActivity(in activityInput, maxEleStep float64, log logrus.FieldLogger) (*track.Track, error) {
	var (
		raw []track.RawPoint
		err error
	)
	switch in.Kind {
	case inputGpx:
		raw, err = parseGpx(in.Path)
	case inputFit:
		raw, err = parseFit(in.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, in.Kind)
	}
	if err != nil {
		return nil, err
	}

	fillElevationGaps(raw)
	if n := clampElevationSteps(raw, maxEleStep); n > 0 {
		log.WithFields(logrus.Fields{"file": in.Path, "points": n}).Debug("Clamped elevation spikes")
	}

	opts := track.DefaultOptions()
	opts.Log = log
	t, err := track.Build(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build track from %s: %w", in.Path, err)
	}
	metrics.PointsLoaded.WithLabelValues(string(in.Kind)).Add(float64(t.Len()))

	stats := t.Stats()
	log.WithFields(logrus.Fields{
		"file":     in.Path,
		"points":   t.Len(),
		"distance": fmt.Sprintf("%.2fkm", stats.TotalDistance),
		"duration": stats.TotalDuration,
	}).Info("Loaded activity")
	return t, nil
}

// parseCutBoundary resolves "120s" or "2.5km" to a point index. An empty
// boundary resolves to def.
func parseCutBoundary(boundary string, t *track.Track, def int) (int, error) {
	boundary = strings.TrimSpace(boundary)
	if boundary == "" {
		return def, nil
	}
	if strings.HasSuffix(boundary, "km") {
		km, err := strconv.ParseFloat(strings.TrimSuffix(boundary, "km"), 64)
		if err != nil || km < 0 {
			return 0, fmt.Errorf("invalid distance boundary %q", boundary)
		}
		return t.IndexAtDistance(km), nil
	}
	if strings.HasSuffix(boundary, "s") {
		seconds, err := strconv.ParseFloat(strings.TrimSuffix(boundary, "s"), 64)
		if err != nil || seconds < 0 {
			return 0, fmt.Errorf("invalid time boundary %q", boundary)
		}
		return t.IndexAtOffset(time.Duration(seconds * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid cut boundary %q: want a number followed by s or km", boundary)
}

// cutTrack keeps points in [from, to). An empty cut keeps the whole track.
func cutTrack(t *track.Track, from, to string, log logrus.FieldLogger) (*track.Track, error) {
	if from == "" && to == "" {
		return t, nil
	}
	fromIdx, err := parseCutBoundary(from, t, 0)
	if err != nil {
		return nil, err
	}
	toIdx, err := parseCutBoundary(to, t, t.Len())
	if err != nil {
		return nil, err
	}
	if fromIdx >= toIdx {
		log.WithFields(logrus.Fields{"from": from, "to": to}).Warn("Cut range is empty, keeping the whole track")
		return t, nil
	}

	opts := track.DefaultOptions()
	opts.Log = log
	cut, err := t.Slice(fromIdx, toIdx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to cut track: %w", err)
	}
	log.WithFields(logrus.Fields{"from": fromIdx, "to": toIdx, "points": cut.Len()}).Info("Cut track")
	return cut, nil
}
