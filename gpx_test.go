package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_flyover_video/internal/config"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/track"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type gpxPt struct {
	lat, lon float64
	ele      string
	hr       string
	at       time.Duration
	noTime   bool
}

func gpxDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1" xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1">
` + body + `
</gpx>`
}

func gpxPoints(tag string, pts []gpxPt) string {
	var b strings.Builder
	for _, p := range pts {
		fmt.Fprintf(&b, `<%s lat="%f" lon="%f">`, tag, p.lat, p.lon)
		if p.ele != "" {
			fmt.Fprintf(&b, "<ele>%s</ele>", p.ele)
		}
		if !p.noTime {
			fmt.Fprintf(&b, "<time>%s</time>", t0.Add(p.at).Format(time.RFC3339))
		}
		if p.hr != "" {
			fmt.Fprintf(&b, "<extensions><gpxtpx:TrackPointExtension><gpxtpx:hr>%s</gpxtpx:hr></gpxtpx:TrackPointExtension></extensions>", p.hr)
		}
		fmt.Fprintf(&b, "</%s>\n", tag)
	}
	return b.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeTrackGpx writes n points 0.001° apart going north, 10s apart.
func writeTrackGpx(t *testing.T, lat0 float64, n int) string {
	t.Helper()
	pts := make([]gpxPt, n)
	for i := range pts {
		pts[i] = gpxPt{lat: lat0 + float64(i)*0.001, lon: 8, ele: "500", hr: "130", at: time.Duration(i) * 10 * time.Second}
	}
	return writeFile(t, "track.gpx", gpxDoc("<trk><trkseg>\n"+gpxPoints("trkpt", pts)+"</trkseg></trk>"))
}

func TestParseGpx(t *testing.T) {
	path := writeFile(t, "ride.gpx", gpxDoc("<trk><trkseg>\n"+gpxPoints("trkpt", []gpxPt{
		{lat: 46.0, lon: 8.0, hr: "120"},
		{lat: 46.001, lon: 8.0, ele: "512.5", hr: "125", at: 10 * time.Second},
		{lat: 46.002, lon: 8.0, at: 20 * time.Second},
	})+"</trkseg></trk>"))

	points, err := parseGpx(path)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.InDelta(t, 46.001, points[1].Lat, 1e-9)
	assert.True(t, points[1].HasElevation)
	assert.Equal(t, 512.5, points[1].Elevation)
	assert.False(t, points[0].HasElevation)
	assert.Equal(t, 120.0, points[0].HeartRate)
	assert.Equal(t, 125.0, points[1].HeartRate)
	assert.Zero(t, points[2].HeartRate)
	assert.True(t, t0.Add(10*time.Second).Equal(points[1].Time))
}

func TestParseGpxRouteFallback(t *testing.T) {
	path := writeFile(t, "route.gpx", gpxDoc("<rte>\n"+gpxPoints("rtept", []gpxPt{
		{lat: 46.0, lon: 8.0, noTime: true},
		{lat: 46.01, lon: 8.01, noTime: true},
	})+"</rte>"))

	points, err := parseGpx(path)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Time.IsZero())
}

func TestParseGpxInvalid(t *testing.T) {
	_, err := parseGpx(writeFile(t, "broken.gpx", "<gpx"))
	assert.Error(t, err)

	_, err = parseGpx(filepath.Join(t.TempDir(), "missing.gpx"))
	assert.Error(t, err)
}

func TestFillElevationGaps(t *testing.T) {
	points := []track.RawPoint{
		{},
		{Elevation: 100, HasElevation: true},
		{},
		{Elevation: 120, HasElevation: true},
		{},
	}
	fillElevationGaps(points)

	var got []float64
	for _, p := range points {
		assert.True(t, p.HasElevation)
		got = append(got, p.Elevation)
	}
	assert.Equal(t, []float64{100, 100, 100, 120, 120}, got)

	none := []track.RawPoint{{}, {}}
	fillElevationGaps(none)
	assert.False(t, none[0].HasElevation)
}

func TestClampElevationSteps(t *testing.T) {
	points := []track.RawPoint{
		{Elevation: 100, HasElevation: true},
		{Elevation: 102, HasElevation: true},
		{Elevation: 180, HasElevation: true},
		{Elevation: 103, HasElevation: true},
	}
	assert.Zero(t, clampElevationSteps(points, 0))

	assert.Equal(t, 1, clampElevationSteps(points, 3))
	assert.Equal(t, 102.0, points[2].Elevation)
	assert.Equal(t, 103.0, points[3].Elevation)
}

func loadTestTrack(t *testing.T, n int) *track.Track {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tr, err := loadActivity(activityInput{Kind: inputGpx, Path: writeTrackGpx(t, 46, n)}, 0, logger)
	require.NoError(t, err)
	return tr
}

func TestParseCutBoundary(t *testing.T) {
	tr := loadTestTrack(t, 11)

	tests := []struct {
		boundary string
		want     int
		wantErr  bool
	}{
		{boundary: "", want: 7},
		{boundary: "30s", want: 3},
		{boundary: "0s", want: 0},
		{boundary: "500s", want: 11},
		{boundary: "0.25km", want: 3},
		{boundary: "50km", want: 11},
		{boundary: "abc", wantErr: true},
		{boundary: "xkm", wantErr: true},
		{boundary: "-5s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.boundary, func(t *testing.T) {
			got, err := parseCutBoundary(tt.boundary, tr, 7)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCutTrack(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tr := loadTestTrack(t, 11)

	cut, err := cutTrack(tr, "20s", "60s", logger)
	require.NoError(t, err)
	assert.Equal(t, 4, cut.Len())
	assert.Zero(t, cut.Start().Distance)
	assert.InDelta(t, 46.002, cut.Start().Lat, 1e-9)

	whole, err := cutTrack(tr, "60s", "20s", logger)
	require.NoError(t, err)
	assert.Same(t, tr, whole)

	same, err := cutTrack(tr, "", "", logger)
	require.NoError(t, err)
	assert.Same(t, tr, same)

	_, err = cutTrack(tr, "soon", "", logger)
	assert.Error(t, err)
}

func TestLoadActivityUnsupported(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := loadActivity(activityInput{Kind: "tcx", Path: "x.tcx"}, 0, logger)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadActivityNoValidPoints(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := writeFile(t, "empty.gpx", gpxDoc("<trk><trkseg></trkseg></trk>"))

	_, err := loadActivity(activityInput{Kind: inputGpx, Path: path}, 0, logger)
	var perr *track.ParseError
	assert.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, track.ErrNoValidPoints)
}

func TestLoadJourney(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg, err := config.Load("")
	require.NoError(t, err)

	a := writeTrackGpx(t, 46, 5)
	b := writeTrackGpx(t, 47, 5)
	c := writeTrackGpx(t, 48, 5)

	args := &Arguments{
		Inputs:     []activityInput{{Kind: inputGpx, Path: a}, {Kind: inputGpx, Path: b}, {Kind: inputGpx, Path: c}},
		Transports: stringList{"train", "none"},
	}
	j, err := loadJourney(args, cfg, logger)
	require.NoError(t, err)

	var kinds []journey.Kind
	for _, leg := range j.Legs() {
		kinds = append(kinds, leg.Kind)
	}
	assert.Equal(t, []journey.Kind{journey.KindTrack, journey.KindTransport, journey.KindTrack, journey.KindTrack}, kinds)
	assert.Equal(t, journey.Train, j.Legs()[1].Mode)

	args.Transports = stringList{"train"}
	_, err = loadJourney(args, cfg, logger)
	assert.Error(t, err)

	args.Transports = stringList{"rocket", "none"}
	_, err = loadJourney(args, cfg, logger)
	assert.ErrorIs(t, err, journey.ErrUnknownTransport)

	args.Transports = nil
	args.From = "10s"
	_, err = loadJourney(args, cfg, logger)
	assert.Error(t, err)
}
