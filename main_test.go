package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_flyover_video/internal/units"
)

func TestRunWithoutInput(t *testing.T) {
	logger, _ := test.NewNullLogger()
	err := run(context.Background(), parseTestArgs(t), logger)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRunExportsGeoJSON(t *testing.T) {
	logger, hook := test.NewNullLogger()
	out := filepath.Join(t.TempDir(), "out.geojson")
	args := parseTestArgs(t, "-gpx", writeTrackGpx(t, 46, 6), "-geojson", out)

	require.NoError(t, run(context.Background(), args, logger))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, "GeoJSON exported", hook.LastEntry().Message)
}

func TestRunRejectsBadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	args := parseTestArgs(t, "-gpx", writeTrackGpx(t, 46, 6), "-preset", "orbit")
	assert.Error(t, run(context.Background(), args, logger))
}

func TestPrintJourney(t *testing.T) {
	j := shortJourney(t)
	var out bytes.Buffer
	printJourney(&out, j, units.Metric)

	s := out.String()
	assert.Contains(t, s, "Leg 0: track, 11 points")
	assert.Contains(t, s, "Point 10: Time 1m40s")
	assert.Contains(t, s, "Total: ")
}
