package main

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gps_flyover_video/internal/animation"
	"gps_flyover_video/internal/hrcolor"
	"gps_flyover_video/internal/journey"
)

// journeyGeoJSON renders the fully revealed journey the way the player
// colors it, plus start and finish points.
func journeyGeoJSON(j *journey.Journey, opts animation.Options) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, leg := range j.Legs() {
		if leg.Kind == journey.KindTransport {
			f := geojson.NewFeature(leg.Track.Coordinates())
			f.Properties["kind"] = leg.Kind.String()
			f.Properties["mode"] = string(leg.Mode)
			f.Properties["color"] = opts.TransportColor
			fc.Append(f)
			continue
		}

		if opts.ColorMode == animation.ColorHeartRate {
			colors := hrcolor.GenerateColors(leg.Track, opts.Zones)
			for _, f := range hrcolor.FeatureCollection(hrcolor.BuildSegments(leg.Track, colors, opts.ChunkSize)).Features {
				f.Properties["kind"] = leg.Kind.String()
				fc.Append(f)
			}
			continue
		}

		coords := leg.Track.Coordinates()
		if len(coords) < 2 {
			continue
		}
		f := geojson.NewFeature(coords)
		f.Properties["kind"] = leg.Kind.String()
		f.Properties["color"] = opts.TrailColor
		fc.Append(f)
	}

	legs := j.Legs()
	if len(legs) > 0 {
		start := legs[0].Track.Start()
		end := legs[len(legs)-1].Track.End()
		fc.Append(endpoint(start.Coord(), "start"))
		fc.Append(endpoint(end.Coord(), "finish"))
	}
	return fc
}

func endpoint(p orb.Point, name string) *geojson.Feature {
	f := geojson.NewFeature(p)
	f.Properties["kind"] = name
	return f
}

func exportGeoJSON(path string, j *journey.Journey, opts animation.Options) error {
	data, err := journeyGeoJSON(j, opts).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
