package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/basetype"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"

	"gps_flyover_video/internal/track"
)

// semicirclesToDegrees converts FIT positions (2^31 semicircles per 180°).
const semicirclesToDegrees = 180.0 / 2147483648.0

// parseFit reads every record message that carries a position.
func parseFit(filePath string) ([]track.RawPoint, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FIT file: %w", err)
	}
	defer f.Close()

	fitData, err := decoder.New(bufio.NewReader(f)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	var points []track.RawPoint
	for i := range fitData.Messages {
		if fitData.Messages[i].Num != typedef.MesgNumRecord {
			continue
		}
		rec := mesgdef.NewRecord(&fitData.Messages[i])
		if rec.PositionLat == basetype.Sint32Invalid || rec.PositionLong == basetype.Sint32Invalid {
			continue
		}
		points = append(points, fitPoint(rec))
	}
	return points, nil
}

func fitPoint(rec *mesgdef.Record) track.RawPoint {
	rp := track.RawPoint{
		Lat:  float64(rec.PositionLat) * semicirclesToDegrees,
		Lon:  float64(rec.PositionLong) * semicirclesToDegrees,
		Time: rec.Timestamp,
	}
	// Altitude is stored with scale 5 and offset 500.
	switch {
	case rec.EnhancedAltitude != basetype.Uint32Invalid:
		rp.Elevation = float64(rec.EnhancedAltitude)/5 - 500
		rp.HasElevation = true
	case rec.Altitude != basetype.Uint16Invalid:
		rp.Elevation = float64(rec.Altitude)/5 - 500
		rp.HasElevation = true
	}
	if rec.HeartRate != basetype.Uint8Invalid && rec.HeartRate > 0 {
		rp.HeartRate = float64(rec.HeartRate)
	}
	return rp
}
