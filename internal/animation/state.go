package animation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoJourney    = errors.New("no journey loaded")
	ErrInvalidSpeed = errors.New("speed multiplier must be positive")
	ErrNoCamera     = errors.New("player needs a camera controller")
)

type State int

const (
	Idle State = iota
	Running
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

type ColorMode int

const (
	ColorFixed ColorMode = iota
	ColorHeartRate
)

func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fixed":
		return ColorFixed, nil
	case "hr", "heartrate", "heart-rate", "heart_rate":
		return ColorHeartRate, nil
	}
	return ColorFixed, fmt.Errorf("unknown color mode %q", s)
}

func (m ColorMode) String() string {
	if m == ColorHeartRate {
		return "heartRate"
	}
	return "fixed"
}

// AnimationState is a snapshot of the player.
type AnimationState struct {
	Progress        float64
	ElapsedTime     time.Duration
	IsAnimating     bool
	SpeedMultiplier float64
	Loop            State
}
