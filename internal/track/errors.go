package track

import (
	"errors"
	"fmt"
)

var ErrNoValidPoints = errors.New("no valid points")

// ParseError is returned by Build when the input cannot form a track.
type ParseError struct {
	Total   int
	Skipped int
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("track parse error: %v (%d of %d points skipped)", e.Err, e.Skipped, e.Total)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
