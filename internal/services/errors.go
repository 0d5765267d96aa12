package services

import (
	"errors"
	"fmt"
)

// ErrInvalidCourseGeometry indicates a non-positive course distance or
// difficulty. Always fatal to the single computation, never clamped.
var ErrInvalidCourseGeometry = errors.New("invalid course geometry")

// InsufficientSharedAthletesError indicates a network calibration below the
// shared-athlete floor. Carries the count found and the threshold so a
// caller can decide whether to wait for more data.
type InsufficientSharedAthletesError struct {
	Found    int
	Required int
}

func (e *InsufficientSharedAthletesError) Error() string {
	return fmt.Sprintf("insufficient shared athletes for calibration: found %d, need %d", e.Found, e.Required)
}
