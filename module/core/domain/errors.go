package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTripActive          = fmt.Errorf("%w: a trip is already active", ErrInvalidArgument)
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrTrackingUnavailable = errors.New("location tracking unavailable")
	ErrSignalLost          = errors.New("location signal lost")
	ErrFeedbackUnavailable = errors.New("feedback unavailable")
	ErrTripNotFound        = errors.New("trip not found")
	ErrManagerStopped      = errors.New("alarm manager stopped")
)

// IsTransient reports whether a tracking error should be ignored until the
// next sample rather than treated as the end of the stream.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSignalLost)
}
