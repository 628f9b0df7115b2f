package cardid

import (
	"errors"
	"fmt"

	"github.com/accessterm/cardid-go/apdu"
	cardio "github.com/accessterm/cardid-go/io"
)

var (
	// ErrCardRemoved aborts the session: the card left the field mid sequence.
	ErrCardRemoved = cardio.ErrCardRemoved
	// ErrHardwareUnresponsive aborts the session: a round trip exceeded the channel timeout.
	ErrHardwareUnresponsive = cardio.ErrTimeout
	// ErrSessionCancelled aborts the session: its context was cancelled.
	ErrSessionCancelled = errors.New("session cancelled")
)

// HardwareError is a reader level failure. It is fatal to the current
// session and the reader is reset before the next one.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("reader error during %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// isFatal tells reader failures and cancellation, which end the session,
// from card answers with an unexpected status word, which only skip a step.
func isFatal(err error) bool {
	if err == nil {
		return false
	}

	var bad *apdu.ErrBadResponse
	if errors.As(err, &bad) {
		return false
	}

	var hw *HardwareError
	return errors.As(err, &hw) || errors.Is(err, ErrSessionCancelled)
}

// abortReason maps a fatal error to the metrics label.
func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrCardRemoved):
		return "removed"
	case errors.Is(err, ErrHardwareUnresponsive):
		return "unresponsive"
	case errors.Is(err, ErrSessionCancelled):
		return "cancelled"
	default:
		return "hardware"
	}
}
