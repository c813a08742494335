package device

import (
	"errors"
	"fmt"
)

var ErrDecode = errors.New("unexpected response")

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http status %d", e.URL, e.Code)
}

// RejectedError is returned when the device answers with status "error".
type RejectedError struct {
	Msg string
}

func (e *RejectedError) Error() string {
	if e.Msg == "" {
		return "request rejected by device"
	}
	return "request rejected by device: " + e.Msg
}
