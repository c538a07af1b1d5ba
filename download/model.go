package download

import (
	"errors"
	"fmt"
)

var (
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrDownloadCancelled = errors.New("download cancelled")
	ErrInvalidTarget     = errors.New("invalid target")
)

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
