package autoprint

import (
	"context"
	"errors"

	"github.com/autoprint/autoprint/internal/printing"
	"github.com/autoprint/autoprint/internal/readiness"
)

// Status is the result of processing one file.
type Status string

const (
	StatusPrinted         Status = "printed"
	StatusSkipped         Status = "skipped"
	StatusVanished        Status = "vanished"
	StatusUnreadable      Status = "unreadable"
	StatusPrinterNotFound Status = "printer_not_found"
	StatusPrintFailed     Status = "print_failed"
	StatusDuplicate       Status = "duplicate"
	StatusInterrupted     Status = "interrupted"
)

// Outcome describes what happened to one file.
type Outcome struct {
	Path   string
	Status Status

	// ContentType is the detected MIME type, "unknown" if detection failed,
	// or empty if it was not needed.
	ContentType string

	// Copies and Submissions are set once dispatch was attempted.
	Copies      int
	Submissions int

	// Pages, LockWaits and Attempts come from the readiness check.
	Pages     int
	LockWaits int
	Attempts  int

	// Err is the cause of a failed status.
	Err error
}

// Printed reports whether the file was handed to the printer.
func (o Outcome) Printed() bool {
	return o.Status == StatusPrinted
}

func readinessStatus(err error) Status {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusInterrupted
	case errors.Is(err, readiness.ErrFileVanished):
		return StatusVanished
	default:
		return StatusUnreadable
	}
}

func dispatchStatus(err error) Status {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusInterrupted
	case errors.Is(err, printing.ErrPrinterNotFound):
		return StatusPrinterNotFound
	default:
		return StatusPrintFailed
	}
}
