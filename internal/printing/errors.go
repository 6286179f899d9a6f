package printing

import "errors"

// Errors returned by the printing package.
//
// Check them with errors.Is:
//
//	if errors.Is(err, printing.ErrPrinterNotFound) {
//	    // the configured printer is not installed
//	}
var (
	// ErrPrinterNotFound is returned when no print service carries the
	// configured name.
	ErrPrinterNotFound = errors.New("printer not found")

	// ErrPrintFailure is returned when the subsystem rejected a submission.
	ErrPrintFailure = errors.New("print failed")

	// ErrUnknownBackend is returned by NewSubsystem for an unregistered name.
	ErrUnknownBackend = errors.New("unknown print backend")
)
