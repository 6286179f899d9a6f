package readiness

import "errors"

// Errors returned by the detector. Check them with errors.Is.
var (
	// ErrBusy is returned by a Locker when another process holds the file.
	ErrBusy = errors.New("file is locked by another process")

	// ErrFileVanished is returned when the path no longer exists once the
	// producer released it. The path is abandoned.
	ErrFileVanished = errors.New("file vanished")

	// ErrContentUnreadable is returned when the file could not be opened as a
	// printable document within the allowed attempts.
	ErrContentUnreadable = errors.New("file content unreadable")

	// errEmptyDocument marks a document that parsed but has no pages.
	errEmptyDocument = errors.New("document has no pages")
)
