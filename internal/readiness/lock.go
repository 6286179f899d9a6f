package readiness

import (
	"fmt"
	"os"
)

// Locker probes whether a file can be opened for shared reading.
type Locker interface {
	// Probe returns nil when the file can be read, an error wrapping ErrBusy
	// while another process holds it, or any other open error.
	Probe(path string) error
}

// FileLocker probes files with the operating system's own locking primitives:
// an open for shared read access followed by a non-blocking shared lock.
type FileLocker struct{}

// Probe implements Locker.
func (FileLocker) Probe(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if isBusyOpen(err) {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return err
	}
	defer f.Close()

	if err := trySharedLock(f); err != nil {
		if isBusyLock(err) {
			return fmt.Errorf("%w: %w", ErrBusy, err)
		}
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return nil
}
