//go:build windows

package readiness

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// trySharedLock takes and immediately releases a shared byte-range lock on
// the first byte of the file.
func trySharedLock(f *os.File) error {
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(h, windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol); err != nil {
		return err
	}
	return windows.UnlockFileEx(h, 0, 1, 0, ol)
}

func isBusyOpen(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}

func isBusyLock(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION) || errors.Is(err, windows.ERROR_SHARING_VIOLATION)
}
