//go:build unix

package readiness

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// trySharedLock takes and immediately releases a non-blocking shared flock.
func trySharedLock(f *os.File) error {
	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_SH|unix.LOCK_NB); err != nil {
		return err
	}
	return unix.Flock(fd, unix.LOCK_UN)
}

func isBusyOpen(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}

func isBusyLock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
