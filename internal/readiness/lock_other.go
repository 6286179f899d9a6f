//go:build !unix && !windows

package readiness

import "os"

func trySharedLock(*os.File) error { return nil }

func isBusyOpen(error) bool { return false }

func isBusyLock(error) bool { return false }
