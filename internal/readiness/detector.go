// Package readiness decides when a newly created file has been fully written
// by its producer and can be printed.
//
// A check runs in three steps. The lock-wait phase retries a shared lock
// probe for as long as another process holds the file. The existence check
// abandons files that disappeared meanwhile (a browser renaming its partial
// download, for instance). The content phase then tries to open the file as
// a document a bounded number of times.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/autoprint/autoprint/internal/retry"
)

// Config holds the detector's timing parameters.
type Config struct {
	// LockInterval is the pause between lock probes while the file is busy.
	LockInterval time.Duration

	// ContentInterval is the pause between failed document loads.
	ContentInterval time.Duration

	// ContentAttempts bounds the number of document loads.
	ContentAttempts int

	// Sleep is used for every pause. Nil means retry.Sleep.
	Sleep retry.Sleeper
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		LockInterval:    time.Second,
		ContentInterval: time.Second,
		ContentAttempts: 3,
	}
}

// Report describes a successful check.
type Report struct {
	// Pages is the page count of the loaded document.
	Pages int
	// LockWaits is the number of probes that found the file busy.
	LockWaits int
	// Attempts is the number of document loads performed.
	Attempts int
}

// Detector runs readiness checks. It holds no per-file state and is safe for
// sequential reuse.
type Detector struct {
	cfg    Config
	locker Locker
	loader DocumentLoader
}

// New creates a detector. Nil collaborators default to FileLocker and
// PDFLoader.
func New(cfg Config, locker Locker, loader DocumentLoader) (*Detector, error) {
	if cfg.LockInterval < 0 || cfg.ContentInterval < 0 {
		return nil, fmt.Errorf("readiness intervals must not be negative")
	}
	if cfg.ContentAttempts < 1 {
		return nil, fmt.Errorf("content attempts must be at least 1, got %d", cfg.ContentAttempts)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	if locker == nil {
		locker = FileLocker{}
	}
	if loader == nil {
		loader = PDFLoader{}
	}
	return &Detector{cfg: cfg, locker: locker, loader: loader}, nil
}

// Check blocks until path is ready, has vanished, or could not be loaded.
//
// It returns an error wrapping ErrFileVanished if the file no longer exists,
// one wrapping ErrContentUnreadable if every load failed, and ctx.Err() if
// the context ended a pause.
func (d *Detector) Check(ctx context.Context, path string) (Report, error) {
	var report Report

	waits, err := d.waitForLock(ctx, path)
	report.LockWaits = waits
	if err != nil {
		return report, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, fmt.Errorf("%w: %s", ErrFileVanished, path)
		}
		return report, fmt.Errorf("%w: %w", ErrContentUnreadable, err)
	}

	var doc Document
	content := retry.Policy{
		Attempts:  d.cfg.ContentAttempts,
		Interval:  d.cfg.ContentInterval,
		Retryable: func(err error) bool { return !errors.Is(err, fs.ErrNotExist) },
		Sleep:     d.cfg.Sleep,
	}
	attempts, err := content.Do(ctx, func(int) error {
		var lerr error
		doc, lerr = d.loader.Load(path)
		return lerr
	})
	report.Attempts = attempts
	switch {
	case err == nil:
		report.Pages = doc.Pages
		return report, nil
	case ctx.Err() != nil:
		return report, ctx.Err()
	case errors.Is(err, fs.ErrNotExist):
		return report, fmt.Errorf("%w: %s", ErrFileVanished, path)
	default:
		return report, fmt.Errorf("%w: %w", ErrContentUnreadable, err)
	}
}

// waitForLock probes the file until it is no longer busy. Any error other
// than ErrBusy ends the phase without failing the check; the existence check
// that follows decides what it meant.
func (d *Detector) waitForLock(ctx context.Context, path string) (int, error) {
	lock := retry.Forever(d.cfg.LockInterval, func(err error) bool {
		return errors.Is(err, ErrBusy)
	}).WithSleeper(d.cfg.Sleep)

	attempts, _ := lock.Do(ctx, func(int) error {
		return d.locker.Probe(path)
	})
	if err := ctx.Err(); err != nil {
		// Every probe so far found the file busy.
		return attempts, err
	}
	return attempts - 1, nil
}
